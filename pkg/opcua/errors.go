package opcua

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/gopcua/opcua/ua"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// mapError converts gopcua failures to normalized errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return err
	}

	var code ua.StatusCode
	if errors.As(err, &code) {
		return &backend.Error{Kind: statusKind(code), Op: op, Detail: code.Error(), Err: err}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.As(err, &netErr):
		return backend.NewError(backend.KindUnreachable, op, err)
	}

	// gopcua flattens some transport failures into plain strings.
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "i/o timeout", "closed", "eof", "not connected"} {
		if strings.Contains(msg, s) {
			return backend.NewError(backend.KindUnreachable, op, err)
		}
	}
	return backend.NewError(backend.KindInternal, op, err)
}

// statusKind classifies a UA status code.
func statusKind(code ua.StatusCode) backend.Kind {
	switch code {
	case ua.StatusBadNodeIDUnknown,
		ua.StatusBadNodeIDInvalid,
		ua.StatusBadAttributeIDInvalid:
		return backend.KindNotFound
	case ua.StatusBadUserAccessDenied,
		ua.StatusBadNotReadable:
		return backend.KindAccessDenied
	case ua.StatusBadIdentityTokenRejected,
		ua.StatusBadIdentityTokenInvalid,
		ua.StatusBadUserSignatureInvalid,
		ua.StatusBadCertificateInvalid,
		ua.StatusBadCertificateUntrusted,
		ua.StatusBadSecurityChecksFailed:
		return backend.KindAuthRejected
	case ua.StatusBadTCPEndpointURLInvalid,
		ua.StatusBadProtocolVersionUnsupported,
		ua.StatusBadSecurityPolicyRejected,
		ua.StatusBadServiceUnsupported:
		return backend.KindProtocolMismatch
	case ua.StatusBadTimeout,
		ua.StatusBadServerNotConnected,
		ua.StatusBadConnectionClosed,
		ua.StatusBadSessionIDInvalid,
		ua.StatusBadSessionClosed,
		ua.StatusBadSecureChannelClosed,
		ua.StatusBadSecureChannelIDInvalid,
		ua.StatusBadCommunicationError,
		ua.StatusBadServerHalted,
		ua.StatusBadShutdown,
		ua.StatusBadNoCommunication:
		return backend.KindUnreachable
	}
	return backend.KindInternal
}

// itemFailure reports whether a per-value status means the item itself
// cannot be read, as opposed to a readable item with bad quality.
func itemFailure(code ua.StatusCode) bool {
	switch statusKind(code) {
	case backend.KindNotFound, backend.KindAccessDenied:
		return true
	}
	return false
}
