package opcda

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/interaction"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// mapError converts bridge and transport failures to normalized errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return err
	}

	var se *interaction.StatusError
	if errors.As(err, &se) {
		return &backend.Error{Kind: statusKind(se.Status), Op: op, Detail: se.Error(), Err: err}
	}

	var recErr tls.RecordHeaderError
	var netErr net.Error
	switch {
	case errors.As(err, &recErr):
		return backend.NewError(backend.KindProtocolMismatch, op, err)
	case errors.Is(err, interaction.ErrRequestTimeout),
		errors.Is(err, interaction.ErrClientClosed),
		errors.Is(err, transport.ErrNotConnected),
		errors.Is(err, transport.ErrConnectionClosed),
		errors.Is(err, transport.ErrKeepAliveTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return backend.NewError(backend.KindUnreachable, op, err)
	case errors.Is(err, interaction.ErrUnexpectedReply):
		return backend.NewError(backend.KindProtocolMismatch, op, err)
	}
	return backend.NewError(backend.KindInternal, op, err)
}

func statusKind(s wire.Status) backend.Kind {
	switch s {
	case wire.StatusNotFound:
		return backend.KindNotFound
	case wire.StatusAccessDenied:
		return backend.KindAccessDenied
	case wire.StatusAuthRejected:
		return backend.KindAuthRejected
	case wire.StatusProtocolMismatch, wire.StatusUnsupported:
		return backend.KindProtocolMismatch
	case wire.StatusNoSession:
		return backend.KindUnreachable
	default:
		return backend.KindInternal
	}
}
