package opcua

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// Family is the protocol family name reported by the driver.
const Family = "UA"

// DefaultApplicationURI identifies the gateway to UA servers.
const DefaultApplicationURI = "urn:openplant:opcgw"

// Config configures the UA driver.
type Config struct {
	// SecurityPolicy is a policy name such as "None" or "Basic256Sha256".
	// Empty selects the most secure endpoint the server offers.
	SecurityPolicy string

	// SecurityMode is "None", "Sign" or "SignAndEncrypt". Empty accepts
	// any mode of the selected policy.
	SecurityMode string

	// CertFile and KeyFile hold the client certificate, required by every
	// policy other than None.
	CertFile string
	KeyFile  string

	ApplicationURI string

	// RequestTimeout bounds each UA service call (default: 10s).
	RequestTimeout time.Duration

	// SessionTimeout is requested from the server (default: 1m).
	SessionTimeout time.Duration

	Logger *slog.Logger
}

// Driver dials UA sessions.
type Driver struct {
	config Config
	logger *slog.Logger
}

// NewDriver creates a UA driver.
func NewDriver(config Config) *Driver {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = time.Minute
	}
	if config.ApplicationURI == "" {
		config.ApplicationURI = DefaultApplicationURI
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{config: config, logger: logger}
}

// Family returns "UA".
func (d *Driver) Family() string { return Family }

// ValidateEndpoint checks that endpoint is an opc.tcp:// URL.
func (d *Driver) ValidateEndpoint(endpoint string) error {
	_, err := ParseEndpoint(endpoint)
	return err
}

// Dial discovers the server endpoints, picks one matching the configured
// security and opens a session on it.
func (d *Driver) Dial(ctx context.Context, endpoint string, creds backend.Credentials) (backend.Session, error) {
	if _, err := ParseEndpoint(endpoint); err != nil {
		return nil, err
	}

	eps, err := opcua.GetEndpoints(ctx, endpoint)
	if err != nil {
		return nil, mapError("connect", err)
	}
	ep := selectEndpoint(eps, d.config.SecurityPolicy, d.config.SecurityMode)
	if ep == nil {
		return nil, backend.Errorf(backend.KindProtocolMismatch, "connect",
			"no endpoint for policy %q mode %q", d.config.SecurityPolicy, d.config.SecurityMode)
	}

	tokenType := ua.UserTokenTypeAnonymous
	auth := opcua.AuthAnonymous()
	if creds.User != "" {
		tokenType = ua.UserTokenTypeUserName
		auth = opcua.AuthUsername(creds.User, creds.Password)
	}
	if !offersToken(ep, tokenType) {
		return nil, backend.Errorf(backend.KindAuthRejected, "connect",
			"endpoint does not accept %v tokens", tokenType)
	}

	opts := []opcua.Option{
		auth,
		opcua.SecurityFromEndpoint(ep, tokenType),
		opcua.ApplicationURI(d.config.ApplicationURI),
		opcua.RequestTimeout(d.config.RequestTimeout),
		opcua.SessionTimeout(d.config.SessionTimeout),
		opcua.AutoReconnect(false),
	}
	if ep.SecurityPolicyURI != ua.SecurityPolicyURINone {
		if d.config.CertFile == "" || d.config.KeyFile == "" {
			return nil, backend.Errorf(backend.KindProtocolMismatch, "connect",
				"policy %s requires a client certificate", ep.SecurityPolicyURI)
		}
		opts = append(opts, opcua.CertificateFile(d.config.CertFile), opcua.PrivateKeyFile(d.config.KeyFile))
	}

	// Servers behind NAT often advertise an unreachable host name, so
	// always connect to the URL we were given.
	c, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, mapError("connect", err)
	}

	// The context passed to Connect owns the connection for its whole
	// lifetime; bound only the wait by the caller's context.
	life, cancel := context.WithCancel(context.Background())
	if err := await(ctx, func() error { return c.Connect(life) }, func() {
		cancel()
		_ = c.Close(context.Background())
	}); err != nil {
		cancel()
		return nil, mapError("connect", err)
	}

	d.logger.Debug("UA session open", "endpoint", endpoint,
		"policy", ep.SecurityPolicyURI, "mode", ep.SecurityMode, "user", creds.User)
	return newSession(endpoint, c, life, cancel, d.logger), nil
}

// await runs fn in a goroutine and waits for it or ctx. When ctx ends first
// the result of fn is handed to abandon once it arrives.
func await(ctx context.Context, fn func() error, abandon func()) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		go func() {
			<-done
			if abandon != nil {
				abandon()
			}
		}()
		return ctx.Err()
	}
}

var policyURIs = map[string]string{
	"none":           ua.SecurityPolicyURINone,
	"basic128rsa15":  ua.SecurityPolicyURIBasic128Rsa15,
	"basic256":       ua.SecurityPolicyURIBasic256,
	"basic256sha256": ua.SecurityPolicyURIBasic256Sha256,
}

const policyURIPrefix = "http://opcfoundation.org/UA/SecurityPolicy#"

func policyURI(policy string) string {
	if uri, ok := policyURIs[strings.ToLower(policy)]; ok {
		return uri
	}
	if strings.HasPrefix(policy, policyURIPrefix) {
		return policy
	}
	return policyURIPrefix + policy
}

func parseMode(mode string) ua.MessageSecurityMode {
	switch strings.ToLower(mode) {
	case "none":
		return ua.MessageSecurityModeNone
	case "sign":
		return ua.MessageSecurityModeSign
	case "signandencrypt":
		return ua.MessageSecurityModeSignAndEncrypt
	}
	return ua.MessageSecurityModeInvalid
}

// selectEndpoint picks the endpoint matching policy and mode. An empty
// policy selects the endpoint with the highest security level.
func selectEndpoint(eps []*ua.EndpointDescription, policy, mode string) *ua.EndpointDescription {
	if policy == "" {
		var best *ua.EndpointDescription
		for _, ep := range eps {
			if best == nil || ep.SecurityLevel > best.SecurityLevel {
				best = ep
			}
		}
		return best
	}

	uri := policyURI(policy)
	want := parseMode(mode)
	for _, ep := range eps {
		if ep.SecurityPolicyURI != uri {
			continue
		}
		if want == ua.MessageSecurityModeInvalid || ep.SecurityMode == want {
			return ep
		}
	}
	return nil
}

func offersToken(ep *ua.EndpointDescription, t ua.UserTokenType) bool {
	for _, tok := range ep.UserIdentityTokens {
		if tok.TokenType == t {
			return true
		}
	}
	return false
}
