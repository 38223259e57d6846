// Package smb is the SMB server adapter: it owns the TCP listener and runs
// one Connection per client through the negotiation, session setup and
// signing core in internal/adapter/smb.
package smb

import (
	"context"
	"fmt"
	"net"

	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/adapter"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// Adapter serves SMB over TCP.
//
// Adapter embeds BaseAdapter for the listener, connection limit and
// graceful shutdown. The SMB parts (handler, session manager, server
// identity, signing policy) are shared by all of its connections; the
// negotiation state and security context are per connection.
type Adapter struct {
	*adapter.BaseAdapter

	config   Config
	identity negotiate.ServerIdentity
	tokens   negotiate.SecurityBufferSource
	handler  *handlers.Handler
	metrics  metrics.SMBMetrics
}

var _ adapter.Adapter = (*Adapter)(nil)

// Option customizes an Adapter.
type Option func(*Adapter)

// WithAuthenticator replaces the configured mechanisms. tokens may be nil,
// in which case NEGOTIATE responses carry an empty security buffer.
func WithAuthenticator(a auth.Authenticator, tokens negotiate.SecurityBufferSource) Option {
	return func(s *Adapter) {
		s.handler.Authenticator = a
		s.tokens = tokens
	}
}

// WithMetrics overrides the metrics sink chosen by metrics.NewSMBMetrics.
func WithMetrics(m metrics.SMBMetrics) Option {
	return func(s *Adapter) {
		s.metrics = m
	}
}

// New builds a stopped adapter. Defaults are applied to config before it
// is validated.
func New(config Config, opts ...Option) (*Adapter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	chain, err := buildAuthChain(config)
	if err != nil {
		return nil, err
	}

	s := &Adapter{
		config: config,
		identity: negotiate.ServerIdentity{
			GUID: config.serverGUID(),
		}.WithDefaults(),
		tokens:  chain,
		handler: handlers.NewHandler(session.NewDefaultManager(), chain),
		metrics: metrics.NewSMBMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.BaseAdapter = adapter.NewBaseAdapter(adapter.BaseConfig{
		BindAddress:        config.BindAddress,
		Port:               config.Port,
		MaxConnections:     config.MaxConnections,
		ShutdownTimeout:    config.Timeouts.Shutdown,
		MetricsLogInterval: config.MetricsLogInterval,
	}, "SMB")
	if s.metrics != nil {
		s.Metrics = s.metrics
	}

	policy := config.Signing.Policy()
	logger.Debug("SMB signing configuration",
		"enabled", policy.Enabled,
		"required", policy.Required)
	logger.Debug("SMB server identity",
		"guid", s.identity.GUID.String(),
		"kerberos", config.Auth.KerberosEnabled(),
		"guest", config.Auth.Guest)

	return s, nil
}

func buildAuthChain(config Config) (*auth.Chain, error) {
	chain := &auth.Chain{}
	if config.Auth.Guest {
		chain.Guest = auth.NewGuestAuthenticator(config.ComputerName)
	}
	if config.Auth.KerberosEnabled() {
		krb, err := auth.NewKerberosAuthenticator(config.Auth.KeytabPath, config.Auth.ServicePrincipal, config.Auth.MaxClockSkew)
		if err != nil {
			return nil, fmt.Errorf("kerberos: %w", err)
		}
		chain.Kerberos = krb
	}
	return chain, nil
}

// Serve runs the accept loop until ctx is cancelled or Stop is called.
func (s *Adapter) Serve(ctx context.Context) error {
	return s.ServeWithFactory(ctx, s, nil, nil)
}

// NewConnection implements adapter.ConnectionFactory.
func (s *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return NewConnection(s, conn)
}

// Sessions returns a snapshot of the established sessions.
func (s *Adapter) Sessions() []*session.Session {
	var out []*session.Session
	s.handler.SessionManager.Range(func(sess *session.Session) bool {
		out = append(out, sess)
		return true
	})
	return out
}

// SMBConfig returns the effective configuration, defaults applied.
func (s *Adapter) SMBConfig() Config {
	return s.config
}
