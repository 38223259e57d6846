package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/api/auth"
	"github.com/marmos91/dittosmb/pkg/api/handlers"
)

// drainTimeout bounds in-flight API requests once the process is stopping.
// Probes and scrapes are short, so this is well under the SMB drain.
const drainTimeout = 5 * time.Second

// Server is the HTTP side-channel of a running SMB server: health probes,
// a session listing and Prometheus metrics.
type Server struct {
	http   *http.Server
	config APIConfig

	bound chan struct{}
	addr  string // set before bound is closed

	stopOnce sync.Once
	stopErr  error
}

// NewServer creates a stopped server over status. Defaults are applied to
// config here so tests can pass a bare APIConfig.
func NewServer(config APIConfig, status handlers.StatusProvider) (*Server, error) {
	config.ApplyDefaults()
	var tokens *auth.TokenService
	if config.JWTSecret != "" {
		var err error
		if tokens, err = auth.NewTokenService(config.JWTSecret, config.TokenTTL); err != nil {
			return nil, fmt.Errorf("API tokens: %w", err)
		}
	}
	return &Server{
		http: &http.Server{
			Handler:      NewRouter(status, tokens),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
		bound:  make(chan struct{}),
	}, nil
}

func (s *Server) listenAddr() string {
	return net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
}

// Start binds and serves until ctx is cancelled, then drains in-flight
// requests. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr())
	if err != nil {
		close(s.bound)
		return fmt.Errorf("API listen on %s: %w", s.listenAddr(), err)
	}
	s.addr = ln.Addr().String()
	close(s.bound)
	logger.Info("API server listening", "address", s.addr)

	failed := make(chan error, 1)
	go func() {
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
	}

	// ctx is already done, so the drain needs its own deadline.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return s.Stop(drainCtx)
}

// Stop drains the server. Later calls return the first result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.http.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("API shutdown: %w", err)
			logger.Warn("API server did not drain", logger.Err(err))
			return
		}
		logger.Info("API server stopped")
	})
	return s.stopErr
}

// Addr waits for the bind attempt and returns the bound address, or "" if
// binding failed.
func (s *Server) Addr() string {
	<-s.bound
	return s.addr
}

func (s *Server) Port() int { return s.config.Port }
