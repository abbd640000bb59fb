package server

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/signing"
	"github.com/giantswarm/oauth2-server/storage"
)

// Server implements the authorization server protocol logic. It is safe for
// concurrent use; all per-request state lives in the call.
type Server struct {
	clientStore       storage.ClientStore
	codeStore         storage.AuthorizationCodeStore
	refreshTokenStore storage.RefreshTokenStore
	signer            signing.Signer

	config Config
	clock  func() time.Time

	Auditor *security.Auditor
	Logger  *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics
}

// New creates a new authorization server. config is copied; zero lifetimes are
// replaced by their defaults before validation.
func New(
	clientStore storage.ClientStore,
	codeStore storage.AuthorizationCodeStore,
	refreshTokenStore storage.RefreshTokenStore,
	signer signing.Signer,
	config Config,
	logger *slog.Logger,
) (*Server, error) {
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if codeStore == nil {
		return nil, fmt.Errorf("authorization code store is required")
	}
	if refreshTokenStore == nil {
		return nil, fmt.Errorf("refresh token store is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	config.SupportedScopes = append([]string(nil), config.SupportedScopes...)
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	return &Server{
		clientStore:       clientStore,
		codeStore:         codeStore,
		refreshTokenStore: refreshTokenStore,
		signer:            signer,
		config:            config,
		clock:             time.Now,
		Logger:            logger,
		tracer:            tracenoop.NewTracerProvider().Tracer(""),
	}, nil
}

// Config returns a copy of the effective configuration
func (s *Server) Config() Config {
	c := s.config
	c.SupportedScopes = append([]string(nil), s.config.SupportedScopes...)
	return c
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables tracing and metrics for server operations
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst == nil {
		s.tracer = tracenoop.NewTracerProvider().Tracer("")
		s.metrics = nil
		return
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()
}

// Instrumentation returns the instrumentation set with SetInstrumentation, or nil
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.instrumentation
}

// SetClock replaces the time source. Intended for tests.
func (s *Server) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	s.clock = clock
}

func (s *Server) now() time.Time {
	return s.clock()
}
