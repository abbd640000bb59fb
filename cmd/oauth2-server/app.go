package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"

	oauth "github.com/giantswarm/oauth2-server"
	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/server"
	"github.com/giantswarm/oauth2-server/signing"
	"github.com/giantswarm/oauth2-server/storage"
	"github.com/giantswarm/oauth2-server/storage/memory"
	"github.com/giantswarm/oauth2-server/storage/redis"
)

// Demo registration, matching the examples of RFC 6749
const (
	demoClientID     = "s6BhdRkqt3"
	demoClientSecret = "cf136dc3c1fc93f31185e5885805d"
	demoUsername     = "demouser"
	demoPassword     = "demopass"

	demoSigningJWK = `{
		"kid": "69d009aa-2043-4d64-9665-6ab6d0ad3166",
		"crv": "Ed25519",
		"alg": "EdDSA",
		"use": "sig",
		"d": "a2B7AkpDPkFliSk5Ls2YzGQRmS8-y15d5bAdAcbf-oo",
		"x": "tFxkk7eoMyE9CYXSWYkDCIB0ETaFW6q8CGo7poHnoSs",
		"kty": "OKP"
	}`
)

var demoRedirectURIs = []string{
	"https://client.example.org/callback",
	"https://client.example.org/callback2",
}

// store is what the demo needs from a storage backend
type store interface {
	storage.ClientStore
	storage.AuthorizationCodeStore
	storage.RefreshTokenStore
	storage.AccessGrantStore
	SaveClient(ctx context.Context, client *storage.Client) error
	SetLogger(logger *slog.Logger)
	SetInstrumentation(inst *instrumentation.Instrumentation)
}

// app is the assembled demo server
type app struct {
	config  *Config
	logger  *slog.Logger
	store   store
	inst    *instrumentation.Instrumentation
	handler *oauth.Handler
	router  http.Handler
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.inst, err = instrumentation.New(instrumentation.Config{
		Enabled:         cfg.MetricsEnabled,
		MetricsExporter: metricsExporter(cfg.MetricsEnabled),
		LogClientIPs:    cfg.LogClientIPs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up instrumentation: %w", err)
	}
	a.closers = append(a.closers, a.inst.Shutdown)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	a.store.SetLogger(logger)
	a.store.SetInstrumentation(a.inst)

	if err := a.seed(ctx); err != nil {
		return nil, err
	}

	signer, err := loadSigner(cfg)
	if err != nil {
		return nil, err
	}

	serverConfig, err := cfg.ServerConfig()
	if err != nil {
		return nil, err
	}

	srv, err := server.New(a.store, a.store, a.store, signer, serverConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization server: %w", err)
	}
	srv.SetAuditor(security.NewAuditor(logger, true))
	srv.SetInstrumentation(a.inst)

	sessions := newSessionStore(cfg.SessionMaxAge, serverConfig.Issuer)
	host := newDemoHost(map[string]string{demoUsername: demoPassword}, a.store, sessions, cfg.AccessGrantTTL, logger)

	a.handler, err = oauth.NewHandler(srv, host.Host(), oauth.Config{
		RateLimit: oauth.RateLimitConfig{
			Rate:  cfg.RateLimit,
			Burst: cfg.RateLimitBurst,
		},
		Security: oauth.SecurityConfig{
			TrustProxy:        cfg.TrustProxy,
			TrustedProxyCount: cfg.TrustedProxyCount,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.handler.Stop()
		return nil
	})

	a.router = a.routes(host, sessions)
	return a, nil
}

func metricsExporter(enabled bool) string {
	if !enabled {
		return ""
	}
	return instrumentation.MetricsExporterPrometheus
}

func (a *app) openStore(ctx context.Context) error {
	if a.config.RedisURL == "" {
		mem := memory.New()
		a.store = mem
		a.closers = append(a.closers, func(context.Context) error {
			mem.Stop()
			return nil
		})
		a.logger.Info("Using in-memory storage")
		return nil
	}

	opts, err := goredis.ParseURL(a.config.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	rs, err := redis.New(ctx, redis.Config{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		KeyPrefix: a.config.RedisKeyPrefix,
	})
	if err != nil {
		return err
	}
	a.store = rs
	a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
	a.logger.Info("Using redis storage", "addr", opts.Addr, "db", opts.DB)
	return nil
}

func (a *app) seed(ctx context.Context) error {
	client, err := storage.NewClient(demoClientID, demoClientSecret, demoRedirectURIs...)
	if err != nil {
		return err
	}
	client.ClientName = "Demo Client"

	if err := a.store.SaveClient(ctx, client); err != nil {
		return fmt.Errorf("failed to register demo client: %w", err)
	}
	return nil
}

func loadSigner(cfg *Config) (*signing.JWKSigner, error) {
	switch {
	case cfg.SigningKeyFile != "":
		return signing.LoadSignerFile(cfg.SigningKeyFile, cfg.SigningKeyID)
	case cfg.SigningKey != "":
		return signing.NewSignerFromJSON([]byte(cfg.SigningKey))
	default:
		return signing.NewSignerFromJSON([]byte(demoSigningJWK))
	}
}

func (a *app) routes(host *demoHost, sessions *sessionStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	oauthRoutes := a.handler.Routes()

	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			host.render(w, homePage, pageData{})
		})
		r.Get(server.AuthorizationEndpointPath, oauthRoutes.ServeHTTP)
		r.Post(server.AuthorizationEndpointPath, host.ServeInteractionForm)
	})

	r.Handle(server.TokenEndpointPath, oauthRoutes)
	r.Handle(server.MetadataPath, oauthRoutes)
	r.Handle(server.JWKSPath, oauthRoutes)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", a.inst.MetricsHandler())

	return r
}

// Close releases the resources of the app in reverse order of acquisition
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
