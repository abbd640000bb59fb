package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/server"
)

// InteractionHandler renders the sign-in or consent interaction the
// authorization endpoint asked for. The request context carries the client IP.
type InteractionHandler interface {
	ServeInteraction(w http.ResponseWriter, r *http.Request, interaction *InteractionRequired)
}

// InteractionHandlerFunc adapts a function to InteractionHandler
type InteractionHandlerFunc func(w http.ResponseWriter, r *http.Request, interaction *InteractionRequired)

// ServeInteraction calls f(w, r, interaction)
func (f InteractionHandlerFunc) ServeInteraction(w http.ResponseWriter, r *http.Request, interaction *InteractionRequired) {
	f(w, r, interaction)
}

// Host supplies the resource-owner side of the authorization endpoint.
// Authenticator and Authorizer receive the request context, so hosts can read
// their session from it via middleware.
type Host struct {
	Authenticator server.Authenticator
	Authorizer    server.Authorizer
	Interaction   InteractionHandler
}

// Handler is a thin HTTP adapter for the authorization server.
// It handles HTTP requests and delegates to server.Server for protocol logic.
type Handler struct {
	server *server.Server
	host   Host
	config Config
	issuer string

	ipExtractor security.IPExtractor
	rateLimiter *security.RateLimiter

	tokenCORS     *cors.Cors
	discoveryCORS *cors.Cors

	logger  *slog.Logger
	tracer  trace.Tracer // nil when instrumentation is disabled
	metrics *instrumentation.Metrics
	inst    *instrumentation.Instrumentation
}

// NewHandler creates a new HTTP handler. Instrumentation set on srv is reused
// for the HTTP layer.
func NewHandler(srv *server.Server, host Host, config Config, logger *slog.Logger) (*Handler, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	if host.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if host.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if host.Interaction == nil {
		return nil, fmt.Errorf("interaction handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config.applyDefaults()

	h := &Handler{
		server: srv,
		host:   host,
		config: config,
		issuer: srv.Config().Issuer,
		ipExtractor: security.IPExtractor{
			TrustProxy:        config.Security.TrustProxy,
			TrustedProxyCount: config.Security.TrustedProxyCount,
		},
		tokenCORS:     newCORS(http.MethodPost),
		discoveryCORS: newCORS(http.MethodGet),
		logger:        logger,
	}

	if config.RateLimit.Rate > 0 {
		h.rateLimiter = security.NewRateLimiter(security.RateLimitConfig{
			RequestsPerSecond: config.RateLimit.Rate,
			Burst:             config.RateLimit.Burst,
			MaxEntries:        config.RateLimit.MaxEntries,
			CleanupInterval:   config.RateLimit.CleanupInterval,
		}, logger)
	}

	if inst := srv.Instrumentation(); inst != nil {
		h.inst = inst
		h.tracer = inst.Tracer("http")
		h.metrics = inst.Metrics()
	}

	return h, nil
}

// newCORS allows any origin to call the endpoint with client credentials in
// the Authorization header and to read the WWW-Authenticate challenge.
func newCORS(methods ...string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       methods,
		AllowedHeaders:       []string{"Authorization"},
		ExposedHeaders:       []string{"WWW-Authenticate"},
		OptionsSuccessStatus: http.StatusNoContent,
	})
}

// Stop releases the rate limiter's background goroutine
func (h *Handler) Stop() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// Routes returns a handler serving all endpoints at their paths relative to
// the issuer. Mount it under the issuer's path with http.StripPrefix when the
// issuer has one.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(server.AuthorizationEndpointPath,
		h.instrument("authorization", http.HandlerFunc(h.ServeAuthorization)))
	mux.Handle(server.TokenEndpointPath,
		h.instrument("token", h.tokenCORS.Handler(http.HandlerFunc(h.ServeToken))))
	mux.Handle(server.MetadataPath,
		h.instrument("metadata", h.discoveryCORS.Handler(http.HandlerFunc(h.ServeAuthorizationServerMetadata))))
	mux.Handle(server.JWKSPath,
		h.instrument("jwks", h.discoveryCORS.Handler(http.HandlerFunc(h.ServeJWKS))))

	return security.RequestIDMiddleware(mux)
}

// ServeAuthorization handles authorization requests (RFC 6749 section 4.1.1).
// Authorization responses are sent as 303 redirects; interaction outcomes are
// handed to the host's InteractionHandler.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := security.WithClientIP(r.Context(), h.ipExtractor.ClientIP(r))
	r = r.WithContext(ctx)

	req := server.AuthorizationRequestFromQuery(r.URL.Query())
	outcome, err := h.server.Authorize(ctx, req, h.host.Authenticator, h.host.Authorizer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch o := outcome.(type) {
	case *server.Redirect:
		security.SetSecurityHeaders(w, h.issuer)
		security.SetNoCacheHeaders(w)
		http.Redirect(w, r, o.URL.String(), http.StatusSeeOther)
	case *server.InteractionRequired:
		h.logger.Debug("Authorization request needs interaction",
			"client_id", o.Client.ClientID,
			"interaction", o.Kind.String())
		h.host.Interaction.ServeInteraction(w, r, o)
	default:
		h.writeError(w, r, fmt.Errorf("unexpected authorization outcome %T", outcome))
	}
}

// ServeToken handles access token requests (RFC 6749 section 3.2)
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodOptions:
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetNoCacheHeaders(w)

	clientIP := h.ipExtractor.ClientIP(r)
	ctx := security.WithClientIP(r.Context(), clientIP)
	r = r.WithContext(ctx)

	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("the request body could not be parsed"))
		return
	}

	req := server.TokenRequestFromForm(r.Header.Get("Authorization"), r.PostForm)
	resp, err := h.server.Token(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.issuer)
	h.writeJSON(w, http.StatusOK, resp)
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if !h.allowGet(w, r) {
		return
	}
	security.SetSecurityHeaders(w, h.issuer)
	h.writeJSON(w, http.StatusOK, h.server.Metadata())
}

// ServeJWKS serves the JSON Web Key Set with the public signing key
func (h *Handler) ServeJWKS(w http.ResponseWriter, r *http.Request) {
	if !h.allowGet(w, r) {
		return
	}
	security.SetSecurityHeaders(w, h.issuer)
	h.writeJSON(w, http.StatusOK, h.server.JWKS())
}

// allowGet answers plain OPTIONS requests and rejects methods other than GET
func (h *Handler) allowGet(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return true
	case http.MethodOptions:
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
	return false
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.rateLimiter == nil || h.rateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", r.URL.Path)
	instrumentation.SetSpanAttributes(trace.SpanFromContext(r.Context()),
		attribute.String(instrumentation.AttrRateLimiterType, "ip"))
	if h.metrics != nil {
		h.metrics.RecordRateLimitExceeded(r.Context(), "ip")
	}
	h.server.Auditor.LogRateLimitExceeded(clientIP, "")

	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(DefaultRateLimitRetryAfter.Seconds())))
	h.writeError(w, r, ErrRateLimitExceeded("rate limit exceeded, please try again later"))
	return true
}

// writeError renders err as an OAuth error response. Errors that are not
// *OAuthError are logged and sent as server_error.
//
// A client that attempted to authenticate with the Authorization header gets
// a matching Basic challenge on 401 (RFC 6749 section 5.2).
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	oauthErr := AsOAuthError(err)

	var protocolErr *OAuthError
	if !errors.As(err, &protocolErr) {
		h.logger.Error("Request failed",
			"path", r.URL.Path,
			"request_id", security.GetRequestID(r.Context()),
			"error", err)
	}

	security.SetSecurityHeaders(w, h.issuer)

	if oauthErr.Status == http.StatusUnauthorized && r.Header.Get("Authorization") != "" {
		w.Header().Set("WWW-Authenticate", h.formatBasicChallenge(oauthErr))
	}

	h.writeJSON(w, oauthErr.Status, ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

// formatBasicChallenge builds `Basic realm="<issuer>", error="..", error_description=".."`
func (h *Handler) formatBasicChallenge(oauthErr *OAuthError) string {
	return fmt.Sprintf(`Basic realm="%s", error="%s", error_description="%s"`,
		quoteEscape(h.issuer), quoteEscape(oauthErr.Code), quoteEscape(oauthErr.Description))
}

// quoteEscape escapes a value for an HTTP quoted-string.
// Backslashes first, then quotes.
func quoteEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

// ============================================================
// Instrumentation
// ============================================================

// statusRecorder captures the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// instrument wraps an endpoint with a span and HTTP request metrics
func (h *Handler) instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx := r.Context()
		var span trace.Span
		if h.tracer != nil {
			ctx, span = h.tracer.Start(ctx, "oauth.http."+endpoint)
			defer span.End()
		}

		next.ServeHTTP(rec, r.WithContext(ctx))

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, rec.status)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrRequestID, security.GetRequestID(ctx)))
		if h.inst != nil && h.inst.ShouldLogClientIPs() {
			instrumentation.AddSecurityAttributes(span, h.ipExtractor.ClientIP(r))
		}
		if rec.status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, http.StatusText(rec.status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		h.recordHTTPMetrics(r, endpoint, rec.status, startTime)
	})
}

// recordHTTPMetrics records HTTP request metrics (total count and duration)
func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, startTime time.Time) {
	if h.metrics == nil {
		return
	}
	duration := float64(time.Since(startTime).Microseconds()) / 1000
	h.metrics.RecordHTTPRequest(r.Context(), r.Method, endpoint, status, duration)
}
