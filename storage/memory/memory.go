package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/internal/util"
	"github.com/giantswarm/oauth2-server/storage"
)

const (
	// tokenLogLength is the number of characters of a code or token that may be logged
	tokenLogLength = 8

	// storageType is reported on spans
	storageType = "memory"
)

// key scopes a code or refresh token to the client it was issued to
type key struct {
	clientID string
	value    string
}

// Store is an in-memory implementation of ClientStore, AuthorizationCodeStore,
// RefreshTokenStore and AccessGrantStore.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	codes         map[key]*storage.AuthorizationCode
	refreshTokens map[key]*storage.RefreshToken
	grants        map[key]*storage.AccessGrant

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic       atomic.Int64
	codesCountAtomic         atomic.Int64
	refreshTokensCountAtomic atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore            = (*Store)(nil)
	_ storage.AuthorizationCodeStore = (*Store)(nil)
	_ storage.RefreshTokenStore      = (*Store)(nil)
	_ storage.AccessGrantStore       = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		codes:           make(map[key]*storage.AuthorizationCode),
		refreshTokens:   make(map[key]*storage.RefreshToken),
		grants:          make(map[key]*storage.AccessGrant),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation enables spans, operation metrics and size gauges
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.codesCountAtomic.Store(int64(len(s.codes)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.refreshTokensCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_client", &err, time.Now())

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	cp := *client
	cp.RedirectURIs = append([]string(nil), client.RedirectURIs...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.clients[client.ClientID]; !existed {
		s.clientsCountAtomic.Add(1)
	}
	s.clients[client.ClientID] = &cp

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_client", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return client, nil
}

// ListClients returns all registered clients ordered by client ID
func (s *Store) ListClients(_ context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients, nil
}

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// SaveAuthorizationCode stores an authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_authorization_code", &err, time.Now())

	if code == nil || code.Code == "" || code.ClientID == "" {
		return fmt.Errorf("invalid authorization code")
	}

	cp := *code
	k := key{clientID: code.ClientID, value: code.Code}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.codes[k]; !existed {
		s.codesCountAtomic.Add(1)
	}
	s.codes[k] = &cp

	s.logger.Debug("Saved authorization code",
		"client_id", code.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, tokenLogLength))
	return nil
}

// GetAuthorizationCode retrieves a code issued to clientID. Expired codes are
// returned; the caller decides how to treat them.
func (s *Store) GetAuthorizationCode(ctx context.Context, code, clientID string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_authorization_code", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	authCode, ok := s.codes[key{clientID: clientID, value: code}]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	cp := *authCode
	return &cp, nil
}

// DeleteAuthorizationCode removes a code issued to clientID
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code, clientID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_authorization_code", &err, time.Now())

	k := key{clientID: clientID, value: code}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[k]; !ok {
		return storage.ErrAuthorizationCodeNotFound
	}
	delete(s.codes, k)
	s.codesCountAtomic.Add(-1)
	return nil
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_refresh_token", &err, time.Now())

	if token == nil || token.Token == "" || token.ClientID == "" {
		return fmt.Errorf("invalid refresh token")
	}

	cp := *token
	k := key{clientID: token.ClientID, value: token.Token}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.refreshTokens[k]; !existed {
		s.refreshTokensCountAtomic.Add(1)
	}
	s.refreshTokens[k] = &cp

	s.logger.Debug("Saved refresh token",
		"client_id", token.ClientID,
		"token_prefix", util.SafeTruncate(token.Token, tokenLogLength))
	return nil
}

// GetRefreshToken retrieves a refresh token issued to clientID. Expired tokens
// are returned; the caller decides how to treat them.
func (s *Store) GetRefreshToken(ctx context.Context, token, clientID string) (_ *storage.RefreshToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_refresh_token", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, ok := s.refreshTokens[key{clientID: clientID, value: token}]
	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}
	cp := *rt
	return &cp, nil
}

// DeleteRefreshToken removes a refresh token issued to clientID
func (s *Store) DeleteRefreshToken(ctx context.Context, token, clientID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_refresh_token", &err, time.Now())

	k := key{clientID: clientID, value: token}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[k]; !ok {
		return storage.ErrRefreshTokenNotFound
	}
	delete(s.refreshTokens, k)
	s.refreshTokensCountAtomic.Add(-1)
	return nil
}

// ============================================================
// AccessGrantStore Implementation
// ============================================================

// SaveAccessGrant stores or replaces the grant of a subject to a client
func (s *Store) SaveAccessGrant(ctx context.Context, grant *storage.AccessGrant) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_access_grant")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_access_grant", &err, time.Now())

	if grant == nil || grant.Subject == "" || grant.ClientID == "" {
		return fmt.Errorf("invalid access grant")
	}

	cp := *grant
	cp.Scopes = append([]string(nil), grant.Scopes...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[key{clientID: grant.ClientID, value: grant.Subject}] = &cp
	return nil
}

// GetAccessGrant retrieves the unexpired grant of subject to clientID
func (s *Store) GetAccessGrant(ctx context.Context, subject, clientID string) (_ *storage.AccessGrant, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_grant")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_access_grant", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[key{clientID: clientID, value: subject}]
	if !ok || grant.Expired(s.now()) {
		return nil, storage.ErrAccessGrantNotFound
	}
	cp := *grant
	cp.Scopes = append([]string(nil), grant.Scopes...)
	return &cp, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired codes, refresh tokens and access grants
func (s *Store) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	for k, code := range s.codes {
		if code.Expired(now) {
			delete(s.codes, k)
			s.codesCountAtomic.Add(-1)
			cleaned++
		}
	}

	for k, token := range s.refreshTokens {
		if token.Expired(now) {
			delete(s.refreshTokens, k)
			s.refreshTokensCountAtomic.Add(-1)
			cleaned++
		}
	}

	for k, grant := range s.grants {
		if grant.Expired(now) {
			delete(s.grants, k)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}

	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status.
// Not-found results count as success; they are answers, not failures.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, errp *error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := instrumentation.ResultSuccess
	if err := *errp; err != nil && !storage.IsNotFound(err) {
		result = instrumentation.ResultError
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrStorageResult, result))

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
