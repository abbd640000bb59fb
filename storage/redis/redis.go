package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/internal/util"
	"github.com/giantswarm/oauth2-server/storage"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultKeyPrefix is used when Config.KeyPrefix is empty
	DefaultKeyPrefix = "oauth2:"
)

const (
	keyTypeClient            = "client"
	keyTypeAuthorizationCode = "authorization-code"
	keyTypeRefreshToken      = "refresh-token"
	keyTypeAccessGrant       = "access-grant"

	tokenLogLength = 8
	storageType    = "redis"
)

// Config holds Redis connection configuration
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces all keys, e.g. "oauth2:prod:"
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s)
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store implements ClientStore, AuthorizationCodeStore, RefreshTokenStore and
// AccessGrantStore on Redis.
type Store struct {
	client    goredis.UniversalClient
	keyPrefix string

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
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

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient creates a Store on a pre-configured client.
// An empty keyPrefix falls back to DefaultKeyPrefix.
func NewWithClient(client goredis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation enables spans and operation metrics
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity (health check).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(parts ...string) string {
	return s.keyPrefix + strings.Join(parts, ":")
}

// expireAt keeps a record alive through the last second in which it is still valid
func expireAt(expiresAt time.Time) time.Time {
	return time.Unix(expiresAt.Unix()+1, 0)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers or replaces a client. Clients do not expire.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_client", &err, time.Now())

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if err := s.client.Set(ctx, s.key(keyTypeClient, client.ClientID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_client", &err, time.Now())

	var client storage.Client
	if err := s.get(ctx, s.key(keyTypeClient, clientID), &client); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// SaveAuthorizationCode stores an authorization code until it expires
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_authorization_code", &err, time.Now())

	if code == nil || code.Code == "" || code.ClientID == "" {
		return fmt.Errorf("invalid authorization code")
	}

	key := s.key(keyTypeAuthorizationCode, code.ClientID, code.Code)
	if err := s.set(ctx, key, code, code.ExpiresAt); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"client_id", code.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, tokenLogLength))
	return nil
}

// GetAuthorizationCode retrieves a code issued to clientID
func (s *Store) GetAuthorizationCode(ctx context.Context, code, clientID string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_authorization_code", &err, time.Now())

	var authCode storage.AuthorizationCode
	if err := s.get(ctx, s.key(keyTypeAuthorizationCode, clientID, code), &authCode); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return &authCode, nil
}

// DeleteAuthorizationCode removes a code issued to clientID
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code, clientID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_authorization_code", &err, time.Now())

	deleted, err := s.client.Del(ctx, s.key(keyTypeAuthorizationCode, clientID, code)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	if deleted == 0 {
		return storage.ErrAuthorizationCodeNotFound
	}
	return nil
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token until it expires
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_refresh_token", &err, time.Now())

	if token == nil || token.Token == "" || token.ClientID == "" {
		return fmt.Errorf("invalid refresh token")
	}

	key := s.key(keyTypeRefreshToken, token.ClientID, token.Token)
	if err := s.set(ctx, key, token, token.ExpiresAt); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.logger.Debug("Saved refresh token",
		"client_id", token.ClientID,
		"token_prefix", util.SafeTruncate(token.Token, tokenLogLength))
	return nil
}

// GetRefreshToken retrieves a refresh token issued to clientID
func (s *Store) GetRefreshToken(ctx context.Context, token, clientID string) (_ *storage.RefreshToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_refresh_token", &err, time.Now())

	var rt storage.RefreshToken
	if err := s.get(ctx, s.key(keyTypeRefreshToken, clientID, token), &rt); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &rt, nil
}

// DeleteRefreshToken removes a refresh token issued to clientID
func (s *Store) DeleteRefreshToken(ctx context.Context, token, clientID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_refresh_token", &err, time.Now())

	deleted, err := s.client.Del(ctx, s.key(keyTypeRefreshToken, clientID, token)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if deleted == 0 {
		return storage.ErrRefreshTokenNotFound
	}
	return nil
}

// ============================================================
// AccessGrantStore Implementation
// ============================================================

// SaveAccessGrant stores or replaces the grant of a subject to a client until it expires
func (s *Store) SaveAccessGrant(ctx context.Context, grant *storage.AccessGrant) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_access_grant")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_access_grant", &err, time.Now())

	if grant == nil || grant.Subject == "" || grant.ClientID == "" {
		return fmt.Errorf("invalid access grant")
	}

	if err := s.set(ctx, s.key(keyTypeAccessGrant, grant.ClientID, grant.Subject), grant, grant.ExpiresAt); err != nil {
		return fmt.Errorf("failed to save access grant: %w", err)
	}
	return nil
}

// GetAccessGrant retrieves the grant of subject to clientID
func (s *Store) GetAccessGrant(ctx context.Context, subject, clientID string) (_ *storage.AccessGrant, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_grant")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_access_grant", &err, time.Now())

	var grant storage.AccessGrant
	if err := s.get(ctx, s.key(keyTypeAccessGrant, clientID, subject), &grant); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrAccessGrantNotFound
		}
		return nil, fmt.Errorf("failed to get access grant: %w", err)
	}
	return &grant, nil
}

// ============================================================
// Helpers
// ============================================================

// set stores v as JSON with an absolute expiry. Records already past their
// expiry are not written; a later lookup reports them as not found.
func (s *Store) set(ctx context.Context, key string, v any, expiresAt time.Time) error {
	exp := expireAt(expiresAt)
	if !exp.After(s.now()) {
		s.logger.Debug("Skipping write of expired record", "expires_at", expiresAt)
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.client.SetArgs(ctx, key, data, goredis.SetArgs{ExpireAt: exp}).Err()
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}

	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
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
