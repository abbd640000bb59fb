// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/oauth2-server/storage"
)

// MockStore implements ClientStore, AuthorizationCodeStore and RefreshTokenStore.
// Every method delegates to a replaceable function field; the defaults keep
// records in maps so tests only override the call they want to fail.
type MockStore struct {
	mu            sync.Mutex
	clients       map[string]*storage.Client
	codes         map[string]*storage.AuthorizationCode
	refreshTokens map[string]*storage.RefreshToken
	callCounts    map[string]int

	GetClientFunc               func(ctx context.Context, clientID string) (*storage.Client, error)
	SaveAuthorizationCodeFunc   func(ctx context.Context, code *storage.AuthorizationCode) error
	GetAuthorizationCodeFunc    func(ctx context.Context, code, clientID string) (*storage.AuthorizationCode, error)
	DeleteAuthorizationCodeFunc func(ctx context.Context, code, clientID string) error
	SaveRefreshTokenFunc        func(ctx context.Context, token *storage.RefreshToken) error
	GetRefreshTokenFunc         func(ctx context.Context, token, clientID string) (*storage.RefreshToken, error)
	DeleteRefreshTokenFunc      func(ctx context.Context, token, clientID string) error
}

var (
	_ storage.ClientStore            = (*MockStore)(nil)
	_ storage.AuthorizationCodeStore = (*MockStore)(nil)
	_ storage.RefreshTokenStore      = (*MockStore)(nil)
)

func key(clientID, value string) string {
	return clientID + "\x00" + value
}

// NewMockStore creates a mock store holding clients
func NewMockStore(clients ...*storage.Client) *MockStore {
	m := &MockStore{
		clients:       make(map[string]*storage.Client),
		codes:         make(map[string]*storage.AuthorizationCode),
		refreshTokens: make(map[string]*storage.RefreshToken),
		callCounts:    make(map[string]int),
	}
	for _, c := range clients {
		m.clients[c.ClientID] = c
	}

	m.GetClientFunc = func(_ context.Context, clientID string) (*storage.Client, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		c, ok := m.clients[clientID]
		if !ok {
			return nil, storage.ErrClientNotFound
		}
		return c, nil
	}

	m.SaveAuthorizationCodeFunc = func(_ context.Context, code *storage.AuthorizationCode) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		cp := *code
		m.codes[key(code.ClientID, code.Code)] = &cp
		return nil
	}

	m.GetAuthorizationCodeFunc = func(_ context.Context, code, clientID string) (*storage.AuthorizationCode, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		c, ok := m.codes[key(clientID, code)]
		if !ok {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		cp := *c
		return &cp, nil
	}

	m.DeleteAuthorizationCodeFunc = func(_ context.Context, code, clientID string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		k := key(clientID, code)
		if _, ok := m.codes[k]; !ok {
			return storage.ErrAuthorizationCodeNotFound
		}
		delete(m.codes, k)
		return nil
	}

	m.SaveRefreshTokenFunc = func(_ context.Context, token *storage.RefreshToken) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		cp := *token
		m.refreshTokens[key(token.ClientID, token.Token)] = &cp
		return nil
	}

	m.GetRefreshTokenFunc = func(_ context.Context, token, clientID string) (*storage.RefreshToken, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		t, ok := m.refreshTokens[key(clientID, token)]
		if !ok {
			return nil, storage.ErrRefreshTokenNotFound
		}
		cp := *t
		return &cp, nil
	}

	m.DeleteRefreshTokenFunc = func(_ context.Context, token, clientID string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		k := key(clientID, token)
		if _, ok := m.refreshTokens[k]; !ok {
			return storage.ErrRefreshTokenNotFound
		}
		delete(m.refreshTokens, k)
		return nil
	}

	return m
}

func (m *MockStore) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts[method]++
}

// CallCount returns how often method was called
func (m *MockStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[method]
}

// AuthorizationCodeCount returns the number of stored authorization codes
func (m *MockStore) AuthorizationCodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

// RefreshTokenCount returns the number of stored refresh tokens
func (m *MockStore) RefreshTokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refreshTokens)
}

// GetClient calls GetClientFunc
func (m *MockStore) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.record("GetClient")
	return m.GetClientFunc(ctx, clientID)
}

// SaveAuthorizationCode calls SaveAuthorizationCodeFunc
func (m *MockStore) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.record("SaveAuthorizationCode")
	return m.SaveAuthorizationCodeFunc(ctx, code)
}

// GetAuthorizationCode calls GetAuthorizationCodeFunc
func (m *MockStore) GetAuthorizationCode(ctx context.Context, code, clientID string) (*storage.AuthorizationCode, error) {
	m.record("GetAuthorizationCode")
	return m.GetAuthorizationCodeFunc(ctx, code, clientID)
}

// DeleteAuthorizationCode calls DeleteAuthorizationCodeFunc
func (m *MockStore) DeleteAuthorizationCode(ctx context.Context, code, clientID string) error {
	m.record("DeleteAuthorizationCode")
	return m.DeleteAuthorizationCodeFunc(ctx, code, clientID)
}

// SaveRefreshToken calls SaveRefreshTokenFunc
func (m *MockStore) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	m.record("SaveRefreshToken")
	return m.SaveRefreshTokenFunc(ctx, token)
}

// GetRefreshToken calls GetRefreshTokenFunc
func (m *MockStore) GetRefreshToken(ctx context.Context, token, clientID string) (*storage.RefreshToken, error) {
	m.record("GetRefreshToken")
	return m.GetRefreshTokenFunc(ctx, token, clientID)
}

// DeleteRefreshToken calls DeleteRefreshTokenFunc
func (m *MockStore) DeleteRefreshToken(ctx context.Context, token, clientID string) error {
	m.record("DeleteRefreshToken")
	return m.DeleteRefreshTokenFunc(ctx, token, clientID)
}
