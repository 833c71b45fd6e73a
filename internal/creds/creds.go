package creds

import (
	"context"
	"sync"
)

// TokenPair is the credential set issued by the remote service. Access and
// refresh tokens always travel together: a refreshed access token is only
// valid alongside the refresh token that produced it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
}

// Store is the keyed credential store shared by every component that needs
// tokens. Reads return empty strings when nothing is stored; absence is not
// an error. Write replaces the access and refresh tokens atomically.
type Store interface {
	ReadAccess(ctx context.Context) (string, error)
	ReadRefresh(ctx context.Context) (string, error)
	ReadUserID(ctx context.Context) (string, error)

	// Write replaces the stored token pair in a single transaction. A pair
	// with a non-empty UserID replaces the stored user id as well.
	Write(ctx context.Context, pair TokenPair) error
	WriteUserID(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store used by tests and ephemeral sessions.
type MemoryStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ReadAccess(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken, nil
}

func (s *MemoryStore) ReadRefresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.RefreshToken, nil
}

func (s *MemoryStore) ReadUserID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.UserID, nil
}

func (s *MemoryStore) Write(ctx context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pair.UserID == "" {
		pair.UserID = s.pair.UserID
	}
	s.pair = pair
	return nil
}

func (s *MemoryStore) WriteUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair.UserID = userID
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	return nil
}
