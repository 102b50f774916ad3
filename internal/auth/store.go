// Package auth holds the bearer token shared by the REST client and the
// hubs, and attaches it to outgoing requests.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/soyeahso/sipdash/internal/persist"
)

// Store holds the current bearer token. An empty token means anonymous.
type Store interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store seeded with token.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	return s.SetToken(context.Background(), "")
}

// TokenKey is the persisted key used by KVStore.
const TokenKey = "auth-token"

// KVStore persists the token so it survives restarts.
type KVStore struct {
	kv persist.KV
}

// NewKVStore returns a store backed by kv.
func NewKVStore(kv persist.KV) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) Token(ctx context.Context) (string, error) {
	data, err := s.kv.Get(ctx, TokenKey)
	if errors.Is(err, persist.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *KVStore) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	return s.kv.Put(ctx, TokenKey, []byte(token))
}

func (s *KVStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, TokenKey)
}
