package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// SelectionStore remembers which tenant a browser session has selected
type SelectionStore interface {
	// Get returns uuid.Nil when the session has no selection
	Get(ctx context.Context, sessionID string) (uuid.UUID, error)
	Set(ctx context.Context, sessionID string, tenantID uuid.UUID) error
	Clear(ctx context.Context, sessionID string) error
}

// RedisSelectionStore keeps selections in Redis so every API node agrees
type RedisSelectionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSelectionStore creates a Redis-backed store. Selections expire with
// the session after ttl.
func NewRedisSelectionStore(client *redis.Client, ttl time.Duration) *RedisSelectionStore {
	return &RedisSelectionStore{client: client, ttl: ttl}
}

func selectionKey(sessionID string) string {
	return fmt.Sprintf("warden:session:%s:tenant", sessionID)
}

// Get returns the selected tenant
func (s *RedisSelectionStore) Get(ctx context.Context, sessionID string) (uuid.UUID, error) {
	val, err := s.client.Get(ctx, selectionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read tenant selection: %w", err)
	}

	id, err := uuid.Parse(val)
	if err != nil {
		// unreadable selections are treated as absent
		return uuid.Nil, nil
	}
	return id, nil
}

// Set stores the selected tenant
func (s *RedisSelectionStore) Set(ctx context.Context, sessionID string, tenantID uuid.UUID) error {
	if err := s.client.Set(ctx, selectionKey(sessionID), tenantID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store tenant selection: %w", err)
	}
	return nil
}

// Clear removes the selection
func (s *RedisSelectionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, selectionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear tenant selection: %w", err)
	}
	return nil
}

// MemorySelectionStore keeps selections in process memory. It suits a single
// node and tests.
type MemorySelectionStore struct {
	cache *lru.LRU[string, uuid.UUID]
}

// NewMemorySelectionStore creates an in-memory store holding at most size
// selections for ttl each
func NewMemorySelectionStore(size int, ttl time.Duration) *MemorySelectionStore {
	if size < 1 {
		size = 10000
	}
	return &MemorySelectionStore{cache: lru.NewLRU[string, uuid.UUID](size, nil, ttl)}
}

// Get returns the selected tenant
func (s *MemorySelectionStore) Get(ctx context.Context, sessionID string) (uuid.UUID, error) {
	id, _ := s.cache.Get(sessionID)
	return id, nil
}

// Set stores the selected tenant
func (s *MemorySelectionStore) Set(ctx context.Context, sessionID string, tenantID uuid.UUID) error {
	s.cache.Add(sessionID, tenantID)
	return nil
}

// Clear removes the selection
func (s *MemorySelectionStore) Clear(ctx context.Context, sessionID string) error {
	s.cache.Remove(sessionID)
	return nil
}

// Len returns the number of live selections
func (s *MemorySelectionStore) Len() int {
	return s.cache.Len()
}
