// Package store persists behavior and relationship state between
// sessions. In-memory state stays authoritative; the store is a
// periodically flushed snapshot reloaded at startup.
package store

import (
	"context"
	"sync"
	"time"

	ensemble "github.com/emberworks/ensemble-sdk-go"
)

// StateStore saves and loads engine snapshots. Implementations must
// tolerate partial data: a corrupt record is skipped, not fatal.
type StateStore interface {
	SaveBehavior(ctx context.Context, channelID string, st ensemble.BehaviorState) error
	LoadBehavior(ctx context.Context) (map[string]ensemble.BehaviorState, error)

	SaveRelationships(ctx context.Context, pairs map[string]ensemble.Relationship) error
	LoadRelationships(ctx context.Context) (map[string]ensemble.Relationship, error)
}

// MemoryStore is a thread-safe, in-memory StateStore. Data is lost on
// restart; use RedisStore for durability.
type MemoryStore struct {
	mu        sync.RWMutex
	behaviors map[string]ensemble.BehaviorState
	pairs     map[string]ensemble.Relationship
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		behaviors: map[string]ensemble.BehaviorState{},
		pairs:     map[string]ensemble.Relationship{},
	}
}

func (s *MemoryStore) SaveBehavior(_ context.Context, channelID string, st ensemble.BehaviorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors[channelID] = st
	return nil
}

func (s *MemoryStore) LoadBehavior(_ context.Context) (map[string]ensemble.BehaviorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ensemble.BehaviorState, len(s.behaviors))
	for k, v := range s.behaviors {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveRelationships(_ context.Context, pairs map[string]ensemble.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range pairs {
		s.pairs[k] = v
	}
	return nil
}

func (s *MemoryStore) LoadRelationships(_ context.Context) (map[string]ensemble.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ensemble.Relationship, len(s.pairs))
	for k, v := range s.pairs {
		out[k] = v
	}
	return out, nil
}

// RetryConfig controls write retry with exponential backoff.
type RetryConfig struct {
	Attempts int
	BaseWait time.Duration
}

// DefaultRetryConfig returns 3 attempts starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BaseWait: 200 * time.Millisecond}
}

// WithRetry runs fn, retrying failed attempts with exponential backoff.
// The last error is returned; in-memory state remains authoritative, so
// callers log and move on.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	wait := cfg.BaseWait
	var err error
	for i := 0; i < cfg.Attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
