package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ensemble "github.com/emberworks/ensemble-sdk-go"
)

// RedisStore implements StateStore on Redis. Behavior snapshots live
// under "{prefix}:behavior:{channel_id}", relationships under
// "{prefix}:rel:{pair_key}", all as JSON values.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	log    zerolog.Logger
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client redis.UniversalClient, prefix string, log zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "ensemble"
	}
	return &RedisStore{client: client, prefix: prefix, log: log}
}

func (s *RedisStore) behaviorKey(channelID string) string {
	return fmt.Sprintf("%s:behavior:%s", s.prefix, channelID)
}

func (s *RedisStore) relKey(pairKey string) string {
	return fmt.Sprintf("%s:rel:%s", s.prefix, pairKey)
}

func (s *RedisStore) SaveBehavior(ctx context.Context, channelID string, st ensemble.BehaviorState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal behavior: %w", err)
	}
	if err := s.client.Set(ctx, s.behaviorKey(channelID), data, 0).Err(); err != nil {
		return fmt.Errorf("save behavior %s: %w", channelID, err)
	}
	return nil
}

// LoadBehavior loads every persisted channel state. A malformed record
// is discarded with a warning so startup never aborts on corruption.
func (s *RedisStore) LoadBehavior(ctx context.Context) (map[string]ensemble.BehaviorState, error) {
	keys, err := s.client.Keys(ctx, s.behaviorKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("scan behavior keys: %w", err)
	}

	out := make(map[string]ensemble.BehaviorState, len(keys))
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var st ensemble.BehaviorState
		if err := json.Unmarshal([]byte(raw), &st); err != nil || st.ChannelID == "" {
			s.log.Warn().Str("key", key).Err(err).
				Msg("discarding malformed behavior snapshot")
			continue
		}
		out[st.ChannelID] = st
	}
	return out, nil
}

func (s *RedisStore) SaveRelationships(ctx context.Context, pairs map[string]ensemble.Relationship) error {
	pipe := s.client.Pipeline()
	for key, rel := range pairs {
		data, err := json.Marshal(rel)
		if err != nil {
			return fmt.Errorf("marshal relationship %s: %w", key, err)
		}
		pipe.Set(ctx, s.relKey(key), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save relationships: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadRelationships(ctx context.Context) (map[string]ensemble.Relationship, error) {
	keys, err := s.client.Keys(ctx, s.relKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("scan relationship keys: %w", err)
	}

	prefixLen := len(s.relKey(""))
	out := make(map[string]ensemble.Relationship, len(keys))
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var rel ensemble.Relationship
		if err := json.Unmarshal([]byte(raw), &rel); err != nil {
			s.log.Warn().Str("key", key).Err(err).
				Msg("discarding malformed relationship record")
			continue
		}
		out[key[prefixLen:]] = rel
	}
	return out, nil
}
