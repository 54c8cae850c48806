package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client     redis.Cmdable
	docs       string
	quarantine string
}

// NewRedisStore creates a Store that keeps documents as fields of a single
// Redis hash named "<prefix>:docs". Quarantined documents move to the
// "<prefix>:quarantine" hash.
func NewRedisStore(client redis.Cmdable, prefix string) Store {
	if prefix == "" {
		prefix = "specialists"
	}
	return &redisStore{
		client:     client,
		docs:       prefix + ":docs",
		quarantine: prefix + ":quarantine",
	}
}

func (s *redisStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.docs).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) Load(ctx context.Context, keys ...string) ([]Entry, error) {
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	values, err := s.client.HMGet(ctx, s.docs, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keys[i])
		}
		entries = append(entries, Entry{Key: keys[i], Value: []byte(str)})
	}
	return entries, nil
}

func (s *redisStore) Save(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	fields := make([]any, 0, len(entries)*2)
	for _, e := range entries {
		fields = append(fields, e.Key, e.Value)
	}
	if err := s.client.HSet(ctx, s.docs, fields...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.docs, keys...).Err(); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

func (s *redisStore) Quarantine(ctx context.Context, key string) error {
	value, err := s.client.HGet(ctx, s.docs, key).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.quarantine, key, value)
		pipe.HDel(ctx, s.docs, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: quarantine %s: %v", ErrSaveFailed, key, err)
	}
	return nil
}
