package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces session keys in a shared Redis database.
const defaultKeyPrefix = "sfa:session:"

// RedisStore keeps sessions as JSON values whose key TTL matches the
// session expiry.
type RedisStore struct {
	client        redis.UniversalClient
	prefix        string
	scanBatchSize int64
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:        client,
		prefix:        defaultKeyPrefix,
		scanBatchSize: 100,
	}
}

// WithPrefix returns a copy of the store using a different key prefix.
func (r *RedisStore) WithPrefix(prefix string) *RedisStore {
	c := *r
	c.prefix = prefix
	return &c
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Get loads the session stored under id.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if s.Expired(time.Now()) {
		return nil, ErrNotFound
	}

	return &s, nil
}

// Save writes s with a TTL equal to its remaining lifetime. An already
// expired session is deleted instead.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return ErrInvalidSession
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return r.Delete(ctx, s.ID)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete removes the session stored under id.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List walks the key space with SCAN so a large database is not blocked.
func (r *RedisStore) List(ctx context.Context) ([]*Session, error) {
	var (
		out    []*Session
		cursor uint64
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", r.scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}

		for _, key := range keys {
			s, err := r.Get(ctx, key[len(r.prefix):])
			if errors.Is(err, ErrNotFound) {
				// Expired between SCAN and GET.
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out, nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// DialRedis parses url and pings the server, retrying up to attempts times
// with interval between tries.
func DialRedis(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis not ready: %w", ctx.Err())
		case <-time.After(interval):
		}
	}

	return nil, fmt.Errorf("redis not ready after %d attempts: %w", attempts, lastErr)
}
