package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces code keys in Redis.
const DefaultKeyPrefix = "marketplace:otp:"

// attemptScript bumps the attempts field of a stored entry in place and
// keeps the key's expiry. Returns -1 when the key is gone.
var attemptScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return -1
end
local e = cjson.decode(v)
e.attempts = (e.attempts or 0) + 1
redis.call('SET', KEYS[1], cjson.encode(e), 'KEEPTTL')
return e.attempts
`)

// RedisStore keeps codes in Redis so they survive restarts and are shared
// between server instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL connects to the Redis server at url and pings it.
func NewRedisStoreFromURL(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Put(ctx context.Context, id string, e Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Delete(ctx, id)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (Entry, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis get error: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("corrupt code entry: %w", err)
	}
	return e, nil
}

func (r *RedisStore) Attempt(ctx context.Context, id string) (int, error) {
	n, err := attemptScript.Run(ctx, r.client, []string{r.key(id)}).Int()
	if err != nil {
		return 0, fmt.Errorf("redis attempt error: %w", err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
