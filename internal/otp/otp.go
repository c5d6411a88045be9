// Package otp keeps short-lived single-use registration codes.
package otp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"fleetops/internal/config"
)

// DefaultMaxAttempts is the number of wrong guesses that invalidate a code.
const DefaultMaxAttempts = 5

// Store saves a code under a key until it expires or is consumed.
type Store interface {
	// Save stores code under key, replacing any previous code and its failed attempts.
	Save(ctx context.Context, key, code string) error
	// Consume reports whether code matches the stored value. A match removes
	// the entry so the code cannot be used twice. Each mismatch counts against
	// the key and the stored code is dropped once the attempt limit is reached.
	Consume(ctx context.Context, key, code string) (bool, error)
}

// New builds the store selected by cfg.
func New(cfg config.OTP) (Store, error) {
	switch cfg.Store {
	case "redis":
		return NewRedisStore(cfg.RedisURL, cfg.TTL, cfg.MaxAttempts)
	default:
		return NewMemoryStore(cfg.Size, cfg.TTL, cfg.MaxAttempts), nil
	}
}

func attemptLimit(n int) int {
	if n <= 0 {
		return DefaultMaxAttempts
	}
	return n
}

type entry struct {
	code     string
	failures int
}

// MemoryStore keeps codes in an expiring LRU. Suitable for single-instance deployments.
type MemoryStore struct {
	mu          sync.Mutex
	codes       *lru.LRU[string, *entry]
	maxAttempts int
}

func NewMemoryStore(size int, ttl time.Duration, maxAttempts int) *MemoryStore {
	if size <= 0 {
		size = 10000
	}
	return &MemoryStore{
		codes:       lru.NewLRU[string, *entry](size, nil, ttl),
		maxAttempts: attemptLimit(maxAttempts),
	}
}

func (s *MemoryStore) Save(_ context.Context, key, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes.Add(key, &entry{code: code})
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, key, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes.Get(key)
	if !ok {
		return false, nil
	}
	if stored.code == code {
		s.codes.Remove(key)
		return true, nil
	}

	// the entry keeps its original expiry; only the counter changes
	stored.failures++
	if stored.failures >= s.maxAttempts {
		s.codes.Remove(key)
	}
	return false, nil
}

const (
	redisKeyPrefix     = "otp:"
	redisAttemptSuffix = ":attempts"
)

// consumeScript compares and deletes in one step so concurrent guesses across
// instances share a single attempt counter. The counter expires with the code.
var consumeScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
	return 0
end
if stored == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	return 1
end
local failures = redis.call("INCR", KEYS[2])
if failures == 1 then
	local ttl = redis.call("PTTL", KEYS[1])
	if ttl > 0 then
		redis.call("PEXPIRE", KEYS[2], ttl)
	end
end
if failures >= tonumber(ARGV[2]) then
	redis.call("DEL", KEYS[1], KEYS[2])
end
return 0
`)

// RedisStore shares codes between API instances.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxAttempts int
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(url string, ttl time.Duration, maxAttempts int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, ttl, maxAttempts), nil
}

func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, maxAttempts int) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, maxAttempts: attemptLimit(maxAttempts)}
}

func (s *RedisStore) Save(ctx context.Context, key, code string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+key, code, s.ttl)
		pipe.Del(ctx, redisKeyPrefix+key+redisAttemptSuffix)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, key, code string) (bool, error) {
	keys := []string{redisKeyPrefix + key, redisKeyPrefix + key + redisAttemptSuffix}
	n, err := consumeScript.Run(ctx, s.client, keys, code, s.maxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("redis consume failed: %w", err)
	}
	return n == 1, nil
}

// Close releases the redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
