package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "idem:"

	recordPending   = "PENDING"
	recordCompleted = "COMPLETED"
)

// ErrReservationLost is returned by Complete when the lease on a key ran out
// and another caller reserved it before the result was written
var ErrReservationLost = errors.New("idempotency reservation held by another caller")

// redisRecord is the value stored under each idempotency key
type redisRecord struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// completeScript writes the result while the key still holds our reservation
// or has expired without a new holder
var completeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == false or v == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// releaseScript deletes a key only while it still holds our reservation
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisIdempotencyStore implements IdempotencyStore using Redis
// This is suitable for distributed deployments where multiple instances
// need to share idempotency state
//
// Each reservation carries a random token. Complete and Release only act on a
// key while it still holds the token this instance wrote, so a holder whose
// lease expired cannot clobber the next holder's reservation.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisIdempotencyStore connects to Redis and verifies the connection
func NewRedisIdempotencyStore(cfg config.RedisConfig, keyPrefix string) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisIdempotencyStoreWithClient(client, keyPrefix), nil
}

// NewRedisIdempotencyStoreWithClient creates a store with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
		tokens:    make(map[string]string),
	}
}

func pendingRecord(token string) string {
	raw, _ := json.Marshal(redisRecord{Status: recordPending, Token: token})
	return string(raw)
}

// takeToken removes and returns the token of our reservation on key
func (s *RedisIdempotencyStore) takeToken(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.tokens[key]
	delete(s.tokens, key)
	return token
}

// Lookup returns the completed result stored under key
func (s *RedisIdempotencyStore) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	var record redisRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	if record.Status != recordCompleted {
		return nil, false, nil
	}
	return record.Payload, true, nil
}

// Reserve claims key for ttl
// Uses SETNX (SET if Not eXists) for atomic operation
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, pendingRecord(token), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		s.mu.Lock()
		s.tokens[key] = token
		s.mu.Unlock()
	}
	return ok, nil
}

// Complete overwrites our reservation with the result for ttl.
// Returns ErrReservationLost when another caller holds the key.
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	raw, err := json.Marshal(redisRecord{Status: recordCompleted, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	owned := pendingRecord(s.takeToken(key))
	written, err := completeScript.Run(ctx, s.client, []string{s.keyPrefix + key},
		owned, string(raw), ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if written == 0 {
		return ErrReservationLost
	}
	return nil
}

// Release deletes the key if it still holds our pending reservation
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	owned := pendingRecord(s.takeToken(key))
	if err := releaseScript.Run(ctx, s.client, []string{s.keyPrefix + key}, owned).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisIdempotencyStore) GetClient() *redis.Client {
	return s.client
}

// Ensure RedisIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
