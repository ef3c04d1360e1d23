package cache

import (
	"fmt"

	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"github.com/invoicing/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Idempotency backends accepted in configuration
const (
	BackendDatabase = "database"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// IdempotencyStoreFactory creates idempotency stores based on configuration
type IdempotencyStoreFactory struct {
	idempotencyConfig     config.IdempotencyConfig
	redisConfig           config.RedisConfig
	db                    *gorm.DB
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory store when Redis is unavailable
// Default is false
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithDatabase supplies the connection used by the database backend
func WithDatabase(db *gorm.DB) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.db = db
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(idem config.IdempotencyConfig, redisCfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		idempotencyConfig: idem,
		redisConfig:       redisCfg,
		logger:            zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateStore creates the store named by the configured backend
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	switch f.idempotencyConfig.Backend {
	case BackendDatabase, "":
		if f.db == nil {
			return nil, fmt.Errorf("database idempotency backend requires a database connection")
		}
		f.logger.Info("using database idempotency store")
		return persistence.NewGormIdempotencyStore(f.db), nil
	case BackendRedis:
		return f.createRedisStore()
	case BackendMemory:
		f.logger.Warn("using in-memory idempotency store; keys are not shared across instances")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend: %s", f.idempotencyConfig.Backend)
	}
}

// createRedisStore connects to Redis, optionally falling back to memory
func (f *IdempotencyStoreFactory) createRedisStore() (shared.IdempotencyStore, error) {
	store, err := NewRedisIdempotencyStore(f.redisConfig, f.idempotencyConfig.KeyPrefix)
	if err == nil {
		f.logger.Info("using Redis idempotency store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"Retried payments may be applied twice across instances.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
