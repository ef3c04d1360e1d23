package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormIdempotencyStore implements IdempotencyStore on the idempotency_records table.
// The primary key on idempotency_key makes Reserve atomic across instances.
type GormIdempotencyStore struct {
	db *gorm.DB
}

// NewGormIdempotencyStore creates a new GormIdempotencyStore
func NewGormIdempotencyStore(db *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{db: db}
}

// Lookup returns the completed result stored under key
func (s *GormIdempotencyStore) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	var record models.IdempotencyRecordModel
	err := s.db.WithContext(ctx).
		Where("idempotency_key = ? AND status = ? AND expires_at > ?", key, models.IdempotencyStatusCompleted, time.Now()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return record.Payload, true, nil
}

// Reserve claims key for ttl. An expired record for the same key is replaced.
func (s *GormIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	db := s.db.WithContext(ctx)

	if err := db.Where("idempotency_key = ? AND expires_at <= ?", key, now).
		Delete(&models.IdempotencyRecordModel{}).Error; err != nil {
		return false, fmt.Errorf("failed to purge expired idempotency key: %w", err)
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&models.IdempotencyRecordModel{
		Key:       key,
		Status:    models.IdempotencyStatusPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if result.Error != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Complete stores payload under key for ttl
func (s *GormIdempotencyStore) Complete(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "payload", "expires_at", "updated_at"}),
	}).Create(&models.IdempotencyRecordModel{
		Key:       key,
		Status:    models.IdempotencyStatusCompleted,
		Payload:   payload,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release deletes the key if it is still pending
func (s *GormIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).
		Where("idempotency_key = ? AND status = ?", key, models.IdempotencyStatusPending).
		Delete(&models.IdempotencyRecordModel{}).Error; err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// DeleteExpired removes records whose retention has elapsed
func (s *GormIdempotencyStore) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.IdempotencyRecordModel{})
	return result.RowsAffected, result.Error
}

// Close is a no-op; the connection pool belongs to Database
func (s *GormIdempotencyStore) Close() error {
	return nil
}

// Ensure GormIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*GormIdempotencyStore)(nil)
