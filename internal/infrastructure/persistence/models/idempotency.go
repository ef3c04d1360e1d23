package models

import "time"

// IdempotencyStatus is the lifecycle of an idempotency record
type IdempotencyStatus string

const (
	IdempotencyStatusPending   IdempotencyStatus = "PENDING"
	IdempotencyStatusCompleted IdempotencyStatus = "COMPLETED"
)

// IdempotencyRecordModel is a reservation for one idempotency key.
// Payload holds the serialized result once Status is COMPLETED.
type IdempotencyRecordModel struct {
	Key       string            `gorm:"column:idempotency_key;type:varchar(255);primaryKey"`
	Status    IdempotencyStatus `gorm:"type:varchar(20);not null"`
	Payload   []byte
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IdempotencyRecordModel) TableName() string {
	return "idempotency_records"
}

// IsExpired reports whether the record no longer guards its key
func (m *IdempotencyRecordModel) IsExpired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// AllModels lists every model managed by this service, in dependency order
func AllModels() []any {
	return []any{
		&CustomerModel{},
		&InvoiceModel{},
		&InvoiceLineItemModel{},
		&PaymentModel{},
		&IdempotencyRecordModel{},
		&OutboxEntryModel{},
	}
}
