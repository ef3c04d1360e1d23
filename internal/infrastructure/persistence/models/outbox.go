package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
)

// OutboxEntryModel is a row of outbox_events. The (status, available_at) index
// serves the relay's due-entry scan. Fields mirror shared.OutboxEntry one to
// one so the two convert directly.
type OutboxEntryModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_outbox_events_event_id"`
	EventType     string              `gorm:"type:varchar(255);not null"`
	AggregateID   uuid.UUID           `gorm:"type:uuid;not null"`
	AggregateType string              `gorm:"type:varchar(255);not null"`
	Payload       []byte              `gorm:"type:jsonb;not null"`
	Status        shared.OutboxStatus `gorm:"type:varchar(20);not null;default:PENDING;index:idx_outbox_events_due,priority:1"`
	Attempts      int                 `gorm:"not null;default:0"`
	MaxAttempts   int                 `gorm:"not null;default:5"`
	LastError     string              `gorm:"type:text"`
	AvailableAt   time.Time           `gorm:"not null;index:idx_outbox_events_due,priority:2"`
	DeliveredAt   *time.Time          `gorm:"index:idx_outbox_events_delivered_at"`
	CreatedAt     time.Time           `gorm:"not null"`
	UpdatedAt     time.Time           `gorm:"not null"`
}

func (OutboxEntryModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the row to a domain OutboxEntry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	e := shared.OutboxEntry(*m)
	return &e
}

// OutboxEntryModelFromDomain converts a domain OutboxEntry to a row
func OutboxEntryModelFromDomain(e *shared.OutboxEntry) *OutboxEntryModel {
	m := OutboxEntryModel(*e)
	return &m
}
