package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countOutbox(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).Count(&n).Error)
	return n
}

// dueEntries claims everything the relay would pick up next
func dueEntries(t *testing.T, db *gorm.DB) []*shared.OutboxEntry {
	t.Helper()
	now := time.Now()
	entries, err := NewGormOutboxRepository(db).ClaimDue(context.Background(), now.Add(time.Second), now, 100)
	require.NoError(t, err)
	return entries
}

func TestOutboxPublisher_PublishWithTx(t *testing.T) {
	db := setupSQLiteDB(t)
	serializer := NewEventSerializer()
	Register[testEvent](serializer, "TestEvent")
	publisher := NewOutboxPublisher(serializer)
	ctx := context.Background()

	events := []shared.DomainEvent{newTestEvent("TestEvent"), newTestEvent("TestEvent"), newTestEvent("TestEvent")}

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx, events...)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), countOutbox(t, db))

	pending := dueEntries(t, db)
	require.Len(t, pending, 3)

	restored, err := serializer.Deserialize(pending[0].EventType, pending[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "test data", restored.(*testEvent).Data)
}

func TestOutboxPublisher_PublishWithTx_EmptyEvents(t *testing.T) {
	db := setupSQLiteDB(t)
	publisher := NewOutboxPublisher(NewEventSerializer())

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(context.Background(), tx)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(0), countOutbox(t, db))
}

func TestOutboxPublisher_PublishWithTx_TransactionRollback(t *testing.T) {
	db := setupSQLiteDB(t)
	serializer := NewEventSerializer()
	Register[testEvent](serializer, "TestEvent")
	publisher := NewOutboxPublisher(serializer)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := publisher.PublishWithTx(context.Background(), tx, newTestEvent("TestEvent")); err != nil {
			return err
		}
		return errors.New("aggregate save failed")
	})

	require.Error(t, err)
	assert.Equal(t, int64(0), countOutbox(t, db), "rolled back transaction must not leave outbox rows")
}

func TestOutboxPublisher_WithMaxAttempts(t *testing.T) {
	db := setupSQLiteDB(t)
	serializer := NewEventSerializer()
	Register[testEvent](serializer, "TestEvent")
	ctx := context.Background()

	publisher := NewOutboxPublisher(serializer, WithMaxAttempts(9))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx, newTestEvent("TestEvent"))
	}))

	pending := dueEntries(t, db)
	require.Len(t, pending, 1)
	assert.Equal(t, 9, pending[0].MaxAttempts)
}

func TestOutboxPublisher_DefaultMaxAttempts(t *testing.T) {
	publisher := NewOutboxPublisher(NewEventSerializer(), WithMaxAttempts(0))
	assert.Equal(t, shared.DefaultMaxAttempts, publisher.maxAttempts)
}

func TestOutboxPublisher_PublishWithTx_UnknownEventType(t *testing.T) {
	db := setupSQLiteDB(t)
	publisher := NewOutboxPublisher(NewEventSerializer())

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(context.Background(), tx, newTestEvent("TestEvent"))
	})

	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.Equal(t, int64(0), countOutbox(t, db))
}
