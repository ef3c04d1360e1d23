package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSerializer_Register(t *testing.T) {
	s := NewEventSerializer()
	Register[testEvent](s, "TestEvent")
	Register[testEvent](s, "AnotherTestEvent")

	assert.True(t, s.Knows("TestEvent"))
	assert.False(t, s.Knows("UnknownEvent"))
	assert.Equal(t, []string{"AnotherTestEvent", "TestEvent"}, s.Types())
}

func TestEventSerializer_SerializeRejectsUnknownTypes(t *testing.T) {
	s := NewEventSerializer()

	_, err := s.Serialize(newTestEvent("TestEvent"))

	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestEventSerializer_PayloadIsPlainJSON(t *testing.T) {
	s := NewRegisteredSerializer()
	paymentID := uuid.New()
	event := &invoicing.PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(invoicing.EventTypePaymentRecorded, "Payment", paymentID),
		PaymentID:       paymentID,
		InvoiceID:       uuid.New(),
		Amount:          decimal.RequireFromString("120.50"),
		NewBalance:      decimal.RequireFromString("365.50"),
		NewStatus:       invoicing.InvoiceStatusSent,
	}

	data, err := s.Serialize(event)

	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"120.5"`)
	assert.Contains(t, string(data), `"new_status":"SENT"`)
	assert.Contains(t, string(data), paymentID.String())
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	s := NewEventSerializer()
	Register[testEvent](s, "TestEvent")

	original := &testEvent{
		BaseDomainEvent: shared.BaseDomainEvent{
			ID:        uuid.New(),
			Type:      "TestEvent",
			Timestamp: time.Now().Truncate(time.Second),
			AggID:     uuid.New(),
			AggType:   "TestAggregate",
		},
		Data: "important data",
	}

	data, err := s.Serialize(original)
	require.NoError(t, err)
	restored, err := s.Deserialize("TestEvent", data)
	require.NoError(t, err)

	got, ok := restored.(*testEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), got.EventID())
	assert.Equal(t, original.AggregateID(), got.AggregateID())
	assert.Equal(t, original.AggregateType(), got.AggregateType())
	assert.True(t, original.OccurredAt().Equal(got.OccurredAt()))
	assert.Equal(t, "important data", got.Data)
}

func TestEventSerializer_Deserialize_Errors(t *testing.T) {
	s := NewEventSerializer()
	Register[testEvent](s, "TestEvent")

	_, err := s.Deserialize("UnknownEvent", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = s.Deserialize("TestEvent", []byte(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal TestEvent")
}
