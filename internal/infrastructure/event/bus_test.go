package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEvent is a minimal event used across the package tests
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test data",
	}
}

// testHandler records what it was given and fails with err when set
type testHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_RoutesByEventType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	payments := newTestHandler(invoicing.EventTypePaymentRecorded)
	statuses := newTestHandler(invoicing.EventTypeInvoiceStatusChanged)
	everything := newTestHandler()
	bus.Subscribe(payments)
	bus.Subscribe(statuses)
	bus.Subscribe(everything)

	recorded := newTestEvent(invoicing.EventTypePaymentRecorded)
	changed := newTestEvent(invoicing.EventTypeInvoiceStatusChanged)
	created := newTestEvent(invoicing.EventTypeInvoiceCreated)
	require.NoError(t, bus.Publish(context.Background(), recorded, changed, created))

	assert.Equal(t, []shared.DomainEvent{recorded}, payments.getHandled())
	assert.Equal(t, []shared.DomainEvent{changed}, statuses.getHandled())
	assert.Equal(t, []shared.DomainEvent{recorded, changed, created}, everything.getHandled())
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler(invoicing.EventTypePaymentRecorded)
	bus.Subscribe(h, invoicing.EventTypeInvoiceCreated)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent(invoicing.EventTypePaymentRecorded),
		newTestEvent(invoicing.EventTypeInvoiceCreated),
	))

	handled := h.getHandled()
	require.Len(t, handled, 1)
	assert.Equal(t, invoicing.EventTypeInvoiceCreated, handled[0].EventType())
}

func TestInMemoryEventBus_SubscribeTwiceDeliversOnce(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("TestEvent")
	bus.Subscribe(h)
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))
	assert.Len(t, h.getHandled(), 1)
}

func TestInMemoryEventBus_HandlerFailureIsReturned(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler("TestEvent")
	failing.setError(errors.New("ledger unavailable"))
	healthy := newTestHandler("TestEvent")
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("TestEvent"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger unavailable")
	assert.Len(t, healthy.getHandled(), 1, "later handlers still run")
}

func TestInMemoryEventBus_PanicBecomesError(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("TestEvent")
	h.panicWith = "boom"
	bus.Subscribe(h)

	err := bus.Publish(context.Background(), newTestEvent("TestEvent"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("TestEvent", "OtherEvent")
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))
	bus.Unsubscribe(h)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent"), newTestEvent("OtherEvent")))

	assert.Len(t, h.getHandled(), 1)
}

func TestInMemoryEventBus_StopRejectsPublish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, bus.Stop(ctx))
	assert.ErrorIs(t, bus.Publish(ctx, newTestEvent("TestEvent")), ErrBusStopped)

	require.NoError(t, bus.Start(ctx))
	assert.NoError(t, bus.Publish(ctx, newTestEvent("TestEvent")))
}
