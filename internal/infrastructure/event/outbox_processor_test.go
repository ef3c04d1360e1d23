package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingPublisher collects published events and fails while err is set
type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	calls     int
	published []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, events...)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type relayFixture struct {
	repo       *GormOutboxRepository
	serializer *EventSerializer
	publisher  *recordingPublisher
	processor  *OutboxProcessor
	clock      time.Time
}

func newRelayFixture(t *testing.T, config OutboxProcessorConfig) *relayFixture {
	t.Helper()
	f := &relayFixture{
		repo:       NewGormOutboxRepository(setupSQLiteDB(t)),
		serializer: NewEventSerializer(),
		publisher:  &recordingPublisher{},
		clock:      time.Now().UTC().Truncate(time.Second),
	}
	Register[testEvent](f.serializer, "TestEvent")
	f.processor = NewOutboxProcessor(f.repo, f.publisher, f.serializer, config, zap.NewNop())
	f.processor.now = func() time.Time { return f.clock }
	return f
}

func (f *relayFixture) enqueue(t *testing.T, maxAttempts int) *shared.OutboxEntry {
	t.Helper()
	ev := newTestEvent("TestEvent")
	payload, err := f.serializer.Serialize(ev)
	require.NoError(t, err)
	entry := shared.NewOutboxEntry(ev, payload, maxAttempts)
	entry.AvailableAt = f.clock
	require.NoError(t, f.repo.Save(context.Background(), entry))
	return entry
}

func (f *relayFixture) load(t *testing.T, id uuid.UUID) *shared.OutboxEntry {
	t.Helper()
	entry, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return entry
}

func TestOutboxProcessor_ProcessBatch_Delivers(t *testing.T) {
	f := newRelayFixture(t, DefaultOutboxProcessorConfig())
	entry := f.enqueue(t, 5)

	claimed, err := f.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)

	require.Equal(t, 1, f.publisher.count())
	assert.Equal(t, entry.EventID, f.publisher.published[0].EventID())

	stored := f.load(t, entry.ID)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
	require.NotNil(t, stored.DeliveredAt)

	claimed, err = f.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, claimed, "sent entries are not relayed again")
}

func TestOutboxProcessor_ProcessBatch_FailureSchedulesRetry(t *testing.T) {
	config := DefaultOutboxProcessorConfig()
	config.Retry = shared.RetryPolicy{Base: time.Second, Max: time.Minute}
	f := newRelayFixture(t, config)
	entry := f.enqueue(t, 5)
	f.publisher.err = errors.New("broker unavailable")

	_, err := f.processor.ProcessBatch(context.Background())
	require.NoError(t, err)

	stored := f.load(t, entry.ID)
	assert.Equal(t, shared.OutboxStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "broker unavailable", stored.LastError)
	assert.True(t, stored.AvailableAt.Equal(f.clock.Add(time.Second)))

	claimed, err := f.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, claimed, "entry is not due before its backoff elapses")

	f.publisher.err = nil
	f.clock = f.clock.Add(2 * time.Second)
	claimed, err = f.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, shared.OutboxStatusSent, f.load(t, entry.ID).Status)
}

func TestOutboxProcessor_ProcessBatch_DeadLettersAfterMaxAttempts(t *testing.T) {
	config := DefaultOutboxProcessorConfig()
	config.Retry = shared.RetryPolicy{Base: time.Second, Max: time.Second}
	f := newRelayFixture(t, config)
	entry := f.enqueue(t, 2)
	f.publisher.err = errors.New("still down")

	for i := 0; i < 2; i++ {
		_, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		f.clock = f.clock.Add(time.Minute)
	}

	stored := f.load(t, entry.ID)
	assert.Equal(t, shared.OutboxStatusDead, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, 2, f.publisher.calls)

	claimed, err := f.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, claimed)
}

func TestOutboxProcessor_ProcessBatch_UnknownEventType(t *testing.T) {
	f := newRelayFixture(t, DefaultOutboxProcessorConfig())
	entry := shared.NewOutboxEntry(newTestEvent("Unregistered"), []byte(`{}`), 5)
	entry.AvailableAt = f.clock
	require.NoError(t, f.repo.Save(context.Background(), entry))

	_, err := f.processor.ProcessBatch(context.Background())
	require.NoError(t, err)

	stored := f.load(t, entry.ID)
	assert.Equal(t, shared.OutboxStatusPending, stored.Status)
	assert.Contains(t, stored.LastError, "unknown event type")
	assert.Zero(t, f.publisher.calls)
}

func TestOutboxProcessor_ProcessBatch_RecoversStaleClaims(t *testing.T) {
	config := DefaultOutboxProcessorConfig()
	config.ClaimTimeout = time.Minute
	f := newRelayFixture(t, config)
	entry := f.enqueue(t, 5)
	ctx := context.Background()

	// A relay that claims and then dies leaves the row PROCESSING.
	claimed, err := f.repo.ClaimDue(ctx, f.clock, f.clock.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := f.processor.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh claims belong to the other relay")

	f.clock = f.clock.Add(2 * time.Minute)
	n, err = f.processor.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, shared.OutboxStatusSent, f.load(t, entry.ID).Status)
}

func TestOutboxProcessor_DrainsFullBatches(t *testing.T) {
	config := DefaultOutboxProcessorConfig()
	config.BatchSize = 2
	f := newRelayFixture(t, config)
	for i := 0; i < 5; i++ {
		f.enqueue(t, 5)
	}

	f.processor.drain(context.Background())

	assert.Equal(t, 5, f.publisher.count())
	counts, err := f.repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts[shared.OutboxStatusSent])
}

func TestOutboxProcessor_RelaysToBus(t *testing.T) {
	db := setupSQLiteDB(t)
	serializer := NewEventSerializer()
	Register[testEvent](serializer, "TestEvent")
	repo := NewGormOutboxRepository(db)

	ev := newTestEvent("TestEvent")
	payload, err := serializer.Serialize(ev)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), shared.NewOutboxEntry(ev, payload, 0)))

	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler, "TestEvent")

	config := DefaultOutboxProcessorConfig()
	config.PollInterval = 20 * time.Millisecond
	config.CleanupEnabled = false
	processor := NewOutboxProcessor(repo, bus, serializer, config, zap.NewNop())

	require.NoError(t, processor.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(handler.getHandled()) == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(stopCtx))
	assert.Equal(t, ev.EventID(), handler.getHandled()[0].EventID())
}

func TestOutboxProcessor_Cleanup(t *testing.T) {
	config := DefaultOutboxProcessorConfig()
	config.CleanupRetention = time.Hour
	f := newRelayFixture(t, config)
	ctx := context.Background()

	old := f.enqueue(t, 5)
	_, err := f.processor.ProcessBatch(ctx)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)
	recent := f.enqueue(t, 5)
	_, err = f.processor.ProcessBatch(ctx)
	require.NoError(t, err)

	f.processor.cleanup(ctx)

	_, err = f.repo.FindByID(ctx, old.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, shared.OutboxStatusSent, f.load(t, recent.ID).Status)
}

func TestNewOutboxProcessor_FillsDefaults(t *testing.T) {
	p := NewOutboxProcessor(nil, nil, NewEventSerializer(), OutboxProcessorConfig{}, zap.NewNop())

	defaults := DefaultOutboxProcessorConfig()
	assert.Equal(t, defaults.BatchSize, p.config.BatchSize)
	assert.Equal(t, defaults.PollInterval, p.config.PollInterval)
	assert.Equal(t, defaults.ClaimTimeout, p.config.ClaimTimeout)
	assert.Equal(t, defaults.Retry, p.config.Retry)
}
