package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	// OutboxStatusPending entries are waiting for their next attempt at AvailableAt
	OutboxStatusPending OutboxStatus = "PENDING"
	// OutboxStatusProcessing entries are claimed by a relay
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	// OutboxStatusDead entries exhausted MaxAttempts and wait for a manual requeue
	OutboxStatusDead OutboxStatus = "DEAD"
)

// DefaultMaxAttempts is how many deliveries an entry gets before it is dead-lettered
const DefaultMaxAttempts = 5

// ErrOutboxTransition is returned when an entry is moved out of order
var ErrOutboxTransition = errors.New("invalid outbox transition")

// RetryPolicy spaces failed deliveries exponentially: Base, 2*Base, 4*Base...
// capped at Max.
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultRetryPolicy starts at one second and never waits more than ten minutes
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: time.Second, Max: 10 * time.Minute}
}

// Delay returns the wait after the given failed attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// OutboxEntry is a serialized domain event stored next to the aggregate change
// that raised it and relayed to subscribers once that change has committed.
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	MaxAttempts   int
	LastError     string
	AvailableAt   time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps a serialized event as an entry that is due immediately
func NewOutboxEntry(event DomainEvent, payload []byte, maxAttempts int) *OutboxEntry {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxAttempts:   maxAttempts,
		AvailableAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *OutboxEntry) transition(to OutboxStatus, from ...OutboxStatus) error {
	for _, s := range from {
		if e.Status == s {
			e.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrOutboxTransition, e.Status, to)
}

// Claim marks a due entry as taken by a relay
func (e *OutboxEntry) Claim(now time.Time) error {
	if err := e.transition(OutboxStatusProcessing, OutboxStatusPending); err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

// Delivered records a successful publish
func (e *OutboxEntry) Delivered(now time.Time) error {
	if err := e.transition(OutboxStatusSent, OutboxStatusProcessing); err != nil {
		return err
	}
	e.DeliveredAt = &now
	e.LastError = ""
	e.UpdatedAt = now
	return nil
}

// Failed records a failed publish. The entry is rescheduled per policy, or
// dead-lettered once it has used MaxAttempts; the return value reports which.
func (e *OutboxEntry) Failed(cause error, now time.Time, policy RetryPolicy) (dead bool, err error) {
	if e.Status != OutboxStatusProcessing {
		return false, fmt.Errorf("%w: %s -> failed", ErrOutboxTransition, e.Status)
	}
	e.Attempts++
	e.LastError = cause.Error()
	e.UpdatedAt = now
	if e.Attempts >= e.MaxAttempts {
		e.Status = OutboxStatusDead
		return true, nil
	}
	e.Status = OutboxStatusPending
	e.AvailableAt = now.Add(policy.Delay(e.Attempts))
	return false, nil
}

// Requeue gives a dead entry a fresh set of attempts
func (e *OutboxEntry) Requeue(now time.Time) error {
	if err := e.transition(OutboxStatusPending, OutboxStatusDead); err != nil {
		return err
	}
	e.Attempts = 0
	e.LastError = ""
	e.AvailableAt = now
	e.UpdatedAt = now
	return nil
}

// OutboxRepository stores outbox entries for the relay
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// ClaimDue moves up to limit entries that are due at now into PROCESSING and
	// returns them. PROCESSING entries untouched since staleBefore are taken
	// over as well, which recovers rows from a relay that died mid-batch.
	ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// FindDead lists dead-lettered entries, most recently failed first
	FindDead(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// PurgeDelivered removes SENT entries delivered before the cutoff
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
