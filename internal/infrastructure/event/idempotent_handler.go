package event

import (
	"context"
	"time"

	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const handledKeyPrefix = "event:"

// IdempotentHandler runs the wrapped handler at most once per event ID. The
// outbox relay redelivers after failures and crashes, so any subscriber with
// side effects sits behind one of these.
type IdempotentHandler struct {
	next    shared.EventHandler
	store   shared.IdempotencyStore
	ttl     time.Duration
	metrics *telemetry.EventMetrics
	logger  *zap.Logger
}

type IdempotentHandlerOption func(*IdempotentHandler)

// WithHandledTTL sets how long a handled event ID is remembered
func WithHandledTTL(ttl time.Duration) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

func WithEventMetrics(m *telemetry.EventMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = m
	}
}

func NewIdempotentHandler(next shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		next:   next,
		store:  store,
		ttl:    shared.DefaultIdempotencyConfig().TTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle reserves the event ID before running the wrapped handler. A failure
// releases the reservation so the relay's next attempt runs it again. If the
// store itself is unreachable the event is handled anyway: a duplicate audit
// line is preferable to a lost one.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	key := handledKeyPrefix + event.EventID().String()
	log := h.logger.With(
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)

	reserved, err := h.store.Reserve(ctx, key, h.ttl)
	switch {
	case err != nil:
		log.Warn("Idempotency store unavailable, handling without dedupe", zap.Error(err))
		return h.run(ctx, event, log)
	case !reserved:
		h.metrics.Delivered(ctx, event.EventType(), telemetry.OutcomeDuplicate)
		log.Debug("Skipping already handled event")
		return nil
	}

	if err := h.run(ctx, event, log); err != nil {
		if releaseErr := h.store.Release(ctx, key); releaseErr != nil {
			log.Warn("Failed to release event reservation", zap.Error(releaseErr))
		}
		return err
	}

	if err := h.store.Complete(ctx, key, nil, h.ttl); err != nil {
		log.Warn("Failed to mark event handled", zap.Error(err))
	}
	return nil
}

func (h *IdempotentHandler) run(ctx context.Context, event shared.DomainEvent, log *zap.Logger) error {
	if err := h.next.Handle(ctx, event); err != nil {
		h.metrics.Delivered(ctx, event.EventType(), telemetry.OutcomeFailed)
		log.Error("Event handler failed", zap.Error(err))
		return err
	}
	h.metrics.Delivered(ctx, event.EventType(), telemetry.OutcomeHandled)
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
