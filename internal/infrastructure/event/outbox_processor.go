package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/invoicing/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes the relay
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// ClaimTimeout is how long a PROCESSING entry may sit before another relay
	// takes it over
	ClaimTimeout     time.Duration
	Retry            shared.RetryPolicy
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     2 * time.Second,
		ClaimTimeout:     5 * time.Minute,
		Retry:            shared.DefaultRetryPolicy(),
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessor relays committed outbox entries to a publisher. An entry is
// SENT only after Publish succeeds, so subscribers may see an event twice and
// must dedupe on the event ID.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	defaults := DefaultOutboxProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ClaimTimeout <= 0 {
		config.ClaimTimeout = defaults.ClaimTimeout
	}
	if config.Retry.Base <= 0 {
		config.Retry = defaults.Retry
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	return &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		logger:     logger.Named("outbox"),
		now:        time.Now,
	}
}

// Start launches the relay and, when enabled, the cleanup loop. Both stop when
// ctx is cancelled or Stop is called.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.every(ctx, p.config.PollInterval, p.drain)
	if p.config.CleanupEnabled {
		p.every(ctx, p.config.CleanupInterval, p.cleanup)
	}

	p.logger.Info("Outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("claim_timeout", p.config.ClaimTimeout),
	)
	return nil
}

// Stop cancels the loops and waits for the current batch to finish
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// drain keeps claiming while batches come back full
func (p *OutboxProcessor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := p.ProcessBatch(ctx)
		if err != nil {
			p.logger.Error("Failed to claim outbox entries", zap.Error(err))
			return
		}
		if claimed < p.config.BatchSize {
			return
		}
	}
}

// ProcessBatch claims one batch of due entries and publishes each of them. It
// returns how many entries were claimed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	now := p.now()
	entries, err := p.repo.ClaimDue(ctx, now, now.Add(-p.config.ClaimTimeout), p.config.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		p.deliver(ctx, entry)
	}
	return len(entries), nil
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.Int("attempt", entry.Attempts+1),
	)

	err := p.publish(ctx, entry)
	if err == nil {
		err = entry.Delivered(p.now())
		if err == nil {
			err = p.repo.Update(ctx, entry)
		}
		if err != nil {
			// The row stays PROCESSING and is retaken after ClaimTimeout.
			log.Error("Failed to record outbox delivery", zap.Error(err))
			return
		}
		log.Debug("Outbox entry delivered")
		return
	}

	dead, markErr := entry.Failed(err, p.now(), p.config.Retry)
	if markErr != nil {
		log.Error("Failed to record outbox failure", zap.Error(errors.Join(err, markErr)))
		return
	}
	if dead {
		log.Warn("Outbox entry dead-lettered",
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Error(err),
		)
	} else {
		log.Info("Outbox delivery failed, retry scheduled",
			zap.Time("available_at", entry.AvailableAt),
			zap.Error(err),
		)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("Failed to save outbox entry", zap.Error(err))
	}
}

func (p *OutboxProcessor) publish(ctx context.Context, entry *shared.OutboxEntry) error {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, event)
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := p.now().Add(-p.config.CleanupRetention)
	purged, err := p.repo.PurgeDelivered(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to purge delivered outbox entries", zap.Error(err))
		return
	}
	if purged > 0 {
		p.logger.Info("Purged delivered outbox entries",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff),
		)
	}
}
