package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/cache"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"github.com/invoicing/backend/internal/infrastructure/event"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"github.com/invoicing/backend/internal/infrastructure/persistence"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	idempotencyCleanupInterval = time.Hour
	shutdownTimeout            = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()
	log = log.With(zap.String("service", cfg.Telemetry.ServiceName), zap.String("env", cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry), log)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	store, err := cache.NewIdempotencyStoreFactory(cfg.Idempotency, cfg.Redis,
		cache.WithLogger(log),
		cache.WithDatabase(db.DB),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore()
	if err != nil {
		return fmt.Errorf("failed to create idempotency store: %w", err)
	}
	defer store.Close()

	serializer := event.NewRegisteredSerializer()

	bus := event.NewInMemoryEventBus(log)
	eventMetrics, err := telemetry.NewEventMetrics(nil)
	if err != nil {
		return fmt.Errorf("failed to create event metrics: %w", err)
	}
	audit := event.NewIdempotentHandler(appinvoicing.NewPaymentAuditHandler(log), store, log,
		event.WithHandledTTL(cfg.Idempotency.TTL),
		event.WithEventMetrics(eventMetrics),
	)
	bus.Subscribe(audit)
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	defer func() {
		_ = bus.Stop(context.Background())
	}()

	sinks := []shared.EventPublisher{bus}
	if cfg.AMQP.Enabled {
		amqp, err := event.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, serializer, log)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		defer amqp.Close()
		sinks = append(sinks, amqp)
		log.Info("AMQP sink enabled", zap.String("exchange", cfg.AMQP.Exchange))
	}

	if cfg.Event.ProcessorEnabled {
		processor := event.NewOutboxProcessor(
			event.NewGormOutboxRepository(db.DB),
			event.NewFanoutPublisher(sinks...),
			serializer,
			event.OutboxProcessorConfig{
				BatchSize:        cfg.Event.BatchSize,
				PollInterval:     cfg.Event.PollInterval,
				ClaimTimeout:     cfg.Event.ClaimTimeout,
				CleanupEnabled:   cfg.Event.CleanupEnabled,
				CleanupRetention: cfg.Event.CleanupRetention,
			},
			log,
		)
		if err := processor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox processor: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := processor.Stop(stopCtx); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
	} else {
		log.Warn("Outbox processor disabled, events stay in the outbox")
	}

	if expiring, ok := store.(*persistence.GormIdempotencyStore); ok {
		go purgeExpiredKeys(ctx, expiring, log)
	}

	log.Info("Worker started")
	<-ctx.Done()
	log.Info("Shutting down worker")
	return nil
}

// purgeExpiredKeys deletes idempotency records whose TTL has passed
func purgeExpiredKeys(ctx context.Context, store *persistence.GormIdempotencyStore, log *zap.Logger) {
	ticker := time.NewTicker(idempotencyCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx)
			if err != nil {
				log.Error("Failed to delete expired idempotency keys", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("Deleted expired idempotency keys", zap.Int64("count", n))
			}
		}
	}
}
