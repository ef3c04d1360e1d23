package cli

import (
	"context"
	"fmt"

	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/cache"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"github.com/invoicing/backend/internal/infrastructure/event"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"github.com/invoicing/backend/internal/infrastructure/persistence"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the services the commands run against
type App struct {
	Invoices *appinvoicing.InvoiceService
	Payments *appinvoicing.RecordPaymentService
	Outbox   shared.OutboxRepository
	Logger   *zap.Logger

	closers []func() error
}

// Close releases the store and the database connection
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AppFactory builds the App for one command invocation
type AppFactory func(ctx context.Context, opts *GlobalOptions) (*App, error)

// NewApp wires the invoicing services on db. Events are written to the outbox
// in the same transaction as the aggregates.
func NewApp(db *gorm.DB, cfg *config.Config, store shared.IdempotencyStore, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	metrics, err := telemetry.NewPaymentMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment metrics: %w", err)
	}

	outbox := event.NewOutboxPublisher(event.NewRegisteredSerializer(), event.WithMaxAttempts(cfg.Event.MaxAttempts))
	scope := persistence.NewGormTransactionScope(db, outbox)

	payments := appinvoicing.NewRecordPaymentService(scope, appinvoicing.RecordPaymentConfig{
		TransactionTimeout: cfg.Payment.TransactionTimeout,
		MaxConflictRetries: cfg.Payment.MaxConflictRetries,
		IdempotencyTTL:     cfg.Idempotency.TTL,
		PollInterval:       cfg.Idempotency.PollInterval,
	}, log,
		appinvoicing.WithIdempotencyStore(store),
		appinvoicing.WithPaymentMetrics(metrics),
	)

	invoices := appinvoicing.NewInvoiceService(
		persistence.NewGormInvoiceRepository(db),
		persistence.NewGormPaymentRepository(db),
		persistence.NewGormCustomerRepository(db),
		scope,
		log,
	)

	app := &App{
		Invoices: invoices,
		Payments: payments,
		Outbox:   event.NewGormOutboxRepository(db),
		Logger:   log,
	}
	if store != nil {
		app.closers = append(app.closers, store.Close)
	}
	return app, nil
}

// defaultAppFactory connects to PostgreSQL and the configured idempotency backend
func defaultAppFactory(ctx context.Context, opts *GlobalOptions) (*App, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	flush := func() error { return tp.Shutdown(context.Background()) }

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		_ = flush()
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		_ = flush()
		return nil, err
	}

	store, err := cache.NewIdempotencyStoreFactory(cfg.Idempotency, cfg.Redis,
		cache.WithLogger(log),
		cache.WithDatabase(db.DB),
	).CreateStore()
	if err != nil {
		_ = db.Close()
		_ = flush()
		return nil, err
	}

	app, err := NewApp(db.DB, cfg, store, log)
	if err != nil {
		_ = store.Close()
		_ = db.Close()
		_ = flush()
		return nil, err
	}
	app.closers = append([]func() error{db.Close}, app.closers...)
	app.closers = append(app.closers, func() error {
		_ = log.Sync()
		return nil
	})
	// Runs first so spans from the command are exported before teardown
	app.closers = append(app.closers, flush)
	return app, nil
}
