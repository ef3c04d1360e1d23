package persistence

import (
	"context"

	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxWriter writes events into the outbox using the caller's transaction
type OutboxWriter interface {
	PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error
}

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db     *gorm.DB
	outbox OutboxWriter
}

// NewGormTransactionScope creates a new GormTransactionScope. A nil outbox
// discards recorded events.
func NewGormTransactionScope(db *gorm.DB, outbox OutboxWriter) *GormTransactionScope {
	return &GormTransactionScope{db: db, outbox: outbox}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinvoicing.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx, outbox: s.outbox}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx     *gorm.DB
	outbox OutboxWriter
}

// InvoiceRepo returns the invoice repository scoped to the current transaction.
func (r *gormTransactionalRepositories) InvoiceRepo() invoicing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

// PaymentRepo returns the payment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) PaymentRepo() invoicing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

// CustomerRepo returns the customer repository scoped to the current transaction.
func (r *gormTransactionalRepositories) CustomerRepo() invoicing.CustomerRepository {
	return NewGormCustomerRepository(r.tx)
}

// Events returns an event recorder that writes to the outbox in the current transaction.
func (r *gormTransactionalRepositories) Events() appinvoicing.EventRecorder {
	return txEventRecorder{tx: r.tx, outbox: r.outbox}
}

type txEventRecorder struct {
	tx     *gorm.DB
	outbox OutboxWriter
}

func (e txEventRecorder) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if e.outbox == nil || len(events) == 0 {
		return nil
	}
	return e.outbox.PublishWithTx(ctx, e.tx, events...)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appinvoicing.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appinvoicing.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
