package invoicing

import (
	"context"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
)

// TransactionScope provides transactional access to the invoicing repositories.
// Everything done through the repositories passed to fn is committed or rolled
// back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction. A non-nil error from fn
	// rolls the transaction back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Aggregate boundary notes:
//   - InvoiceRepo: the Invoice aggregate root. Line items are saved with it and
//     have no repository of their own.
//   - PaymentRepo: append only. A payment and the invoice it settles are always
//     written in the same transaction.
//   - Events: domain events written here are delivered only if the transaction
//     commits.
type TransactionalRepositories interface {
	InvoiceRepo() invoicing.InvoiceRepository
	PaymentRepo() invoicing.PaymentRepository
	CustomerRepo() invoicing.CustomerRepository
	Events() EventRecorder
}

// EventRecorder stores domain events for delivery after commit
type EventRecorder interface {
	Record(ctx context.Context, events ...shared.DomainEvent) error
}

// NoOpTransactionScope runs fn against the given repositories without a
// database transaction. Useful in tests.
type NoOpTransactionScope struct {
	invoiceRepo  invoicing.InvoiceRepository
	paymentRepo  invoicing.PaymentRepository
	customerRepo invoicing.CustomerRepository
	events       EventRecorder
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	invoiceRepo invoicing.InvoiceRepository,
	paymentRepo invoicing.PaymentRepository,
	customerRepo invoicing.CustomerRepository,
	events EventRecorder,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoiceRepo:  invoiceRepo,
		paymentRepo:  paymentRepo,
		customerRepo: customerRepo,
		events:       events,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) InvoiceRepo() invoicing.InvoiceRepository   { return s.invoiceRepo }
func (s *NoOpTransactionScope) PaymentRepo() invoicing.PaymentRepository   { return s.paymentRepo }
func (s *NoOpTransactionScope) CustomerRepo() invoicing.CustomerRepository { return s.customerRepo }
func (s *NoOpTransactionScope) Events() EventRecorder                      { return s.events }

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
