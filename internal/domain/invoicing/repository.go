package invoicing

import (
	"context"

	"github.com/google/uuid"
)

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	CustomerID *uuid.UUID
	Status     *InvoiceStatus
	Page       int
	PageSize   int
	OrderBy    string
	OrderDir   string
}

// InvoiceRepository persists Invoice aggregates together with their line items
type InvoiceRepository interface {
	// FindByID finds an invoice by ID. Returns shared.ErrNotFound if absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForUpdate finds an invoice and locks its row until the
	// surrounding transaction ends. Only meaningful inside a transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByNumber finds an invoice by its invoice number
	FindByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)

	// FindAll lists invoices matching the filter, newest first
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, int64, error)

	// Save inserts a new invoice with its line items
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock updates an existing invoice if its stored version still
	// equals invoice.Version, then increments invoice.Version. A mismatch
	// returns shared.ErrConcurrencyConflict.
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// GenerateInvoiceNumber returns the next number in the INV-YYYY-NNNNN sequence
	GenerateInvoiceNumber(ctx context.Context) (string, error)
}

// PaymentRepository persists payments. Payments are append only.
type PaymentRepository interface {
	// Save inserts a payment
	Save(ctx context.Context, payment *Payment) error

	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByInvoiceID lists payments for an invoice ordered by payment date
	FindByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)

	// FindByIdempotencyKey finds the payment recorded under a caller's retry key
	FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
}

// CustomerRepository persists customers
type CustomerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	Save(ctx context.Context, customer *Customer) error
}
