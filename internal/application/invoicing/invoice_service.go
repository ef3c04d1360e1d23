package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// InvoiceService handles customer and invoice use cases. Every invoice
// mutation names the version it was computed against and fails with
// CONCURRENCY_CONFLICT when the invoice has moved on.
type InvoiceService struct {
	invoiceRepo  invoicing.InvoiceRepository
	paymentRepo  invoicing.PaymentRepository
	customerRepo invoicing.CustomerRepository
	scope        TransactionScope
	logger       *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo invoicing.InvoiceRepository,
	paymentRepo invoicing.PaymentRepository,
	customerRepo invoicing.CustomerRepository,
	scope TransactionScope,
	zapLogger *zap.Logger,
) *InvoiceService {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &InvoiceService{
		invoiceRepo:  invoiceRepo,
		paymentRepo:  paymentRepo,
		customerRepo: customerRepo,
		scope:        scope,
		logger:       zapLogger,
	}
}

// CreateCustomer creates a customer
func (s *InvoiceService) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*CustomerResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	customer, err := invoicing.NewCustomer(req.Name, req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.customerRepo.Save(ctx, customer); err != nil {
		return nil, fmt.Errorf("save customer: %w", err)
	}
	resp := toCustomerResponse(customer)
	return &resp, nil
}

// GetCustomer returns a customer by ID
func (s *InvoiceService) GetCustomer(ctx context.Context, id uuid.UUID) (*CustomerResponse, error) {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, customerNotFound(id)
		}
		return nil, err
	}
	resp := toCustomerResponse(customer)
	return &resp, nil
}

// CreateInvoice creates a Draft invoice for an existing customer
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()

	if err := validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	issueDate := req.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}

	var invoice *invoicing.Invoice
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.CustomerRepo().FindByID(ctx, req.CustomerID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return customerNotFound(req.CustomerID)
			}
			return fmt.Errorf("load customer: %w", err)
		}

		number := req.InvoiceNumber
		if number == "" {
			generated, err := repos.InvoiceRepo().GenerateInvoiceNumber(ctx)
			if err != nil {
				return fmt.Errorf("generate invoice number: %w", err)
			}
			number = generated
		}

		inv, err := invoicing.NewInvoice(number, req.CustomerID, issueDate, req.DueDate,
			req.PaymentTerms, valueobject.Currency(req.Currency))
		if err != nil {
			return err
		}
		inv.Notes = req.Notes
		for _, line := range req.LineItems {
			item, err := line.toDomain("")
			if err != nil {
				return err
			}
			if err := inv.AddLineItem(item); err != nil {
				return err
			}
		}

		if err := repos.InvoiceRepo().Save(ctx, inv); err != nil {
			return fmt.Errorf("save invoice: %w", err)
		}
		if err := repos.Events().Record(ctx, inv.PullDomainEvents()...); err != nil {
			return fmt.Errorf("record invoice events: %w", err)
		}
		invoice = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.AttrInvoiceID, invoice.ID.String(),
		telemetry.AttrInvoiceNumber, invoice.InvoiceNumber,
	)
	logger.Ctx(ctx, s.logger).Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	resp := toInvoiceResponse(invoice)
	return &resp, nil
}

// AddLineItem appends a line to a Draft invoice
func (s *InvoiceService) AddLineItem(ctx context.Context, req AddLineItemRequest) (*InvoiceResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, req.InvoiceID, req.ExpectedVersion, "add_line_item", func(inv *invoicing.Invoice) error {
		item, err := req.Item.toDomain("")
		if err != nil {
			return err
		}
		return inv.AddLineItem(item)
	})
}

// UpdateLineItem replaces a line on a Draft invoice
func (s *InvoiceService) UpdateLineItem(ctx context.Context, req UpdateLineItemRequest) (*InvoiceResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, req.InvoiceID, req.ExpectedVersion, "update_line_item", func(inv *invoicing.Invoice) error {
		item, err := req.Item.toDomain(req.LineItemID)
		if err != nil {
			return err
		}
		return inv.UpdateLineItem(req.LineItemID, item)
	})
}

// RemoveLineItem removes a line from a Draft invoice
func (s *InvoiceService) RemoveLineItem(ctx context.Context, req RemoveLineItemRequest) (*InvoiceResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, req.InvoiceID, req.ExpectedVersion, "remove_line_item", func(inv *invoicing.Invoice) error {
		return inv.RemoveLineItem(req.LineItemID)
	})
}

// UpdateDetails edits due date, payment terms and notes of a Draft invoice
func (s *InvoiceService) UpdateDetails(ctx context.Context, req UpdateDetailsRequest) (*InvoiceResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, req.InvoiceID, req.ExpectedVersion, "update_details", func(inv *invoicing.Invoice) error {
		return inv.UpdateDetails(req.DueDate, req.PaymentTerms, req.Notes)
	})
}

// SendInvoice moves a Draft invoice to Sent
func (s *InvoiceService) SendInvoice(ctx context.Context, req InvoiceTransitionRequest) (*InvoiceResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, req.InvoiceID, req.ExpectedVersion, "send", func(inv *invoicing.Invoice) error {
		return inv.MarkAsSent()
	})
}

// MarkInvoicePaid closes a Sent invoice whose balance is already settled
func (s *InvoiceService) MarkInvoicePaid(ctx context.Context, req InvoiceTransitionRequest) (*InvoiceResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, req.InvoiceID, req.ExpectedVersion, "mark_paid", func(inv *invoicing.Invoice) error {
		return inv.MarkAsPaid()
	})
}

// mutate loads the invoice, checks the caller's version, applies fn and saves
// with the version compare. Drained events go to the outbox in the same
// transaction.
func (s *InvoiceService) mutate(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int,
	operation string,
	fn func(inv *invoicing.Invoice) error,
) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", operation, telemetry.AttrInvoiceID, id.String())
	defer span.End()

	var invoice *invoicing.Invoice
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := repos.InvoiceRepo().FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return invoiceNotFound(id)
			}
			return fmt.Errorf("load invoice: %w", err)
		}
		if inv.Version != expectedVersion {
			return shared.NewDomainError(CodeConcurrencyConflict, fmt.Sprintf(
				"Invoice %s is at version %d, request was made against version %d",
				id, inv.Version, expectedVersion))
		}
		if err := fn(inv); err != nil {
			return err
		}
		if err := repos.InvoiceRepo().SaveWithLock(ctx, inv); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				return err
			}
			return fmt.Errorf("save invoice: %w", err)
		}
		if err := repos.Events().Record(ctx, inv.PullDomainEvents()...); err != nil {
			return fmt.Errorf("record invoice events: %w", err)
		}
		invoice = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		log := logger.Ctx(ctx, s.logger).With(
			zap.String("invoice_id", id.String()),
			zap.String("operation", operation),
		)
		if isBusinessError(err) {
			log.Warn("invoice change rejected", zap.String("code", shared.ErrorCode(err)), zap.Error(err))
		} else {
			log.Error("invoice change failed", zap.Error(err))
		}
		return nil, err
	}

	resp := toInvoiceResponse(invoice)
	return &resp, nil
}

// GetInvoice returns an invoice with its line items
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, invoiceNotFound(id)
		}
		return nil, err
	}
	resp := toInvoiceResponse(inv)
	return &resp, nil
}

// ListInvoices returns one page of invoices
func (s *InvoiceService) ListInvoices(ctx context.Context, req ListInvoicesRequest) (*InvoiceListResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	filter := invoicing.InvoiceFilter{
		CustomerID: req.CustomerID,
		Page:       req.Page,
		PageSize:   req.PageSize,
		OrderBy:    req.OrderBy,
		OrderDir:   req.OrderDir,
	}
	if req.Status != "" {
		status, err := invoicing.ParseInvoiceStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}

	invoices, total, err := s.invoiceRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		items = append(items, toInvoiceResponse(&invoices[i]))
	}
	return &InvoiceListResponse{Items: items, Total: total, Page: req.Page, PageSize: req.PageSize}, nil
}

// ListPayments returns the payments of an invoice ordered by payment date
func (s *InvoiceService) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.invoiceRepo.FindByID(ctx, invoiceID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, invoiceNotFound(invoiceID)
		}
		return nil, err
	}
	payments, err := s.paymentRepo.FindByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	resp := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}
	return resp, nil
}
