package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/shopspring/decimal"
)

// RecordPaymentRequest is the caller-facing payment command
type RecordPaymentRequest struct {
	InvoiceID      uuid.UUID       `json:"invoice_id" validate:"required"`
	PaymentDate    time.Time       `json:"payment_date" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"payment_method" validate:"required,oneof=CREDIT_CARD BANK_TRANSFER CHECK CASH"`
	Reference      string          `json:"reference,omitempty" validate:"max=100"`
	Notes          string          `json:"notes,omitempty" validate:"max=2000"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" validate:"max=200"`
}

// PaymentResult is the enriched outcome of a recorded payment. It is also the
// value cached under the idempotency key.
type PaymentResult struct {
	PaymentID        uuid.UUID       `json:"payment_id"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentDate      time.Time       `json:"payment_date"`
	Reference        string          `json:"reference"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	InvoiceStatus    string          `json:"invoice_status"`
	InvoiceNumber    string          `json:"invoice_number"`
	CustomerName     string          `json:"customer_name"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	// Replayed is set when the result came from the idempotency store
	Replayed bool `json:"-"`
}

func newPaymentResult(p *invoicing.Payment, inv *invoicing.Invoice, customerName string) *PaymentResult {
	return &PaymentResult{
		PaymentID:        p.ID,
		InvoiceID:        inv.ID,
		Amount:           p.Amount,
		PaymentMethod:    p.Method.String(),
		PaymentDate:      p.PaymentDate,
		Reference:        p.Reference,
		RemainingBalance: inv.Balance,
		InvoiceStatus:    inv.Status.String(),
		InvoiceNumber:    inv.InvoiceNumber,
		CustomerName:     customerName,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
	}
}

// storedPaymentResult rebuilds the result of an earlier call from the payment
// it recorded. Balance and status are the ones that payment left behind.
func storedPaymentResult(p *invoicing.Payment, inv *invoicing.Invoice, customerName string) *PaymentResult {
	result := newPaymentResult(p, inv, customerName)
	result.RemainingBalance = p.BalanceAfter
	result.InvoiceStatus = invoicing.InvoiceStatusSent.String()
	if p.SettledInvoice() {
		result.InvoiceStatus = invoicing.InvoiceStatusPaid.String()
	}
	result.Replayed = true
	return result
}

// PaymentResponse is a stored payment
type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	PaymentDate   time.Time       `json:"payment_date"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toPaymentResponse(p *invoicing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		PaymentDate:   p.PaymentDate,
		Amount:        p.Amount,
		PaymentMethod: p.Method.String(),
		Reference:     p.Reference,
		Notes:         p.Notes,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     p.CreatedAt,
	}
}

// LineItemRequest describes one billed line
type LineItemRequest struct {
	Description     string          `json:"description" validate:"required,max=500"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
}

func (r LineItemRequest) toDomain(id string) (invoicing.LineItem, error) {
	return invoicing.NewLineItem(invoicing.LineItemInput{
		ID:              id,
		Description:     r.Description,
		Quantity:        r.Quantity,
		UnitPrice:       r.UnitPrice,
		DiscountPercent: r.DiscountPercent,
		TaxRate:         r.TaxRate,
	})
}

// CreateInvoiceRequest creates a Draft invoice. An empty InvoiceNumber gets the
// next number in sequence; a zero IssueDate means today.
type CreateInvoiceRequest struct {
	InvoiceNumber string            `json:"invoice_number,omitempty" validate:"max=50"`
	CustomerID    uuid.UUID         `json:"customer_id" validate:"required"`
	IssueDate     time.Time         `json:"issue_date"`
	DueDate       time.Time         `json:"due_date" validate:"required"`
	PaymentTerms  string            `json:"payment_terms,omitempty" validate:"max=100"`
	Currency      string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes         string            `json:"notes,omitempty" validate:"max=2000"`
	LineItems     []LineItemRequest `json:"line_items,omitempty" validate:"dive"`
}

// AddLineItemRequest appends a line to a Draft invoice
type AddLineItemRequest struct {
	InvoiceID       uuid.UUID       `json:"invoice_id" validate:"required"`
	ExpectedVersion int             `json:"expected_version" validate:"gt=0"`
	Item            LineItemRequest `json:"item"`
}

// UpdateLineItemRequest replaces a line on a Draft invoice
type UpdateLineItemRequest struct {
	InvoiceID       uuid.UUID       `json:"invoice_id" validate:"required"`
	ExpectedVersion int             `json:"expected_version" validate:"gt=0"`
	LineItemID      string          `json:"line_item_id" validate:"required"`
	Item            LineItemRequest `json:"item"`
}

// RemoveLineItemRequest removes a line from a Draft invoice
type RemoveLineItemRequest struct {
	InvoiceID       uuid.UUID `json:"invoice_id" validate:"required"`
	ExpectedVersion int       `json:"expected_version" validate:"gt=0"`
	LineItemID      string    `json:"line_item_id" validate:"required"`
}

// UpdateDetailsRequest edits the header of a Draft invoice
type UpdateDetailsRequest struct {
	InvoiceID       uuid.UUID `json:"invoice_id" validate:"required"`
	ExpectedVersion int       `json:"expected_version" validate:"gt=0"`
	DueDate         time.Time `json:"due_date" validate:"required"`
	PaymentTerms    string    `json:"payment_terms" validate:"max=100"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

// InvoiceTransitionRequest targets a status change
type InvoiceTransitionRequest struct {
	InvoiceID       uuid.UUID `json:"invoice_id" validate:"required"`
	ExpectedVersion int       `json:"expected_version" validate:"gt=0"`
}

// CreateCustomerRequest creates a customer
type CreateCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// CustomerResponse is a stored customer
type CustomerResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCustomerResponse(c *invoicing.Customer) CustomerResponse {
	return CustomerResponse{ID: c.ID, Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt}
}

// LineItemResponse is a line item with its derived amounts
type LineItemResponse struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
}

// InvoiceResponse is an invoice with its line items
type InvoiceResponse struct {
	ID            uuid.UUID          `json:"id"`
	InvoiceNumber string             `json:"invoice_number"`
	CustomerID    uuid.UUID          `json:"customer_id"`
	IssueDate     time.Time          `json:"issue_date"`
	DueDate       time.Time          `json:"due_date"`
	PaymentTerms  string             `json:"payment_terms,omitempty"`
	Currency      string             `json:"currency"`
	Status        string             `json:"status"`
	Notes         string             `json:"notes,omitempty"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	TotalDiscount decimal.Decimal    `json:"total_discount"`
	TotalTax      decimal.Decimal    `json:"total_tax"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	Balance       decimal.Decimal    `json:"balance"`
	AmountPaid    decimal.Decimal    `json:"amount_paid"`
	IsOverdue     bool               `json:"is_overdue"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	LineItems     []LineItemResponse `json:"line_items"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Version       int                `json:"version"`
}

// InvoiceListResponse is one page of invoices
type InvoiceListResponse struct {
	Items    []InvoiceResponse `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ListInvoicesRequest filters the invoice list
type ListInvoicesRequest struct {
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	Status     string     `json:"status,omitempty" validate:"omitempty,oneof=DRAFT SENT PAID"`
	Page       int        `json:"page" validate:"gte=0"`
	PageSize   int        `json:"page_size" validate:"gte=0,lte=100"`
	OrderBy    string     `json:"order_by,omitempty"`
	OrderDir   string     `json:"order_dir,omitempty" validate:"omitempty,oneof=asc desc"`
}

func toInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	items := inv.LineItems()
	lines := make([]LineItemResponse, 0, len(items))
	for _, item := range items {
		lines = append(lines, LineItemResponse{
			ID:              item.ID(),
			Description:     item.Description(),
			Quantity:        item.Quantity(),
			UnitPrice:       item.UnitPrice(),
			DiscountPercent: item.DiscountPercent(),
			TaxRate:         item.TaxRate(),
			Subtotal:        item.Subtotal(),
			DiscountAmount:  item.DiscountAmount(),
			TaxAmount:       item.TaxAmount(),
			Total:           item.Total(),
		})
	}
	return InvoiceResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		CustomerID:    inv.CustomerID,
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		PaymentTerms:  inv.PaymentTerms,
		Currency:      string(inv.Currency),
		Status:        inv.Status.String(),
		Notes:         inv.Notes,
		Subtotal:      inv.Subtotal,
		TotalDiscount: inv.TotalDiscount,
		TotalTax:      inv.TotalTax,
		TotalAmount:   inv.TotalAmount,
		Balance:       inv.Balance,
		AmountPaid:    inv.AmountPaid(),
		IsOverdue:     inv.IsOverdue(),
		SentAt:        inv.SentAt,
		PaidAt:        inv.PaidAt,
		LineItems:     lines,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		Version:       inv.Version,
	}
}
