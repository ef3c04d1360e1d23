package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeInvoiceCreated        = "InvoiceCreated"
	EventTypeLineItemAdded         = "InvoiceLineItemAdded"
	EventTypeLineItemRemoved       = "InvoiceLineItemRemoved"
	EventTypeLineItemUpdated       = "InvoiceLineItemUpdated"
	EventTypeInvoiceDetailsUpdated = "InvoiceDetailsUpdated"
	EventTypeInvoiceStatusChanged  = "InvoiceStatusChanged"
	EventTypeInvoiceBalanceChanged = "InvoiceBalanceChanged"
	EventTypePaymentRecorded       = "PaymentRecorded"
)

// LineItemSnapshot is the serialized form of a line item inside events
type LineItemSnapshot struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	Total           decimal.Decimal `json:"total"`
}

func snapshotOf(item LineItem) LineItemSnapshot {
	return LineItemSnapshot{
		ID:              item.ID(),
		Description:     item.Description(),
		Quantity:        item.Quantity(),
		UnitPrice:       item.UnitPrice(),
		DiscountPercent: item.DiscountPercent(),
		TaxRate:         item.TaxRate(),
		Total:           item.Total(),
	}
}

// InvoiceCreatedEvent is raised when a Draft invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	CustomerID    uuid.UUID `json:"customer_id"`
	IssueDate     time.Time `json:"issue_date"`
	DueDate       time.Time `json:"due_date"`
}

func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, aggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerID:      inv.CustomerID,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
	}
}

// LineItemAddedEvent is raised when a line item is appended
type LineItemAddedEvent struct {
	shared.BaseDomainEvent
	InvoiceID   uuid.UUID        `json:"invoice_id"`
	LineItem    LineItemSnapshot `json:"line_item"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
}

func NewLineItemAddedEvent(inv *Invoice, item LineItem) *LineItemAddedEvent {
	return &LineItemAddedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLineItemAdded, aggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		LineItem:        snapshotOf(item),
		TotalAmount:     inv.TotalAmount,
	}
}

// LineItemRemovedEvent is raised when a line item is removed
type LineItemRemovedEvent struct {
	shared.BaseDomainEvent
	InvoiceID   uuid.UUID        `json:"invoice_id"`
	LineItem    LineItemSnapshot `json:"line_item"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
}

func NewLineItemRemovedEvent(inv *Invoice, item LineItem) *LineItemRemovedEvent {
	return &LineItemRemovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLineItemRemoved, aggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		LineItem:        snapshotOf(item),
		TotalAmount:     inv.TotalAmount,
	}
}

// LineItemUpdatedEvent is raised when a line item is replaced
type LineItemUpdatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID   uuid.UUID        `json:"invoice_id"`
	Previous    LineItemSnapshot `json:"previous"`
	Current     LineItemSnapshot `json:"current"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
}

func NewLineItemUpdatedEvent(inv *Invoice, previous, current LineItem) *LineItemUpdatedEvent {
	return &LineItemUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLineItemUpdated, aggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		Previous:        snapshotOf(previous),
		Current:         snapshotOf(current),
		TotalAmount:     inv.TotalAmount,
	}
}

// InvoiceDetailsUpdatedEvent is raised when due date, terms or notes change
type InvoiceDetailsUpdatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID    uuid.UUID `json:"invoice_id"`
	DueDate      time.Time `json:"due_date"`
	PaymentTerms string    `json:"payment_terms"`
}

func NewInvoiceDetailsUpdatedEvent(inv *Invoice) *InvoiceDetailsUpdatedEvent {
	return &InvoiceDetailsUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceDetailsUpdated, aggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		DueDate:         inv.DueDate,
		PaymentTerms:    inv.PaymentTerms,
	}
}

// InvoiceStatusChangedEvent is raised on every state machine transition
type InvoiceStatusChangedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID     `json:"invoice_id"`
	InvoiceNumber string        `json:"invoice_number"`
	From          InvoiceStatus `json:"from"`
	To            InvoiceStatus `json:"to"`
}

func NewInvoiceStatusChangedEvent(inv *Invoice, from, to InvoiceStatus) *InvoiceStatusChangedEvent {
	return &InvoiceStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceStatusChanged, aggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		From:            from,
		To:              to,
	}
}

// InvoiceBalanceChangedEvent is raised when a payment lowers the balance
type InvoiceBalanceChangedEvent struct {
	shared.BaseDomainEvent
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	PaymentAmount   decimal.Decimal `json:"payment_amount"`
}

func NewInvoiceBalanceChangedEvent(inv *Invoice, previous, amount decimal.Decimal) *InvoiceBalanceChangedEvent {
	return &InvoiceBalanceChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceBalanceChanged, aggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		PreviousBalance: previous,
		NewBalance:      inv.Balance,
		PaymentAmount:   amount,
	}
}
