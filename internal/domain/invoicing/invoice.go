package invoicing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

const aggregateTypeInvoice = "Invoice"

// Invoice is the aggregate root for a bill sent to a customer.
//
// Totals and Balance are derived. They are recomputed from the line items on
// every line item mutation and only ApplyPayment lowers Balance afterwards.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber string
	CustomerID    uuid.UUID
	IssueDate     time.Time
	DueDate       time.Time
	PaymentTerms  string
	Currency      valueobject.Currency
	Status        InvoiceStatus
	Notes         string
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	TotalAmount   decimal.Decimal
	Balance       decimal.Decimal
	SentAt        *time.Time
	PaidAt        *time.Time
	lineItems     []LineItem
}

// NewInvoice creates a Draft invoice with no line items and zero totals
func NewInvoice(
	invoiceNumber string,
	customerID uuid.UUID,
	issueDate time.Time,
	dueDate time.Time,
	paymentTerms string,
	currency valueobject.Currency,
) (*Invoice, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return nil, NewValidationError("Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, NewValidationError("Invoice number cannot exceed 50 characters")
	}
	if customerID == uuid.Nil {
		return nil, NewValidationError("Customer ID cannot be empty")
	}
	if issueDate.IsZero() {
		return nil, NewValidationError("Issue date is required")
	}
	if err := validateDueDate(issueDate, dueDate); err != nil {
		return nil, err
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		CustomerID:        customerID,
		IssueDate:         issueDate,
		DueDate:           dueDate,
		PaymentTerms:      strings.TrimSpace(paymentTerms),
		Currency:          currency,
		Status:            InvoiceStatusDraft,
		Subtotal:          decimal.Zero,
		TotalDiscount:     decimal.Zero,
		TotalTax:          decimal.Zero,
		TotalAmount:       decimal.Zero,
		Balance:           decimal.Zero,
		lineItems:         make([]LineItem, 0),
	}

	inv.Raise(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

func validateDueDate(issueDate, dueDate time.Time) error {
	if dueDate.IsZero() {
		return NewValidationError("Due date is required")
	}
	if truncateToDay(dueDate).Before(truncateToDay(issueDate)) {
		return NewValidationError("Due date cannot be before issue date")
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RestoreLineItems sets the line items of an invoice loaded from storage.
// Stored totals are kept as is and no events are raised.
func (i *Invoice) RestoreLineItems(items []LineItem) {
	i.lineItems = append(make([]LineItem, 0, len(items)), items...)
}

// LineItems returns a copy of the line items in order
func (i *Invoice) LineItems() []LineItem {
	return append(make([]LineItem, 0, len(i.lineItems)), i.lineItems...)
}

// LineItem returns the line item with the given id
func (i *Invoice) LineItem(id string) (LineItem, bool) {
	idx := i.indexOf(id)
	if idx < 0 {
		return LineItem{}, false
	}
	return i.lineItems[idx], true
}

func (i *Invoice) indexOf(id string) int {
	for idx, item := range i.lineItems {
		if item.ID() == id {
			return idx
		}
	}
	return -1
}

func (i *Invoice) ensureEditable() error {
	if i.Status != InvoiceStatusDraft {
		return NewImmutableError("Cannot modify line items after invoice is sent")
	}
	return nil
}

// AddLineItem appends an item. Draft only.
func (i *Invoice) AddLineItem(item LineItem) error {
	if err := i.ensureEditable(); err != nil {
		return err
	}
	if item.ID() == "" {
		return NewValidationError("Line item must be constructed with NewLineItem")
	}
	if i.indexOf(item.ID()) >= 0 {
		return NewValidationError("Line item %s already exists on invoice", item.ID())
	}

	i.lineItems = append(i.lineItems, item)
	i.recalculate()
	i.Raise(NewLineItemAddedEvent(i, item))
	return nil
}

// RemoveLineItem removes the item with the given id. Draft only.
func (i *Invoice) RemoveLineItem(id string) error {
	if err := i.ensureEditable(); err != nil {
		return err
	}
	idx := i.indexOf(id)
	if idx < 0 {
		return shared.NewDomainError(CodeLineItemMissing, "Line item not found: "+id)
	}

	removed := i.lineItems[idx]
	i.lineItems = append(i.lineItems[:idx], i.lineItems[idx+1:]...)
	i.recalculate()
	i.Raise(NewLineItemRemovedEvent(i, removed))
	return nil
}

// UpdateLineItem replaces the item with the given id, keeping its id and
// position. Draft only.
func (i *Invoice) UpdateLineItem(id string, item LineItem) error {
	if err := i.ensureEditable(); err != nil {
		return err
	}
	idx := i.indexOf(id)
	if idx < 0 {
		return shared.NewDomainError(CodeLineItemMissing, "Line item not found: "+id)
	}

	previous := i.lineItems[idx]
	replacement := item.withID(id)
	i.lineItems[idx] = replacement
	i.recalculate()
	i.Raise(NewLineItemUpdatedEvent(i, previous, replacement))
	return nil
}

// recalculate derives all totals from the current line items. While Draft the
// balance tracks the total.
func (i *Invoice) recalculate() {
	subtotal := decimal.Zero
	discount := decimal.Zero
	tax := decimal.Zero
	total := decimal.Zero
	for _, item := range i.lineItems {
		subtotal = subtotal.Add(item.Subtotal())
		discount = discount.Add(item.DiscountAmount())
		tax = tax.Add(item.TaxAmount())
		total = total.Add(item.Total())
	}
	i.Subtotal = subtotal
	i.TotalDiscount = discount
	i.TotalTax = tax
	i.TotalAmount = total
	i.Balance = total
	i.Touch()
}

// UpdateDetails edits the non-financial header fields. Draft only.
func (i *Invoice) UpdateDetails(dueDate time.Time, paymentTerms, notes string) error {
	if i.Status != InvoiceStatusDraft {
		return NewInvalidStateError("Cannot edit details of %s invoice", i.Status.Label())
	}
	if err := validateDueDate(i.IssueDate, dueDate); err != nil {
		return err
	}
	i.DueDate = dueDate
	i.PaymentTerms = strings.TrimSpace(paymentTerms)
	i.Notes = notes
	i.Touch()
	i.Raise(NewInvoiceDetailsUpdatedEvent(i))
	return nil
}

// transitionTo moves the invoice along the state machine and raises the
// status changed event
func (i *Invoice) transitionTo(next InvoiceStatus) error {
	if !i.Status.CanTransitionTo(next) {
		return NewInvalidStateError("Cannot transition invoice from %s to %s", i.Status.Label(), next.Label())
	}
	previous := i.Status
	i.Status = next
	now := time.Now()
	switch next {
	case InvoiceStatusSent:
		i.SentAt = &now
	case InvoiceStatusPaid:
		i.PaidAt = &now
	}
	i.UpdatedAt = now
	i.Raise(NewInvoiceStatusChangedEvent(i, previous, next))
	return nil
}

// MarkAsSent issues the invoice. It must be Draft with at least one line item.
// From here on Balance starts at TotalAmount and line items are frozen.
func (i *Invoice) MarkAsSent() error {
	if i.Status != InvoiceStatusDraft {
		return NewInvalidStateError("Can only send Draft invoices, invoice is %s", i.Status.Label())
	}
	if len(i.lineItems) == 0 {
		return NewInvalidStateError("Cannot send invoice without line items")
	}
	i.Balance = i.TotalAmount
	return i.transitionTo(InvoiceStatusSent)
}

// MarkAsPaid closes a Sent invoice whose balance is zero within tolerance
func (i *Invoice) MarkAsPaid() error {
	if i.Status != InvoiceStatusSent {
		return NewInvalidStateError("Can only mark Sent invoices as Paid")
	}
	if !IsWithinRoundingTolerance(i.Balance) {
		return NewInvalidStateError("Cannot mark as Paid with outstanding balance")
	}
	i.Balance = decimal.Zero
	return i.transitionTo(InvoiceStatusPaid)
}

// ApplyPayment lowers the balance by amount. When the remaining balance is
// zero within tolerance the invoice moves to Paid.
func (i *Invoice) ApplyPayment(amount decimal.Decimal) error {
	if i.Status != InvoiceStatusSent {
		return NewInvalidStateError("Cannot apply payment to %s invoice", i.Status.Label())
	}
	if !amount.IsPositive() {
		return NewValidationError("Payment amount must be positive")
	}
	if amount.GreaterThan(i.Balance) {
		return NewValidationError("Payment amount cannot exceed invoice balance")
	}

	previous := i.Balance
	newBalance := i.Balance.Sub(amount)
	settled := IsWithinRoundingTolerance(newBalance)
	if settled {
		newBalance = decimal.Zero
	}
	i.Balance = newBalance
	i.Touch()
	i.Raise(NewInvoiceBalanceChangedEvent(i, previous, amount))

	if settled {
		return i.transitionTo(InvoiceStatusPaid)
	}
	return nil
}

// CanBeSent returns true if the invoice is Draft and has line items
func (i *Invoice) CanBeSent() bool {
	return i.Status == InvoiceStatusDraft && len(i.lineItems) > 0
}

// CanBePaid returns true if the invoice is Sent and fully settled
func (i *Invoice) CanBePaid() bool {
	return i.Status == InvoiceStatusSent && IsWithinRoundingTolerance(i.Balance)
}

// CanAcceptPayment returns true if payments may be applied
func (i *Invoice) CanAcceptPayment() bool {
	return i.Status == InvoiceStatusSent
}

// AmountPaid is the portion of the total already settled
func (i *Invoice) AmountPaid() decimal.Decimal {
	if i.Status == InvoiceStatusDraft {
		return decimal.Zero
	}
	return i.TotalAmount.Sub(i.Balance)
}

// TotalMoney returns the total in the invoice currency. It fails for an
// invoice restored without a currency.
func (i *Invoice) TotalMoney() (valueobject.Money, error) {
	return valueobject.NewMoney(i.TotalAmount, i.Currency)
}

func (i *Invoice) BalanceMoney() (valueobject.Money, error) {
	return valueobject.NewMoney(i.Balance, i.Currency)
}

// IsOverdue returns true if the invoice is unpaid past its due date
func (i *Invoice) IsOverdue() bool {
	return i.Status == InvoiceStatusSent && time.Now().After(i.DueDate)
}
