package invoicing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer paid
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodCash         PaymentMethod = "CASH"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodCheck, PaymentMethodCash:
		return true
	}
	return false
}

func (m PaymentMethod) String() string {
	return string(m)
}

// Payment is an immutable record of money received against one invoice.
// It has no mutating methods; corrections are out of band.
type Payment struct {
	shared.BaseEntity
	InvoiceID   uuid.UUID
	PaymentDate time.Time
	Amount      decimal.Decimal
	Method      PaymentMethod
	Reference   string
	Notes       string
	CreatedBy   string
	// IdempotencyKey is the caller's retry key, empty when none was sent.
	// At most one payment exists per key.
	IdempotencyKey string
	// BalanceAfter is the invoice balance this payment left behind
	BalanceAfter decimal.Decimal
}

// CreatePayment validates every field before building the payment
func CreatePayment(
	invoiceID uuid.UUID,
	paymentDate time.Time,
	amount decimal.Decimal,
	method PaymentMethod,
	reference string,
	notes string,
	createdBy string,
) (*Payment, error) {
	if invoiceID == uuid.Nil {
		return nil, NewValidationError("Invoice ID is required")
	}
	if !amount.IsPositive() {
		return nil, NewValidationError("Payment amount must be positive")
	}
	if !amount.Equal(valueobject.RoundMoney(amount)) {
		return nil, NewValidationError("Payment amount cannot have more than %d decimal places", valueobject.MoneyScale)
	}
	if paymentDate.IsZero() {
		return nil, NewValidationError("Payment date is required")
	}
	if isAfterToday(paymentDate) {
		return nil, NewValidationError("Payment date cannot be in the future")
	}
	if !method.IsValid() {
		return nil, NewValidationError("Invalid payment method: %s", method)
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return nil, NewValidationError("Created by is required")
	}
	reference = strings.TrimSpace(reference)
	if len(reference) > 100 {
		return nil, NewValidationError("Payment reference cannot exceed 100 characters")
	}

	return &Payment{
		BaseEntity:  shared.NewBaseEntity(),
		InvoiceID:   invoiceID,
		PaymentDate: paymentDate,
		Amount:      amount,
		Method:      method,
		Reference:   reference,
		Notes:       notes,
		CreatedBy:   createdBy,
	}, nil
}

// ApplyTo applies the payment to invoice and keeps the resulting balance
func (p *Payment) ApplyTo(invoice *Invoice) error {
	if p.InvoiceID != invoice.ID {
		return NewValidationError("Payment belongs to invoice %s", p.InvoiceID)
	}
	if err := invoice.ApplyPayment(p.Amount); err != nil {
		return err
	}
	p.BalanceAfter = invoice.Balance
	return nil
}

// SettledInvoice reports whether this payment left its invoice fully paid
func (p *Payment) SettledInvoice() bool {
	return IsWithinRoundingTolerance(p.BalanceAfter)
}

// isAfterToday compares calendar dates in the payment date's own location
func isAfterToday(date time.Time) bool {
	today := truncateToDay(time.Now().In(date.Location()))
	return truncateToDay(date).After(today)
}

// AmountMoney returns the amount in the given invoice currency
func (p *Payment) AmountMoney(currency valueobject.Currency) (valueobject.Money, error) {
	return valueobject.NewMoney(p.Amount, currency)
}
