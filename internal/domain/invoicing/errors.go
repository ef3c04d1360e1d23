package invoicing

import (
	"errors"
	"fmt"

	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Error codes raised by the invoicing domain
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidState    = "INVALID_STATE"
	CodeImmutable       = "IMMUTABLE"
	CodeInvalidPayment  = "INVALID_PAYMENT"
	CodeLineItemMissing = "LINE_ITEM_NOT_FOUND"
)

// Sentinels for errors.Is checks. Matching is by code, so any error built with
// the corresponding constructor matches regardless of its message.
var (
	ErrValidation     = shared.NewDomainError(CodeValidation, "Validation failed")
	ErrInvalidState   = shared.NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrImmutable      = shared.NewDomainError(CodeImmutable, "Invoice can no longer be modified")
	ErrInvalidPayment = shared.NewDomainError(CodeInvalidPayment, "Payment cannot be applied to invoice")
)

// NewValidationError reports a malformed field at construction time
func NewValidationError(format string, args ...any) *shared.DomainError {
	return shared.NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewInvalidStateError reports an illegal status transition
func NewInvalidStateError(format string, args ...any) *shared.DomainError {
	return shared.NewDomainError(CodeInvalidState, fmt.Sprintf(format, args...))
}

// NewImmutableError reports a mutation attempt on a frozen invoice
func NewImmutableError(message string) *shared.DomainError {
	return shared.NewDomainError(CodeImmutable, message)
}

// InvalidPaymentError is a payment that is well formed on its own but cannot be
// applied to the invoice in its current state. It carries the offending amount
// together with the balance and status it was checked against.
type InvalidPaymentError struct {
	Message string
	Amount  decimal.Decimal
	Balance decimal.Decimal
	Status  InvoiceStatus
}

func (e *InvalidPaymentError) Error() string {
	return e.Message
}

// ErrorCode returns the domain error code
func (e *InvalidPaymentError) ErrorCode() string {
	return CodeInvalidPayment
}

// Is lets errors.Is(err, ErrInvalidPayment) match
func (e *InvalidPaymentError) Is(target error) bool {
	var de *shared.DomainError
	if errors.As(target, &de) {
		return de.Code == CodeInvalidPayment
	}
	return false
}

// ExceedsBalance reports whether the rejection was caused by the amount
// rather than the invoice status
func (e *InvalidPaymentError) ExceedsBalance() bool {
	return e.Status == InvoiceStatusSent && e.Amount.GreaterThan(e.Balance)
}
