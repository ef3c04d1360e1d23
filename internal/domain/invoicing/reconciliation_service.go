package invoicing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundingTolerance is the absolute balance below which an invoice counts as
// fully paid. It absorbs residue from the per-line discount and tax rounding.
var RoundingTolerance = decimal.New(1, -2)

// IsWithinRoundingTolerance returns true if |balance| < RoundingTolerance
func IsWithinRoundingTolerance(balance decimal.Decimal) bool {
	return balance.Abs().LessThan(RoundingTolerance)
}

// PaymentReconciliationService checks a payment against the invoice it is
// meant for. It holds no state.
type PaymentReconciliationService struct{}

// NewPaymentReconciliationService creates a reconciliation service
func NewPaymentReconciliationService() *PaymentReconciliationService {
	return &PaymentReconciliationService{}
}

// ValidatePaymentAgainstInvoice succeeds for partial and exact payments on a
// Sent invoice and returns an InvalidPaymentError otherwise
func (s *PaymentReconciliationService) ValidatePaymentAgainstInvoice(payment *Payment, invoice *Invoice) error {
	if payment == nil {
		return &InvalidPaymentError{Message: "Payment is required"}
	}
	if invoice == nil {
		return &InvalidPaymentError{Message: "Invoice is required", Amount: payment.Amount}
	}
	if payment.InvoiceID != invoice.ID {
		return &InvalidPaymentError{
			Message: fmt.Sprintf("Payment references invoice %s, not %s", payment.InvoiceID, invoice.ID),
			Amount:  payment.Amount,
			Balance: invoice.Balance,
			Status:  invoice.Status,
		}
	}
	return s.ValidateAmount(payment.Amount, invoice)
}

// ValidateAmount checks an amount against the invoice before any payment is
// built: the invoice must be Sent and the amount must not exceed its balance
func (s *PaymentReconciliationService) ValidateAmount(amount decimal.Decimal, invoice *Invoice) error {
	if invoice == nil {
		return &InvalidPaymentError{Message: "Invoice is required", Amount: amount}
	}
	if !invoice.CanAcceptPayment() {
		return &InvalidPaymentError{
			Message: fmt.Sprintf("Cannot apply payment to %s invoice", invoice.Status.Label()),
			Amount:  amount,
			Balance: invoice.Balance,
			Status:  invoice.Status,
		}
	}
	if amount.GreaterThan(invoice.Balance) {
		return &InvalidPaymentError{
			Message: fmt.Sprintf("Payment amount %s exceeds invoice balance %s",
				amount.StringFixed(2), invoice.Balance.StringFixed(2)),
			Amount:  amount,
			Balance: invoice.Balance,
			Status:  invoice.Status,
		}
	}
	return nil
}

// CalculateNewBalance returns invoice.Balance − amount without touching the invoice
func (s *PaymentReconciliationService) CalculateNewBalance(invoice *Invoice, amount decimal.Decimal) (decimal.Decimal, error) {
	if invoice == nil {
		return decimal.Zero, NewValidationError("Invoice is required")
	}
	return invoice.Balance.Sub(amount), nil
}

// ShouldMarkAsPaid reports whether balance is zero within RoundingTolerance
func (s *PaymentReconciliationService) ShouldMarkAsPaid(balance decimal.Decimal) bool {
	return IsWithinRoundingTolerance(balance)
}
