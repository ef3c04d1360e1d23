package invoicing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
)

// Error codes returned by the invoicing application services
const (
	CodeInvoiceNotFound             = "INVOICE_NOT_FOUND"
	CodeInvoiceNotAcceptingPayments = "INVOICE_NOT_ACCEPTING_PAYMENTS"
	CodePaymentExceedsBalance       = "PAYMENT_EXCEEDS_BALANCE"
	CodeIdempotencyInProgress       = "IDEMPOTENCY_IN_PROGRESS"
	CodeCustomerNotFound            = "CUSTOMER_NOT_FOUND"
	CodeConcurrencyConflict         = "CONCURRENCY_CONFLICT"
)

// Sentinels for errors.Is checks
var (
	ErrInvoiceNotFound             = shared.NewDomainError(CodeInvoiceNotFound, "Invoice not found")
	ErrInvoiceNotAcceptingPayments = shared.NewDomainError(CodeInvoiceNotAcceptingPayments, "Invoice is not accepting payments")
	ErrPaymentExceedsBalance       = shared.NewDomainError(CodePaymentExceedsBalance, "Payment amount exceeds invoice balance")
	ErrIdempotencyInProgress       = shared.NewDomainError(CodeIdempotencyInProgress, "A request with this idempotency key is still in progress")
	ErrCustomerNotFound            = shared.NewDomainError(CodeCustomerNotFound, "Customer not found")
)

func invoiceNotFound(id uuid.UUID) error {
	return shared.NewDomainError(CodeInvoiceNotFound, fmt.Sprintf("Invoice %s not found", id))
}

func customerNotFound(id uuid.UUID) error {
	return shared.NewDomainError(CodeCustomerNotFound, fmt.Sprintf("Customer %s not found", id))
}

func notAcceptingPayments(status invoicing.InvoiceStatus) error {
	return shared.NewDomainError(CodeInvoiceNotAcceptingPayments,
		fmt.Sprintf("Cannot apply payment to %s invoice", status.Label()))
}

// translatePaymentError maps reconciliation rejections to application codes
func translatePaymentError(err error) error {
	var ipe *invoicing.InvalidPaymentError
	if !errors.As(err, &ipe) {
		return err
	}
	if ipe.ExceedsBalance() {
		return shared.NewDomainError(CodePaymentExceedsBalance, ipe.Message)
	}
	return shared.NewDomainError(CodeInvoiceNotAcceptingPayments, ipe.Message)
}

// isBusinessError reports whether err is a rule violation rather than an
// infrastructure failure
func isBusinessError(err error) bool {
	return shared.ErrorCode(err) != ""
}
