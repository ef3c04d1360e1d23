package invoicing

import (
	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const aggregateTypePayment = "Payment"

// PaymentRecordedEvent is emitted once a payment and the invoice it settles
// have been committed together
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID  uuid.UUID       `json:"payment_id"`
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	NewStatus  InvoiceStatus   `json:"new_status"`
}

func NewPaymentRecordedEvent(p *Payment, inv *Invoice) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, aggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		InvoiceID:       inv.ID,
		Amount:          p.Amount,
		NewBalance:      inv.Balance,
		NewStatus:       inv.Status,
	}
}
