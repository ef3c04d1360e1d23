package invoicing

import (
	"context"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// PaymentAuditHandler writes one structured audit line per relayed payment
// and per invoice status change
type PaymentAuditHandler struct {
	logger *zap.Logger
}

// NewPaymentAuditHandler creates a PaymentAuditHandler
func NewPaymentAuditHandler(zapLogger *zap.Logger) *PaymentAuditHandler {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &PaymentAuditHandler{logger: zapLogger.Named("payment_audit")}
}

// EventTypes implements shared.EventHandler
func (h *PaymentAuditHandler) EventTypes() []string {
	return []string{invoicing.EventTypePaymentRecorded, invoicing.EventTypeInvoiceStatusChanged}
}

// Handle implements shared.EventHandler
func (h *PaymentAuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	log := logger.Ctx(ctx, h.logger).With(
		zap.String("event_id", event.EventID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	)

	switch e := event.(type) {
	case *invoicing.PaymentRecordedEvent:
		log.Info("Payment recorded",
			zap.String("payment_id", e.PaymentID.String()),
			zap.String("invoice_id", e.InvoiceID.String()),
			zap.String("amount", e.Amount.StringFixed(2)),
			zap.String("new_balance", e.NewBalance.StringFixed(2)),
			zap.String("new_status", string(e.NewStatus)),
		)
	case *invoicing.InvoiceStatusChangedEvent:
		log.Info("Invoice status changed",
			zap.String("invoice_id", e.InvoiceID.String()),
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("from", string(e.From)),
			zap.String("to", string(e.To)),
		)
	default:
		log.Debug("Ignoring event", zap.String("event_type", event.EventType()))
	}
	return nil
}

var _ shared.EventHandler = (*PaymentAuditHandler)(nil)
