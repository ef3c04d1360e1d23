package event

import "github.com/invoicing/backend/internal/domain/invoicing"

// NewRegisteredSerializer returns a serializer that knows every invoicing event
func NewRegisteredSerializer() *EventSerializer {
	s := NewEventSerializer()

	Register[invoicing.InvoiceCreatedEvent](s, invoicing.EventTypeInvoiceCreated)
	Register[invoicing.InvoiceDetailsUpdatedEvent](s, invoicing.EventTypeInvoiceDetailsUpdated)
	Register[invoicing.InvoiceStatusChangedEvent](s, invoicing.EventTypeInvoiceStatusChanged)
	Register[invoicing.InvoiceBalanceChangedEvent](s, invoicing.EventTypeInvoiceBalanceChanged)

	Register[invoicing.LineItemAddedEvent](s, invoicing.EventTypeLineItemAdded)
	Register[invoicing.LineItemUpdatedEvent](s, invoicing.EventTypeLineItemUpdated)
	Register[invoicing.LineItemRemovedEvent](s, invoicing.EventTypeLineItemRemoved)

	Register[invoicing.PaymentRecordedEvent](s, invoicing.EventTypePaymentRecorded)
	return s
}
