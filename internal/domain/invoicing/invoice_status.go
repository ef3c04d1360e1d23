package invoicing

import "fmt"

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	InvoiceStatusSent  InvoiceStatus = "SENT"
	InvoiceStatusPaid  InvoiceStatus = "PAID" // terminal
)

// invoiceTransitions lists every legal transition. Anything absent is rejected.
var invoiceTransitions = map[InvoiceStatus]InvoiceStatus{
	InvoiceStatusDraft: InvoiceStatusSent,
	InvoiceStatusSent:  InvoiceStatusPaid,
}

// ParseInvoiceStatus converts a stored or user supplied value into a status
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(s)
	if !status.IsValid() {
		return "", NewValidationError("Unknown invoice status: %s", s)
	}
	return status, nil
}

// IsValid checks if the status is one of the known states
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid:
		return true
	}
	return false
}

func (s InvoiceStatus) String() string {
	return string(s)
}

// Label is the human readable form used in messages, e.g. "Draft"
func (s InvoiceStatus) Label() string {
	switch s {
	case InvoiceStatusDraft:
		return "Draft"
	case InvoiceStatusSent:
		return "Sent"
	case InvoiceStatusPaid:
		return "Paid"
	}
	return fmt.Sprintf("Unknown(%s)", string(s))
}

// IsTerminal returns true for Paid
func (s InvoiceStatus) IsTerminal() bool {
	_, ok := invoiceTransitions[s]
	return s.IsValid() && !ok
}

// CanTransitionTo reports whether next is the legal successor of s
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	to, ok := invoiceTransitions[s]
	return ok && to == next
}
