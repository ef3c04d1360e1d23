package invoicing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestInvoice(t *testing.T) *Invoice {
	t.Helper()
	issue := time.Now()
	inv, err := NewInvoice("INV-2026-00001", uuid.New(), issue, issue.AddDate(0, 0, 30), "Net 30", valueobject.USD)
	require.NoError(t, err)
	return inv
}

// createSentInvoice returns a Sent invoice whose balance is the given amount
func createSentInvoice(t *testing.T, amount string) *Invoice {
	t.Helper()
	inv := createTestInvoice(t)
	require.NoError(t, inv.AddLineItem(createTestLineItem(t, 1, amount, "0", "0")))
	require.NoError(t, inv.MarkAsSent())
	inv.PullDomainEvents()
	return inv
}

func eventTypes(events []shared.DomainEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType())
	}
	return out
}

// ============================================
// Creation
// ============================================

func TestNewInvoice(t *testing.T) {
	inv := createTestInvoice(t)

	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	assert.Equal(t, 1, inv.Version)
	assert.True(t, inv.TotalAmount.IsZero())
	assert.True(t, inv.Balance.IsZero())
	assert.Empty(t, inv.LineItems())
	assert.Equal(t, valueobject.USD, inv.Currency)

	events := inv.PullDomainEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(*InvoiceCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, inv.ID, created.InvoiceID)
	assert.Equal(t, "INV-2026-00001", created.InvoiceNumber)
}

func TestNewInvoice_Validation(t *testing.T) {
	issue := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		number   string
		customer uuid.UUID
		due      time.Time
		msg      string
	}{
		{"empty number", "", uuid.New(), issue, "Invoice number cannot be empty"},
		{"nil customer", "INV-1", uuid.Nil, issue, "Customer ID cannot be empty"},
		{"missing due date", "INV-1", uuid.New(), time.Time{}, "Due date is required"},
		{"due before issue", "INV-1", uuid.New(), issue.AddDate(0, 0, -1), "Due date cannot be before issue date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInvoice(tt.number, tt.customer, issue, tt.due, "", "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	t.Run("due on issue day is allowed", func(t *testing.T) {
		inv, err := NewInvoice("INV-1", uuid.New(), issue, issue.Add(-time.Hour), "", "")
		require.NoError(t, err)
		assert.Equal(t, valueobject.DefaultCurrency, inv.Currency)
	})
}

// ============================================
// Line items
// ============================================

func TestInvoice_AddLineItem_RecalculatesTotals(t *testing.T) {
	inv := createTestInvoice(t)
	inv.PullDomainEvents()

	require.NoError(t, inv.AddLineItem(createTestLineItem(t, 5, "100", "0.10", "0.08")))

	assert.Equal(t, "500.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "50.00", inv.TotalDiscount.StringFixed(2))
	assert.Equal(t, "36.00", inv.TotalTax.StringFixed(2))
	assert.Equal(t, "486.00", inv.TotalAmount.StringFixed(2))
	assert.Equal(t, "486.00", inv.Balance.StringFixed(2))
	assert.Equal(t, []string{EventTypeLineItemAdded}, eventTypes(inv.PullDomainEvents()))
}

func TestInvoice_LineItemMutations_KeepTotalInSync(t *testing.T) {
	inv := createTestInvoice(t)
	a := createTestLineItem(t, 2, "10.10", "0", "0.07")
	b := createTestLineItem(t, 3, "33.33", "0.1", "0.2")
	c := createTestLineItem(t, 1, "0.99", "0", "0")

	check := func() {
		sum := dec("0")
		for _, item := range inv.LineItems() {
			sum = sum.Add(item.Total())
		}
		assert.True(t, inv.TotalAmount.Equal(sum), "total %s != sum %s", inv.TotalAmount, sum)
		assert.True(t, inv.Balance.Equal(inv.TotalAmount))
	}

	require.NoError(t, inv.AddLineItem(a))
	check()
	require.NoError(t, inv.AddLineItem(b))
	check()
	require.NoError(t, inv.AddLineItem(c))
	check()

	replacement := createTestLineItem(t, 10, "5", "0.5", "0")
	require.NoError(t, inv.UpdateLineItem(b.ID(), replacement))
	check()

	updated, ok := inv.LineItem(b.ID())
	require.True(t, ok)
	assert.Equal(t, 10, updated.Quantity())
	assert.Equal(t, b.ID(), inv.LineItems()[1].ID(), "position is kept")

	require.NoError(t, inv.RemoveLineItem(a.ID()))
	check()
	assert.Len(t, inv.LineItems(), 2)

	require.NoError(t, inv.RemoveLineItem(b.ID()))
	require.NoError(t, inv.RemoveLineItem(c.ID()))
	check()
	assert.True(t, inv.TotalAmount.IsZero())

	assert.Equal(t, []string{
		EventTypeInvoiceCreated,
		EventTypeLineItemAdded, EventTypeLineItemAdded, EventTypeLineItemAdded,
		EventTypeLineItemUpdated,
		EventTypeLineItemRemoved, EventTypeLineItemRemoved, EventTypeLineItemRemoved,
	}, eventTypes(inv.PullDomainEvents()))
}

func TestInvoice_AddLineItem_RejectsDuplicateID(t *testing.T) {
	inv := createTestInvoice(t)
	item := createTestLineItem(t, 1, "1", "0", "0")
	require.NoError(t, inv.AddLineItem(item))

	err := inv.AddLineItem(item)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, inv.LineItems(), 1)
}

func TestInvoice_LineItemMissing(t *testing.T) {
	inv := createTestInvoice(t)

	err := inv.RemoveLineItem("nope")
	assert.Equal(t, CodeLineItemMissing, shared.ErrorCode(err))

	err = inv.UpdateLineItem("nope", createTestLineItem(t, 1, "1", "0", "0"))
	assert.Equal(t, CodeLineItemMissing, shared.ErrorCode(err))
}

func TestInvoice_LineItemsImmutableAfterSent(t *testing.T) {
	for _, status := range []string{"sent", "paid"} {
		t.Run(status, func(t *testing.T) {
			inv := createSentInvoice(t, "100")
			if status == "paid" {
				require.NoError(t, inv.ApplyPayment(dec("100")))
			}
			existing := inv.LineItems()[0]
			total := inv.TotalAmount
			item := createTestLineItem(t, 1, "1", "0", "0")

			errs := []error{
				inv.AddLineItem(item),
				inv.RemoveLineItem(existing.ID()),
				inv.UpdateLineItem(existing.ID(), item),
			}
			for _, err := range errs {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrImmutable)
				assert.Equal(t, "Cannot modify line items after invoice is sent", err.Error())
			}
			assert.Len(t, inv.LineItems(), 1)
			assert.True(t, inv.TotalAmount.Equal(total))
		})
	}
}

func TestInvoice_LineItemsReturnsCopy(t *testing.T) {
	inv := createTestInvoice(t)
	require.NoError(t, inv.AddLineItem(createTestLineItem(t, 1, "5", "0", "0")))

	items := inv.LineItems()
	items[0] = createTestLineItem(t, 99, "99", "0", "0")

	assert.Equal(t, 1, inv.LineItems()[0].Quantity())
}

// ============================================
// Details
// ============================================

func TestInvoice_UpdateDetails(t *testing.T) {
	inv := createTestInvoice(t)
	inv.PullDomainEvents()

	due := inv.IssueDate.AddDate(0, 0, 60)
	require.NoError(t, inv.UpdateDetails(due, "Net 60", "thanks"))
	assert.Equal(t, "Net 60", inv.PaymentTerms)
	assert.Equal(t, "thanks", inv.Notes)
	assert.Equal(t, []string{EventTypeInvoiceDetailsUpdated}, eventTypes(inv.PullDomainEvents()))

	err := inv.UpdateDetails(inv.IssueDate.AddDate(0, 0, -3), "", "")
	assert.ErrorIs(t, err, ErrValidation)

	sent := createSentInvoice(t, "10")
	err = sent.UpdateDetails(due, "Net 60", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

// ============================================
// State machine
// ============================================

func TestInvoiceStatus_Transitions(t *testing.T) {
	all := []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid}
	legal := map[[2]InvoiceStatus]bool{
		{InvoiceStatusDraft, InvoiceStatusSent}: true,
		{InvoiceStatusSent, InvoiceStatusPaid}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]InvoiceStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, InvoiceStatusPaid.IsTerminal())
	assert.False(t, InvoiceStatusSent.IsTerminal())
	assert.False(t, InvoiceStatus("VOID").IsValid())

	_, err := ParseInvoiceStatus("VOID")
	assert.Error(t, err)
	s, err := ParseInvoiceStatus("SENT")
	require.NoError(t, err)
	assert.Equal(t, "Sent", s.Label())
}

func TestInvoice_MarkAsSent(t *testing.T) {
	t.Run("fails without line items", func(t *testing.T) {
		inv := createTestInvoice(t)
		assert.False(t, inv.CanBeSent())

		err := inv.MarkAsSent()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, InvoiceStatusDraft, inv.Status)
	})

	t.Run("sends draft with items", func(t *testing.T) {
		inv := createTestInvoice(t)
		require.NoError(t, inv.AddLineItem(createTestLineItem(t, 5, "100", "0.10", "0.08")))
		inv.PullDomainEvents()
		assert.True(t, inv.CanBeSent())

		require.NoError(t, inv.MarkAsSent())

		assert.Equal(t, InvoiceStatusSent, inv.Status)
		assert.Equal(t, "486.00", inv.Balance.StringFixed(2))
		assert.NotNil(t, inv.SentAt)
		assert.True(t, inv.CanAcceptPayment())

		events := inv.PullDomainEvents()
		require.Len(t, events, 1)
		changed := events[0].(*InvoiceStatusChangedEvent)
		assert.Equal(t, InvoiceStatusDraft, changed.From)
		assert.Equal(t, InvoiceStatusSent, changed.To)
	})

	t.Run("cannot send twice", func(t *testing.T) {
		inv := createSentInvoice(t, "10")
		assert.ErrorIs(t, inv.MarkAsSent(), ErrInvalidState)
	})
}

func TestInvoice_MarkAsPaid(t *testing.T) {
	t.Run("draft cannot be paid", func(t *testing.T) {
		inv := createTestInvoice(t)
		err := inv.MarkAsPaid()
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, "Can only mark Sent invoices as Paid", err.Error())
	})

	t.Run("outstanding balance blocks", func(t *testing.T) {
		inv := createSentInvoice(t, "10")
		assert.False(t, inv.CanBePaid())
		err := inv.MarkAsPaid()
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, "Cannot mark as Paid with outstanding balance", err.Error())
		assert.Equal(t, InvoiceStatusSent, inv.Status)
	})

	t.Run("residue within tolerance is cleared", func(t *testing.T) {
		inv := createSentInvoice(t, "10")
		inv.Balance = dec("0.004")
		assert.True(t, inv.CanBePaid())

		require.NoError(t, inv.MarkAsPaid())
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		assert.True(t, inv.Balance.IsZero())
		assert.NotNil(t, inv.PaidAt)
	})
}

// ============================================
// Payments
// ============================================

func TestInvoice_ApplyPayment_Sequential(t *testing.T) {
	inv := createSentInvoice(t, "500")

	require.NoError(t, inv.ApplyPayment(dec("150")))
	require.NoError(t, inv.ApplyPayment(dec("100")))
	assert.Equal(t, "250.00", inv.Balance.StringFixed(2))
	assert.Equal(t, InvoiceStatusSent, inv.Status)
	assert.Equal(t, "250.00", inv.AmountPaid().StringFixed(2))

	require.NoError(t, inv.ApplyPayment(dec("250")))
	assert.True(t, inv.Balance.IsZero())
	assert.Equal(t, InvoiceStatusPaid, inv.Status)

	assert.Equal(t, []string{
		EventTypeInvoiceBalanceChanged,
		EventTypeInvoiceBalanceChanged,
		EventTypeInvoiceBalanceChanged,
		EventTypeInvoiceStatusChanged,
	}, eventTypes(inv.PullDomainEvents()))
}

func TestInvoice_ApplyPayment_EndToEnd(t *testing.T) {
	inv := createTestInvoice(t)
	require.NoError(t, inv.AddLineItem(createTestLineItem(t, 5, "100", "0.10", "0.08")))
	require.NoError(t, inv.MarkAsSent())

	require.NoError(t, inv.ApplyPayment(dec("486.00")))

	assert.Equal(t, "0.00", inv.Balance.StringFixed(2))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
}

func TestInvoice_ApplyPayment_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		target error
		msg    string
	}{
		{"zero", "0", ErrValidation, "Payment amount must be positive"},
		{"negative", "-5", ErrValidation, "Payment amount must be positive"},
		{"exceeds balance", "600", ErrValidation, "Payment amount cannot exceed invoice balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := createSentInvoice(t, "500")
			err := inv.ApplyPayment(dec(tt.amount))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.msg, err.Error())
			assert.Equal(t, "500.00", inv.Balance.StringFixed(2))
			assert.Equal(t, InvoiceStatusSent, inv.Status)
			assert.Empty(t, inv.PullDomainEvents())
		})
	}

	t.Run("draft invoice", func(t *testing.T) {
		inv := createTestInvoice(t)
		require.NoError(t, inv.AddLineItem(createTestLineItem(t, 1, "10", "0", "0")))
		err := inv.ApplyPayment(dec("5"))
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, "10.00", inv.Balance.StringFixed(2))
	})

	t.Run("paid invoice", func(t *testing.T) {
		inv := createSentInvoice(t, "10")
		require.NoError(t, inv.ApplyPayment(dec("10")))
		assert.ErrorIs(t, inv.ApplyPayment(dec("1")), ErrInvalidState)
	})
}

func TestInvoice_ApplyPayment_NeverNegative(t *testing.T) {
	inv := createSentInvoice(t, "99.99")
	amounts := []string{"33.33", "33.33", "40", "33.33"}
	for _, a := range amounts {
		_ = inv.ApplyPayment(dec(a))
		assert.False(t, inv.Balance.IsNegative())
	}
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
}

func TestInvoice_BalanceMoney(t *testing.T) {
	inv := createSentInvoice(t, "12.5")
	balance, err := inv.BalanceMoney()
	require.NoError(t, err)
	assert.Equal(t, "12.50 USD", balance.String())
	total, err := inv.TotalMoney()
	require.NoError(t, err)
	assert.Equal(t, "12.50 USD", total.String())
	assert.False(t, inv.IsOverdue())

	inv.Currency = ""
	_, err = inv.TotalMoney()
	assert.Error(t, err)
	_, err = inv.BalanceMoney()
	assert.Error(t, err)
}

func TestInvoice_RestoreLineItems(t *testing.T) {
	inv := createTestInvoice(t)
	inv.PullDomainEvents()
	inv.RestoreLineItems([]LineItem{createTestLineItem(t, 1, "1", "0", "0")})

	assert.Len(t, inv.LineItems(), 1)
	assert.Empty(t, inv.PullDomainEvents())
}
