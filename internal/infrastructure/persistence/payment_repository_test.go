package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment(t *testing.T, invoiceID uuid.UUID, amount string, date time.Time) *invoicing.Payment {
	t.Helper()
	p, err := invoicing.CreatePayment(invoiceID, date, decimal.RequireFromString(amount),
		invoicing.PaymentMethodBankTransfer, "REF-"+amount, "", "clerk@example.com")
	require.NoError(t, err)
	return p
}

func TestGormPaymentRepository(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormPaymentRepository(db.DB)
	ctx := context.Background()

	customer := seedCustomer(t, db, "Acme Corp")
	inv := newDraftInvoice(t, "INV-PAY-1", customer.ID, lineItem(t, "Consulting", 5, "100.00"))
	require.NoError(t, NewGormInvoiceRepository(db.DB).Save(ctx, inv))

	today := time.Now().UTC().Truncate(time.Second)
	later := newPayment(t, inv.ID, "100.00", today)
	earlier := newPayment(t, inv.ID, "150.00", today.AddDate(0, 0, -3))
	require.NoError(t, repo.Save(ctx, later))
	require.NoError(t, repo.Save(ctx, earlier))

	t.Run("find by invoice orders by payment date", func(t *testing.T) {
		payments, err := repo.FindByInvoiceID(ctx, inv.ID)
		require.NoError(t, err)
		require.Len(t, payments, 2)
		assert.Equal(t, earlier.ID, payments[0].ID)
		assert.Equal(t, later.ID, payments[1].ID)
		assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("150.00")))
		assert.Equal(t, invoicing.PaymentMethodBankTransfer, payments[0].Method)
		assert.Equal(t, "clerk@example.com", payments[0].CreatedBy)
	})

	t.Run("find by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, later.ID)
		require.NoError(t, err)
		assert.Equal(t, "REF-100.00", found.Reference)
	})

	t.Run("missing payment", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("payments are append only", func(t *testing.T) {
		err := repo.Save(ctx, later)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("idempotency key is unique", func(t *testing.T) {
		keyed := newPayment(t, inv.ID, "20.00", today)
		keyed.IdempotencyKey = "order-7"
		keyed.BalanceAfter = decimal.RequireFromString("230.00")
		require.NoError(t, repo.Save(ctx, keyed))

		found, err := repo.FindByIdempotencyKey(ctx, "order-7")
		require.NoError(t, err)
		assert.Equal(t, keyed.ID, found.ID)
		assert.True(t, found.BalanceAfter.Equal(decimal.RequireFromString("230.00")))

		again := newPayment(t, inv.ID, "20.00", today)
		again.IdempotencyKey = "order-7"
		assert.ErrorIs(t, repo.Save(ctx, again), shared.ErrAlreadyExists)

		_, err = repo.FindByIdempotencyKey(ctx, "order-8")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("other invoice has none", func(t *testing.T) {
		payments, err := repo.FindByInvoiceID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, payments)
	})
}
