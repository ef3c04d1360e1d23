package invoicing

import (
	"strings"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Precision limits of the stored line item columns. Finer values would be
// rounded by the database and change totals after a reload.
const (
	UnitPriceScale int32 = 4
	RateScale      int32 = 4
)

var (
	maxUnitPrice = decimal.New(1, 14)
	maxTaxRate   = decimal.New(1, 3)
)

// LineItemInput carries the fields for constructing a LineItem.
// An empty ID gets a generated one; zero DiscountPercent and TaxRate mean none.
type LineItemInput struct {
	ID              string
	Description     string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxRate         decimal.Decimal
}

// LineItem is an immutable billed line. Monetary amounts are derived from the
// stored fields on every call and rounded to two places, half up.
type LineItem struct {
	id              string
	description     string
	quantity        int
	unitPrice       decimal.Decimal
	discountPercent decimal.Decimal
	taxRate         decimal.Decimal
}

// NewLineItem validates the input and builds a LineItem
func NewLineItem(in LineItemInput) (LineItem, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return LineItem{}, NewValidationError("Line item description cannot be empty")
	}
	if in.Quantity <= 0 {
		return LineItem{}, NewValidationError("Line item quantity must be greater than zero")
	}
	if in.UnitPrice.IsNegative() {
		return LineItem{}, NewValidationError("Line item unit price cannot be negative")
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(1)) {
		return LineItem{}, NewValidationError("Line item discount must be between 0 and 1")
	}
	if in.TaxRate.IsNegative() {
		return LineItem{}, NewValidationError("Line item tax rate cannot be negative")
	}
	if !in.UnitPrice.LessThan(maxUnitPrice) {
		return LineItem{}, NewValidationError("Line item unit price must be below %s", maxUnitPrice)
	}
	if !in.TaxRate.LessThan(maxTaxRate) {
		return LineItem{}, NewValidationError("Line item tax rate must be below %s", maxTaxRate)
	}
	if finerThan(in.UnitPrice, UnitPriceScale) {
		return LineItem{}, NewValidationError("Line item unit price cannot have more than %d decimal places", UnitPriceScale)
	}
	if finerThan(in.DiscountPercent, RateScale) {
		return LineItem{}, NewValidationError("Line item discount cannot have more than %d decimal places", RateScale)
	}
	if finerThan(in.TaxRate, RateScale) {
		return LineItem{}, NewValidationError("Line item tax rate cannot have more than %d decimal places", RateScale)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	return LineItem{
		id:              id,
		description:     description,
		quantity:        in.Quantity,
		unitPrice:       in.UnitPrice,
		discountPercent: in.DiscountPercent,
		taxRate:         in.TaxRate,
	}, nil
}

// finerThan reports whether d has significant digits past scale places
func finerThan(d decimal.Decimal, scale int32) bool {
	return !d.Equal(d.Truncate(scale))
}

func (l LineItem) ID() string                       { return l.id }
func (l LineItem) Description() string              { return l.description }
func (l LineItem) Quantity() int                    { return l.quantity }
func (l LineItem) UnitPrice() decimal.Decimal       { return l.unitPrice }
func (l LineItem) DiscountPercent() decimal.Decimal { return l.discountPercent }
func (l LineItem) TaxRate() decimal.Decimal         { return l.taxRate }

// Subtotal is quantity × unit price
func (l LineItem) Subtotal() decimal.Decimal {
	return valueobject.RoundMoney(l.unitPrice.Mul(decimal.NewFromInt(int64(l.quantity))))
}

// DiscountAmount is subtotal × discount percent
func (l LineItem) DiscountAmount() decimal.Decimal {
	return valueobject.RoundMoney(l.Subtotal().Mul(l.discountPercent))
}

// TaxableAmount is subtotal − discount
func (l LineItem) TaxableAmount() decimal.Decimal {
	return l.Subtotal().Sub(l.DiscountAmount())
}

// TaxAmount is taxable amount × tax rate
func (l LineItem) TaxAmount() decimal.Decimal {
	return valueobject.RoundMoney(l.TaxableAmount().Mul(l.taxRate))
}

// Total is taxable amount + tax
func (l LineItem) Total() decimal.Decimal {
	return l.TaxableAmount().Add(l.TaxAmount())
}

// Input returns the fields this item was built from
func (l LineItem) Input() LineItemInput {
	return LineItemInput{
		ID:              l.id,
		Description:     l.description,
		Quantity:        l.quantity,
		UnitPrice:       l.unitPrice,
		DiscountPercent: l.discountPercent,
		TaxRate:         l.taxRate,
	}
}

func (l LineItem) withID(id string) LineItem {
	l.id = id
	return l
}
