package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CustomerModel is the persistence model for Customer
type CustomerModel struct {
	BaseModel
	Name  string `gorm:"type:varchar(200);not null"`
	Email string `gorm:"type:varchar(320)"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer
func (m *CustomerModel) ToDomain() *invoicing.Customer {
	return &invoicing.Customer{
		BaseEntity: m.entity(),
		Name:       m.Name,
		Email:      m.Email,
	}
}

// CustomerModelFromDomain creates a persistence model from a domain Customer
func CustomerModelFromDomain(c *invoicing.Customer) *CustomerModel {
	return &CustomerModel{BaseModel: baseModelOf(c.BaseEntity), Name: c.Name, Email: c.Email}
}

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Line items live in invoice_line_items and are loaded separately.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	IssueDate     time.Time       `gorm:"not null"`
	DueDate       time.Time       `gorm:"not null"`
	PaymentTerms  string          `gorm:"type:varchar(100)"`
	Currency      string          `gorm:"type:varchar(3);not null;default:USD"`
	Status        string          `gorm:"type:varchar(20);not null;index"`
	Notes         string          `gorm:"type:text"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalDiscount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalTax      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Balance       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	SentAt        *time.Time
	PaidAt        *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain rebuilds the aggregate. items must already be in display order.
func (m *InvoiceModel) ToDomain(items []InvoiceLineItemModel) (*invoicing.Invoice, error) {
	status, err := invoicing.ParseInvoiceStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", m.ID, err)
	}
	inv := &invoicing.Invoice{
		BaseAggregateRoot: m.root(),
		InvoiceNumber:     m.InvoiceNumber,
		CustomerID:        m.CustomerID,
		IssueDate:         m.IssueDate,
		DueDate:           m.DueDate,
		PaymentTerms:      m.PaymentTerms,
		Currency:          valueobject.Currency(m.Currency),
		Status:            status,
		Notes:             m.Notes,
		Subtotal:          m.Subtotal,
		TotalDiscount:     m.TotalDiscount,
		TotalTax:          m.TotalTax,
		TotalAmount:       m.TotalAmount,
		Balance:           m.Balance,
		SentAt:            m.SentAt,
		PaidAt:            m.PaidAt,
	}
	lineItems := make([]invoicing.LineItem, 0, len(items))
	for i := range items {
		item, err := items[i].ToDomain()
		if err != nil {
			return nil, fmt.Errorf("invoice %s line item %s: %w", m.ID, items[i].ItemID, err)
		}
		lineItems = append(lineItems, item)
	}
	inv.RestoreLineItems(lineItems)
	return inv, nil
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	return &InvoiceModel{
		AggregateModel: aggregateModelOf(inv.BaseAggregateRoot),
		InvoiceNumber:  inv.InvoiceNumber,
		CustomerID:     inv.CustomerID,
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		PaymentTerms:   inv.PaymentTerms,
		Currency:       string(inv.Currency),
		Status:         inv.Status.String(),
		Notes:          inv.Notes,
		Subtotal:       inv.Subtotal,
		TotalDiscount:  inv.TotalDiscount,
		TotalTax:       inv.TotalTax,
		TotalAmount:    inv.TotalAmount,
		Balance:        inv.Balance,
		SentAt:         inv.SentAt,
		PaidAt:         inv.PaidAt,
	}
}

// InvoiceLineItemModel stores one line item. ItemID is unique per invoice only.
type InvoiceLineItemModel struct {
	InvoiceID       uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ItemID          string          `gorm:"type:varchar(64);primaryKey"`
	Position        int             `gorm:"not null"`
	Description     string          `gorm:"type:varchar(500);not null"`
	Quantity        int             `gorm:"not null"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,4);not null;default:0"`
	TaxRate         decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceLineItemModel) TableName() string {
	return "invoice_line_items"
}

// ToDomain converts the persistence model to a domain LineItem
func (m *InvoiceLineItemModel) ToDomain() (invoicing.LineItem, error) {
	return invoicing.NewLineItem(invoicing.LineItemInput{
		ID:              m.ItemID,
		Description:     m.Description,
		Quantity:        m.Quantity,
		UnitPrice:       m.UnitPrice,
		DiscountPercent: m.DiscountPercent,
		TaxRate:         m.TaxRate,
	})
}

// LineItemModelsFromDomain maps an invoice's line items, preserving order in Position
func LineItemModelsFromDomain(inv *invoicing.Invoice) []InvoiceLineItemModel {
	items := inv.LineItems()
	out := make([]InvoiceLineItemModel, len(items))
	for i, item := range items {
		out[i] = InvoiceLineItemModel{
			InvoiceID:       inv.ID,
			ItemID:          item.ID(),
			Position:        i,
			Description:     item.Description(),
			Quantity:        item.Quantity(),
			UnitPrice:       item.UnitPrice(),
			DiscountPercent: item.DiscountPercent(),
			TaxRate:         item.TaxRate(),
		}
	}
	return out
}

// PaymentModel is the persistence model for Payment
type PaymentModel struct {
	BaseModel
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaymentDate time.Time       `gorm:"not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Method      string          `gorm:"type:varchar(20);not null"`
	Reference   string          `gorm:"type:varchar(100)"`
	Notes       string          `gorm:"type:text"`
	CreatedBy   string          `gorm:"type:varchar(100);not null"`
	// IdempotencyKey is NULL for payments recorded without a key
	IdempotencyKey *string         `gorm:"type:varchar(200);uniqueIndex"`
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *invoicing.Payment {
	p := &invoicing.Payment{
		BaseEntity:   m.entity(),
		InvoiceID:    m.InvoiceID,
		PaymentDate:  m.PaymentDate,
		Amount:       m.Amount,
		Method:       invoicing.PaymentMethod(m.Method),
		Reference:    m.Reference,
		Notes:        m.Notes,
		CreatedBy:    m.CreatedBy,
		BalanceAfter: m.BalanceAfter,
	}
	if m.IdempotencyKey != nil {
		p.IdempotencyKey = *m.IdempotencyKey
	}
	return p
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *invoicing.Payment) *PaymentModel {
	m := &PaymentModel{
		BaseModel:    baseModelOf(p.BaseEntity),
		InvoiceID:    p.InvoiceID,
		PaymentDate:  p.PaymentDate,
		Amount:       p.Amount,
		Method:       p.Method.String(),
		Reference:    p.Reference,
		Notes:        p.Notes,
		CreatedBy:    p.CreatedBy,
		BalanceAfter: p.BalanceAfter,
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		m.IdempotencyKey = &key
	}
	return m
}
