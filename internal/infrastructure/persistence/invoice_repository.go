package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormInvoiceRepository) WithTx(tx *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: tx}
}

// FindByID finds an invoice by ID with its line items
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.findOne(r.db.WithContext(ctx), "id = ?", id)
}

// FindByIDForUpdate loads the invoice with SELECT ... FOR UPDATE.
// SQLite ignores the locking clause and serializes writers on its own.
func (r *GormInvoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

// FindByNumber finds an invoice by its invoice number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, invoiceNumber string) (*invoicing.Invoice, error) {
	return r.findOne(r.db.WithContext(ctx), "invoice_number = ?", invoiceNumber)
}

func (r *GormInvoiceRepository) findOne(query *gorm.DB, cond string, arg any) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := query.Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	items, err := r.loadLineItems(query.Statement.Context, []uuid.UUID{model.ID})
	if err != nil {
		return nil, err
	}
	return model.ToDomain(items[model.ID])
}

// loadLineItems fetches line items for the given invoices grouped by invoice ID
func (r *GormInvoiceRepository) loadLineItems(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID][]models.InvoiceLineItemModel, error) {
	var rows []models.InvoiceLineItemModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id IN ?", invoiceIDs).
		Order("invoice_id, position").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	grouped := make(map[uuid.UUID][]models.InvoiceLineItemModel, len(invoiceIDs))
	for _, row := range rows {
		grouped[row.InvoiceID] = append(grouped[row.InvoiceID], row)
	}
	return grouped, nil
}

// FindAll lists invoices matching the filter. Defaults to newest first.
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	var rows []models.InvoiceModel
	if err := query.
		Clauses(listOrder(filter.OrderBy, filter.OrderDir, invoiceSortColumns, "created_at")).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return []invoicing.Invoice{}, total, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	items, err := r.loadLineItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	invoices := make([]invoicing.Invoice, 0, len(rows))
	for i := range rows {
		inv, err := rows[i].ToDomain(items[rows[i].ID])
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, total, nil
}

// Save inserts a new invoice with its line items
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *invoicing.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.InvoiceModelFromDomain(invoice)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists
			}
			return err
		}
		items := models.LineItemModelsFromDomain(invoice)
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// SaveWithLock updates the invoice only if the stored version equals
// invoice.Version, then increments invoice.Version.
// Line items are rewritten only while the invoice is a Draft.
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *invoicing.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Get current version from database
		var current struct{ Version int }
		result := tx.Model(&models.InvoiceModel{}).
			Select("version").
			Where("id = ?", invoice.ID).
			Limit(1).
			Scan(&current)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		if current.Version != invoice.Version {
			return shared.ErrConcurrencyConflict
		}

		invoice.UpdatedAt = time.Now()
		model := models.InvoiceModelFromDomain(invoice)
		result = tx.Model(&models.InvoiceModel{}).
			Where("id = ? AND version = ?", invoice.ID, invoice.Version).
			Updates(map[string]any{
				"due_date":       model.DueDate,
				"payment_terms":  model.PaymentTerms,
				"status":         model.Status,
				"notes":          model.Notes,
				"subtotal":       model.Subtotal,
				"total_discount": model.TotalDiscount,
				"total_tax":      model.TotalTax,
				"total_amount":   model.TotalAmount,
				"balance":        model.Balance,
				"sent_at":        model.SentAt,
				"paid_at":        model.PaidAt,
				"version":        invoice.Version + 1,
				"updated_at":     model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if invoice.Status == invoicing.InvoiceStatusDraft {
			if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceLineItemModel{}).Error; err != nil {
				return err
			}
			if items := models.LineItemModelsFromDomain(invoice); len(items) > 0 {
				if err := tx.Create(&items).Error; err != nil {
					return err
				}
			}
		}

		invoice.IncrementVersion()
		return nil
	})
}

// GenerateInvoiceNumber returns the next INV-YYYY-NNNNN number for the current year
func (r *GormInvoiceRepository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("INV-%d-", time.Now().Year())

	var last models.InvoiceModel
	err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Order("invoice_number DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var nextNum int64 = 1
	if err == nil {
		var num int64
		if _, parseErr := fmt.Sscanf(strings.TrimPrefix(last.InvoiceNumber, prefix), "%d", &num); parseErr == nil {
			nextNum = num + 1
		}
	}
	return fmt.Sprintf("%s%05d", prefix, nextNum), nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
