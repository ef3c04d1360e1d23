package invoicing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// In-memory repositories
// =============================================================================

func cloneInvoice(inv *invoicing.Invoice) *invoicing.Invoice {
	c := *inv
	c.ClearDomainEvents()
	c.RestoreLineItems(inv.LineItems())
	return &c
}

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*invoicing.Invoice
	seq      int

	// conflicts makes the next n SaveWithLock calls fail as if another
	// writer got there first
	conflicts int
	saveCalls int
	findErr   error
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[uuid.UUID]*invoicing.Invoice)}
}

func (r *memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (r *memInvoiceRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r *memInvoiceRepo) FindByNumber(_ context.Context, number string) (*invoicing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.InvoiceNumber == number {
			return cloneInvoice(inv), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memInvoiceRepo) FindAll(_ context.Context, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoicing.Invoice
	for _, inv := range r.invoices {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != nil && inv.CustomerID != *filter.CustomerID {
			continue
		}
		out = append(out, *cloneInvoice(inv))
	}
	return out, int64(len(out)), nil
}

func (r *memInvoiceRepo) Save(_ context.Context, inv *invoicing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return shared.ErrAlreadyExists
		}
	}
	r.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *memInvoiceRepo) SaveWithLock(_ context.Context, inv *invoicing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.conflicts > 0 {
		r.conflicts--
		return shared.ErrConcurrencyConflict
	}
	stored, ok := r.invoices[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != inv.Version {
		return shared.ErrConcurrencyConflict
	}
	inv.IncrementVersion()
	r.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *memInvoiceRepo) GenerateInvoiceNumber(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("INV-2026-%05d", r.seq), nil
}

func (r *memInvoiceRepo) stored(id uuid.UUID) *invoicing.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneInvoice(r.invoices[id])
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments []invoicing.Payment
	saveErr  error
}

func (r *memPaymentRepo) Save(_ context.Context, p *invoicing.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for i := range r.payments {
		if p.IdempotencyKey != "" && r.payments[i].IdempotencyKey == p.IdempotencyKey {
			return shared.ErrAlreadyExists
		}
	}
	r.payments = append(r.payments, *p)
	return nil
}

func (r *memPaymentRepo) FindByIdempotencyKey(_ context.Context, key string) (*invoicing.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.payments {
		if r.payments[i].IdempotencyKey == key {
			p := r.payments[i]
			return &p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*invoicing.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.payments {
		if r.payments[i].ID == id {
			p := r.payments[i]
			return &p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPaymentRepo) FindByInvoiceID(_ context.Context, invoiceID uuid.UUID) ([]invoicing.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoicing.Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

type memCustomerRepo struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*invoicing.Customer
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{customers: make(map[uuid.UUID]*invoicing.Customer)}
}

func (r *memCustomerRepo) FindByID(_ context.Context, id uuid.UUID) (*invoicing.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memCustomerRepo) Save(_ context.Context, c *invoicing.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *c
	r.customers[c.ID] = &copied
	return nil
}

// MockCustomerRepository is a mock implementation of invoicing.CustomerRepository
type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Customer), args.Error(1)
}

func (m *MockCustomerRepository) Save(ctx context.Context, customer *invoicing.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

type recordedEvents struct {
	mu        sync.Mutex
	events    []shared.DomainEvent
	recordErr error
}

func (r *recordedEvents) Record(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	r.events = append(r.events, events...)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

// =============================================================================
// In-memory idempotency store
// =============================================================================

type memIdempotencyEntry struct {
	payload   []byte
	completed bool
	expiresAt time.Time
}

type memIdempotencyStore struct {
	mu          sync.Mutex
	entries     map[string]*memIdempotencyEntry
	released    []string
	completeErr error
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{entries: make(map[string]*memIdempotencyEntry)}
}

func (s *memIdempotencyStore) live(key string) (*memIdempotencyEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}

func (s *memIdempotencyStore) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || !e.completed {
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (s *memIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = &memIdempotencyEntry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *memIdempotencyStore) Complete(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.entries[key] = &memIdempotencyEntry{payload: payload, completed: true, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *memIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	s.released = append(s.released, key)
	return nil
}

func (s *memIdempotencyStore) Close() error { return nil }

func (s *memIdempotencyStore) releasedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.released...)
}

var errStoreDown = errors.New("store unavailable")

var (
	_ invoicing.InvoiceRepository  = (*memInvoiceRepo)(nil)
	_ invoicing.PaymentRepository  = (*memPaymentRepo)(nil)
	_ invoicing.CustomerRepository = (*memCustomerRepo)(nil)
	_ invoicing.CustomerRepository = (*MockCustomerRepository)(nil)
	_ shared.IdempotencyStore      = (*memIdempotencyStore)(nil)
	_ EventRecorder                = (*recordedEvents)(nil)
)
