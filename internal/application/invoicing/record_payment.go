package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// idempotencyKeyPrefix namespaces payment keys in a store shared with other callers
const idempotencyKeyPrefix = "payment:"

// RecordPaymentConfig bounds the payment transaction
type RecordPaymentConfig struct {
	// TransactionTimeout caps one attempt of the unit of work
	TransactionTimeout time.Duration
	// MaxConflictRetries is how many times a version conflict is retried
	MaxConflictRetries int
	// IdempotencyTTL is how long a completed result is replayed
	IdempotencyTTL time.Duration
	// PollInterval is how often a request that lost the reservation checks
	// for the winner's result
	PollInterval time.Duration
}

// DefaultRecordPaymentConfig returns the default payment transaction settings
func DefaultRecordPaymentConfig() RecordPaymentConfig {
	idem := shared.DefaultIdempotencyConfig()
	return RecordPaymentConfig{
		TransactionTimeout: 10 * time.Second,
		MaxConflictRetries: 3,
		IdempotencyTTL:     idem.TTL,
		PollInterval:       idem.PollInterval,
	}
}

// reservationTTL is the lease on an in-flight key. It outlives every attempt
// so a slow winner is never overtaken by a retry.
func (c RecordPaymentConfig) reservationTTL() time.Duration {
	return 2 * c.TransactionTimeout * time.Duration(c.MaxConflictRetries+1)
}

// RecordPaymentService records a payment against an invoice as one atomic unit
// of work: the payment row, the updated invoice and the resulting events are
// committed together or not at all.
type RecordPaymentService struct {
	scope       TransactionScope
	idempotency shared.IdempotencyStore
	reconciler  *invoicing.PaymentReconciliationService
	metrics     *telemetry.PaymentMetrics
	config      RecordPaymentConfig
	logger      *zap.Logger
}

// RecordPaymentOption configures a RecordPaymentService
type RecordPaymentOption func(*RecordPaymentService)

// WithPaymentMetrics sets the outcome counters
func WithPaymentMetrics(m *telemetry.PaymentMetrics) RecordPaymentOption {
	return func(s *RecordPaymentService) {
		s.metrics = m
	}
}

// WithIdempotencyStore enables replay of requests carrying an idempotency key
func WithIdempotencyStore(store shared.IdempotencyStore) RecordPaymentOption {
	return func(s *RecordPaymentService) {
		s.idempotency = store
	}
}

// NewRecordPaymentService creates a RecordPaymentService. Zero config fields
// take their defaults.
func NewRecordPaymentService(
	scope TransactionScope,
	config RecordPaymentConfig,
	zapLogger *zap.Logger,
	opts ...RecordPaymentOption,
) *RecordPaymentService {
	defaults := DefaultRecordPaymentConfig()
	if config.TransactionTimeout <= 0 {
		config.TransactionTimeout = defaults.TransactionTimeout
	}
	if config.MaxConflictRetries < 0 {
		config.MaxConflictRetries = 0
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = defaults.IdempotencyTTL
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	s := &RecordPaymentService{
		scope:      scope,
		reconciler: invoicing.NewPaymentReconciliationService(),
		config:     config,
		logger:     zapLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute records the payment described by req on behalf of userID.
//
// With an idempotency key, a previously completed result is returned as is
// and no new payment is created, even if the invoice has changed since.
func (s *RecordPaymentService) Execute(ctx context.Context, req RecordPaymentRequest, userID string) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record",
		telemetry.AttrInvoiceID, req.InvoiceID.String(),
		telemetry.AttrAmount, req.Amount,
		telemetry.AttrIdempotencyKey, req.IdempotencyKey,
	)
	defer span.End()

	log := logger.Ctx(ctx, s.logger).With(
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("acting_user", userID),
		zap.String("idempotency_key", req.IdempotencyKey),
	)

	result, err := s.execute(ctx, req, userID, log)
	if err != nil {
		telemetry.RecordError(span, err)
		if isBusinessError(err) {
			code := shared.ErrorCode(err)
			telemetry.SetAttributes(span, telemetry.AttrErrorCode, code)
			s.metrics.Rejected(ctx, code)
			log.Warn("payment rejected", zap.String("code", code), zap.Error(err))
		} else {
			log.Error("payment transaction failed", zap.Error(err))
		}
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.AttrPaymentID, result.PaymentID.String())
	if result.Replayed {
		s.metrics.Replayed(ctx)
		log.Info("payment replayed from idempotency store", zap.String("payment_id", result.PaymentID.String()))
	} else {
		s.metrics.Recorded(ctx, result.PaymentMethod, result.InvoiceStatus)
		log.Info("payment recorded",
			zap.String("payment_id", result.PaymentID.String()),
			zap.String("remaining_balance", result.RemainingBalance.String()),
			zap.String("invoice_status", result.InvoiceStatus),
		)
	}
	return result, nil
}

func (s *RecordPaymentService) execute(ctx context.Context, req RecordPaymentRequest, userID string, log *zap.Logger) (*PaymentResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" || s.idempotency == nil {
		req.IdempotencyKey = ""
		return s.recordWithRetry(ctx, req, userID, log)
	}
	return s.executeIdempotent(ctx, req, userID, idempotencyKeyPrefix+req.IdempotencyKey, log)
}

// executeIdempotent replays a completed result or takes the reservation for
// key. A caller that loses the reservation waits for the winner's result and
// takes over if the winner releases the key.
func (s *RecordPaymentService) executeIdempotent(ctx context.Context, req RecordPaymentRequest, userID, key string, log *zap.Logger) (*PaymentResult, error) {
	lease := s.config.reservationTTL()
	waitCtx, cancel := context.WithTimeout(ctx, lease)
	defer cancel()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		cached, found, err := s.replay(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			return cached, nil
		}

		reserved, err := s.idempotency.Reserve(ctx, key, lease)
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if reserved {
			return s.recordAndComplete(ctx, req, userID, key, log)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrIdempotencyInProgress
		case <-ticker.C:
		}
	}
}

func (s *RecordPaymentService) replay(ctx context.Context, key string) (*PaymentResult, bool, error) {
	payload, found, err := s.idempotency.Lookup(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	var result PaymentResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode cached payment result: %w", err)
	}
	result.Replayed = true
	return &result, true, nil
}

// recordAndComplete runs the transaction while holding the reservation on key
func (s *RecordPaymentService) recordAndComplete(ctx context.Context, req RecordPaymentRequest, userID, key string, log *zap.Logger) (*PaymentResult, error) {
	// Bookkeeping on the key must survive cancellation of the request
	bg := context.WithoutCancel(ctx)

	result, err := s.recordWithRetry(ctx, req, userID, log)
	if err != nil {
		if relErr := s.idempotency.Release(bg, key); relErr != nil {
			log.Warn("failed to release idempotency key", zap.Error(relErr))
		}
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err == nil {
		err = s.idempotency.Complete(bg, key, payload, s.config.IdempotencyTTL)
	}
	if err != nil {
		// The payment row carries the key, so a retry after the lease runs
		// out finds it in the unit of work and replays it.
		log.Error("payment committed but result not cached",
			zap.String("payment_id", result.PaymentID.String()),
			zap.Error(err),
		)
	}
	return result, nil
}

// recordWithRetry reruns the unit of work when the invoice row changed under it
func (s *RecordPaymentService) recordWithRetry(ctx context.Context, req RecordPaymentRequest, userID string, log *zap.Logger) (*PaymentResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxConflictRetries+1; attempt++ {
		result, err := s.recordOnce(ctx, req, userID, log)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
		s.metrics.ConflictRetried(ctx)
		log.Debug("invoice version conflict, retrying", zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

// recordOnce is a single attempt of the unit of work
func (s *RecordPaymentService) recordOnce(ctx context.Context, req RecordPaymentRequest, userID string, log *zap.Logger) (*PaymentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.TransactionTimeout)
	defer cancel()

	var result *PaymentResult
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if req.IdempotencyKey != "" {
			prior, err := s.priorResult(ctx, repos, req.IdempotencyKey, log)
			if err != nil || prior != nil {
				result = prior
				return err
			}
		}

		invoice, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, req.InvoiceID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return invoiceNotFound(req.InvoiceID)
			}
			return fmt.Errorf("load invoice: %w", err)
		}
		if !invoice.CanAcceptPayment() {
			return notAcceptingPayments(invoice.Status)
		}
		if err := s.reconciler.ValidateAmount(req.Amount, invoice); err != nil {
			return translatePaymentError(err)
		}

		payment, err := invoicing.CreatePayment(
			invoice.ID,
			req.PaymentDate,
			req.Amount,
			invoicing.PaymentMethod(req.PaymentMethod),
			req.Reference,
			req.Notes,
			userID,
		)
		if err != nil {
			return err
		}
		payment.IdempotencyKey = req.IdempotencyKey
		if err := s.reconciler.ValidatePaymentAgainstInvoice(payment, invoice); err != nil {
			return translatePaymentError(err)
		}
		if err := payment.ApplyTo(invoice); err != nil {
			return err
		}

		if err := repos.InvoiceRepo().SaveWithLock(ctx, invoice); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				return err
			}
			return fmt.Errorf("save invoice: %w", err)
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) && payment.IdempotencyKey != "" {
				// Another holder of the key committed first. The retry replays it.
				return shared.ErrConcurrencyConflict
			}
			return fmt.Errorf("save payment: %w", err)
		}

		events := append(invoice.PullDomainEvents(), invoicing.NewPaymentRecordedEvent(payment, invoice))
		if err := repos.Events().Record(ctx, events...); err != nil {
			return fmt.Errorf("record payment events: %w", err)
		}

		result = newPaymentResult(payment, invoice, s.customerName(ctx, repos, invoice, log))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// priorResult rebuilds the result of a payment already committed under key.
// It returns nil when the key has not been used.
func (s *RecordPaymentService) priorResult(ctx context.Context, repos TransactionalRepositories, key string, log *zap.Logger) (*PaymentResult, error) {
	prior, err := repos.PaymentRepo().FindByIdempotencyKey(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment by idempotency key: %w", err)
	}
	invoice, err := repos.InvoiceRepo().FindByID(ctx, prior.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice of prior payment: %w", err)
	}
	log.Info("payment already committed under idempotency key", zap.String("payment_id", prior.ID.String()))
	return storedPaymentResult(prior, invoice, s.customerName(ctx, repos, invoice, log)), nil
}

// customerName looks up the display name for the result. A failed lookup
// leaves the name empty and does not fail the payment.
func (s *RecordPaymentService) customerName(ctx context.Context, repos TransactionalRepositories, invoice *invoicing.Invoice, log *zap.Logger) string {
	customer, err := repos.CustomerRepo().FindByID(ctx, invoice.CustomerID)
	if err != nil {
		log.Debug("customer lookup failed", zap.String("customer_id", invoice.CustomerID.String()), zap.Error(err))
		return ""
	}
	return customer.Name
}
