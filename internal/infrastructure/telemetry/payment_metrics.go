package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PaymentMetrics counts payment recording outcomes
type PaymentMetrics struct {
	recorded metric.Int64Counter
	rejected metric.Int64Counter
	replayed metric.Int64Counter
	retried  metric.Int64Counter
}

// NewPaymentMetrics registers the payment counters on meter. A nil meter
// uses the global meter provider.
func NewPaymentMetrics(meter metric.Meter) (*PaymentMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(InstrumentationName)
	}
	recorded, err := meter.Int64Counter("payments_recorded_total",
		metric.WithDescription("Payments committed against invoices"),
		metric.WithUnit("{payments}"))
	if err != nil {
		return nil, fmt.Errorf("create payments_recorded_total: %w", err)
	}
	rejected, err := meter.Int64Counter("payments_rejected_total",
		metric.WithDescription("Payment requests rejected by a business rule"),
		metric.WithUnit("{payments}"))
	if err != nil {
		return nil, fmt.Errorf("create payments_rejected_total: %w", err)
	}
	replayed, err := meter.Int64Counter("payments_replayed_total",
		metric.WithDescription("Payment requests answered from the idempotency store"),
		metric.WithUnit("{payments}"))
	if err != nil {
		return nil, fmt.Errorf("create payments_replayed_total: %w", err)
	}
	retried, err := meter.Int64Counter("payments_conflict_retries_total",
		metric.WithDescription("Payment transactions retried after a version conflict"),
		metric.WithUnit("{retries}"))
	if err != nil {
		return nil, fmt.Errorf("create payments_conflict_retries_total: %w", err)
	}
	return &PaymentMetrics{recorded: recorded, rejected: rejected, replayed: replayed, retried: retried}, nil
}

// Recorded counts a committed payment by method and resulting invoice status
func (m *PaymentMetrics) Recorded(ctx context.Context, method, status string) {
	if m == nil {
		return
	}
	m.recorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", method),
		attribute.String("invoice_status", status),
	))
}

// Rejected counts a request refused with the given error code
func (m *PaymentMetrics) Rejected(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// Replayed counts an idempotent replay
func (m *PaymentMetrics) Replayed(ctx context.Context) {
	if m == nil {
		return
	}
	m.replayed.Add(ctx, 1)
}

// ConflictRetried counts a retry after a version conflict
func (m *PaymentMetrics) ConflictRetried(ctx context.Context) {
	if m == nil {
		return
	}
	m.retried.Add(ctx, 1)
}
