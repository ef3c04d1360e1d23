package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event delivery outcomes
const (
	OutcomeHandled   = "handled"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// EventMetrics counts what subscribers did with delivered events
type EventMetrics struct {
	deliveries metric.Int64Counter
}

// NewEventMetrics registers the event counters on meter. A nil meter uses the
// global meter provider.
func NewEventMetrics(meter metric.Meter) (*EventMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(InstrumentationName)
	}
	deliveries, err := meter.Int64Counter("event_deliveries_total",
		metric.WithDescription("Events delivered to subscribers by outcome"),
		metric.WithUnit("{events}"))
	if err != nil {
		return nil, fmt.Errorf("create event_deliveries_total: %w", err)
	}
	return &EventMetrics{deliveries: deliveries}, nil
}

// Delivered counts one delivery of eventType with the given outcome
func (m *EventMetrics) Delivered(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}
