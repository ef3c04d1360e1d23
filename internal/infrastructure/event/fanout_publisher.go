package event

import (
	"context"
	"errors"

	"github.com/invoicing/backend/internal/domain/shared"
)

// FanoutPublisher publishes every event to each sink in order.
// All sinks are attempted; their errors are joined.
type FanoutPublisher struct {
	sinks []shared.EventPublisher
}

// NewFanoutPublisher creates a publisher over the given sinks. Nil sinks are skipped.
func NewFanoutPublisher(sinks ...shared.EventPublisher) *FanoutPublisher {
	f := &FanoutPublisher{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish delivers events to every sink
func (f *FanoutPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure FanoutPublisher implements EventPublisher
var _ shared.EventPublisher = (*FanoutPublisher)(nil)
