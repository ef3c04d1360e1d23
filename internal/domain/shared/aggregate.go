package shared

// BaseAggregateRoot carries the optimistic-lock version and the events raised
// since the aggregate was loaded. Repositories compare Version on save; the
// application layer drains the events into the outbox in the same transaction.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
	pending []DomainEvent
}

func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(), Version: 1}
}

// IncrementVersion is called by repositories after a successful versioned write
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// Raise queues an event for the next drain
func (a *BaseAggregateRoot) Raise(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// PendingEvents returns the queued events without draining them
func (a *BaseAggregateRoot) PendingEvents() []DomainEvent {
	return a.pending
}

// PullDomainEvents drains the queue. The result is never nil.
func (a *BaseAggregateRoot) PullDomainEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	if events == nil {
		return []DomainEvent{}
	}
	return events
}

// ClearDomainEvents drops queued events, used when rehydrating from storage
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.pending = nil
}
