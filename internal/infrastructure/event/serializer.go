package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/invoicing/backend/internal/domain/shared"
)

// ErrUnknownEventType is returned for event types that were never registered
var ErrUnknownEventType = errors.New("unknown event type")

// EventSerializer turns events into outbox payloads and back. Payloads are the
// plain JSON of the concrete event, so broker consumers can read them as is.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer creates a serializer with no known event types
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// eventPointer constrains P to *E where *E is a domain event
type eventPointer[E any] interface {
	*E
	shared.DomainEvent
}

// Register teaches s to decode eventType payloads into *E
func Register[E any, P eventPointer[E]](s *EventSerializer, eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = func() shared.DomainEvent { return P(new(E)) }
}

// Serialize encodes event. Unregistered types are rejected so nothing lands
// in the outbox that the relay could not decode.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.Knows(event.EventType()) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType())
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data into a new instance of the type registered for eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	return event, nil
}

// Knows reports whether eventType is registered
func (s *EventSerializer) Knows(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}

// Types returns the registered event types in sorted order
func (s *EventSerializer) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
