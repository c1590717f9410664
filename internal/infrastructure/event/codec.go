package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/erp/manufacture/internal/domain/shared"
)

// ErrUnknownEventType is returned when decoding a type that was never registered
var ErrUnknownEventType = errors.New("event codec: unknown event type")

// JSONCodec stores domain events as JSON and restores them by their registered type
type JSONCodec struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewJSONCodec creates a codec with no registered types
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{types: make(map[string]reflect.Type)}
}

// Register maps eventType to the concrete type of prototype
func (c *JSONCodec) Register(eventType string, prototype shared.DomainEvent) {
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[eventType] = t
}

// Encode marshals event; only registered types can be decoded later
func (c *JSONCodec) Encode(event shared.DomainEvent) ([]byte, error) {
	if !c.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType())
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event.EventType(), err)
	}
	return payload, nil
}

// Decode unmarshals payload into a new value of the type registered for eventType
func (c *JSONCodec) Decode(eventType string, payload []byte) (shared.DomainEvent, error) {
	c.mu.RLock()
	t, ok := c.types[eventType]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	ptr := reflect.New(t).Interface()
	if err := json.Unmarshal(payload, ptr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	event, ok := ptr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("registered type for %s is not a domain event", eventType)
	}
	return event, nil
}

// IsRegistered reports whether eventType can be decoded
func (c *JSONCodec) IsRegistered(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[eventType]
	return ok
}

var _ shared.EventCodec = (*JSONCodec)(nil)
