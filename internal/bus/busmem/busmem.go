// Package busmem is an in-memory bus used by unit tests. It records every
// published event and optionally dispatches synchronously to a registry.
package busmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tripsettle/tripsettle/internal/events"
)

type Bus struct {
	mu        sync.Mutex
	published []events.Event

	// FailKinds makes Publish fail for the listed kinds, for error-path tests.
	FailKinds map[string]error

	registry *events.Registry
}

func New() *Bus {
	return &Bus{}
}

// WithRegistry makes Publish dispatch each event to the registry handler
// bound to its routing key, mimicking a broker round-trip in process.
func (b *Bus) WithRegistry(r *events.Registry) *Bus {
	b.registry = r
	return b
}

func (b *Bus) Publish(ctx context.Context, event events.Event) error {
	if err, ok := b.FailKinds[event.Kind()]; ok {
		return err
	}

	b.mu.Lock()
	b.published = append(b.published, event)
	b.mu.Unlock()

	if b.registry != nil {
		handler, ok := b.registry.Handler(events.RoutingKey(event.Kind()))
		if !ok {
			return nil
		}
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("busmem: marshal %s: %w", event.Kind(), err)
		}
		return handler(ctx, body)
	}
	return nil
}

// Published returns a copy of everything published so far.
func (b *Bus) Published() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedOfKind filters the published events by kind.
func (b *Bus) PublishedOfKind(kind string) []events.Event {
	var out []events.Event
	for _, e := range b.Published() {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}
