package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// HandlerFunc consumes the raw body of one delivered event. A returned
// error means the delivery must not be acknowledged.
type HandlerFunc func(ctx context.Context, body []byte) error

// Registry maps routing keys to handlers. It is built once at startup and
// never mutated afterwards; there is no runtime type discovery.
type Registry struct {
	handlers map[string]HandlerFunc
	sealed   bool
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

// Register binds a handler to the routing key of kind. Registering after
// Seal or registering a key twice is a programming error.
func (r *Registry) Register(kind string, h HandlerFunc) {
	key := RoutingKey(kind)
	if r.sealed {
		panic(fmt.Sprintf("events: register %q on sealed registry", key))
	}
	if _, ok := r.handlers[key]; ok {
		panic(fmt.Sprintf("events: duplicate handler for %q", key))
	}
	r.handlers[key] = h
}

// Seal freezes the registry. Consumers only read from a sealed registry,
// so no locking is needed at dispatch time.
func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Handler(routingKey string) (HandlerFunc, bool) {
	h, ok := r.handlers[routingKey]
	return h, ok
}

// RoutingKeys lists the keys a consumer queue must bind, sorted for
// deterministic queue declarations.
func (r *Registry) RoutingKeys() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Typed decodes the body into T, validates it and calls fn. Decode and
// validation failures are permanent: the consumer parks such deliveries
// in the dead-letter queue, redelivery can not fix a malformed payload.
func Typed[T any](v *validator.Validate, fn func(ctx context.Context, event T) error) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var event T
		if err := json.Unmarshal(body, &event); err != nil {
			return &MalformedEventError{Err: err}
		}
		if err := v.StructCtx(ctx, event); err != nil {
			return &MalformedEventError{Err: err}
		}
		return fn(ctx, event)
	}
}

// MalformedEventError marks payloads that can never be processed.
type MalformedEventError struct {
	Err error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event payload: %v", e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }
