// Package bus defines the publish contract every component uses to emit
// integration events. Delivery is at-least-once; consumers acknowledge
// only after successful local processing.
package bus

import (
	"context"

	"github.com/tripsettle/tripsettle/internal/events"
)

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}
