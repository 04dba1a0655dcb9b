package events

import (
	"strings"
	"unicode"
)

// RoutingKey derives the bus routing key from an event type name:
// camel-case words become dot-separated lower-case tokens and the trailing
// "Event" suffix is dropped. "ReservationConfirmedEvent" routes as
// "reservation.confirmed".
func RoutingKey(kind string) string {
	kind = strings.TrimSuffix(kind, "Event")

	var tokens []string
	start := 0
	for i, r := range kind {
		if i > 0 && unicode.IsUpper(r) {
			tokens = append(tokens, strings.ToLower(kind[start:i]))
			start = i
		}
	}
	if start < len(kind) {
		tokens = append(tokens, strings.ToLower(kind[start:]))
	}

	return strings.Join(tokens, ".")
}
