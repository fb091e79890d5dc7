// Package queue publishes auth lifecycle events to the message broker.
package queue

// Envelope is the message body written to the auth.events queue.  It carries
// enough for downstream consumers to log, notify or trigger analytics
// without querying the primary database.
type Envelope struct {
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Service   string         `json:"service"`
	Data      map[string]any `json:"data"`
}
