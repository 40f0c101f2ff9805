// Package pubsub fans out engine events (registry rebuilds, log lines) to
// any number of subscribers without blocking the publisher.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened.
type EventType string

const (
	// RebuiltEvent carries a freshly sealed registry snapshot.
	RebuiltEvent EventType = "registry.rebuilt"
	// RebuildFailedEvent carries the error of a rejected rebuild. The previous
	// snapshot stays current.
	RebuildFailedEvent EventType = "registry.rebuild_failed"
	// LogEvent carries one formatted log line.
	LogEvent EventType = "log.entry"
)

// Event is a published payload with its type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes typed payloads.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
