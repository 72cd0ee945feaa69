// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus carries stream notifications from the engine to consumers.
package bus

import "context"

// Topics published by the engine.
const (
	TopicStreamAdded   = "stream.added"
	TopicStreamUpdated = "stream.updated"
	TopicStreamRemoved = "stream.removed"
)

// StreamTopics lists every stream notification topic.
var StreamTopics = []string{TopicStreamAdded, TopicStreamUpdated, TopicStreamRemoved}

// Message is an opaque event payload.
type Message interface{}

type Subscriber interface {
	// C returns a read-only message channel. It is closed on unsubscribe.
	C() <-chan Message
	// Close unsubscribes. It is safe to call more than once.
	Close() error
}

// Bus is the notification transport.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
