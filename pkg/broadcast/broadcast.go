package broadcast

import (
	"context"
	"time"
)

// Message is a payload stamped by the broadcaster.
type Message[T any] struct {
	ID          uint64    // Sequence number, assigned once by the dispatcher
	Data        T         // Published payload
	PublishedAt time.Time // When the dispatcher stamped the message
}

// Broadcaster sends messages to multiple subscribers in a single total order.
type Broadcaster[T any] interface {
	// Broadcast hands data to the intake queue. It returns once the message is accepted,
	// without waiting for delivery. It blocks only while the intake queue is full.
	Broadcast(ctx context.Context, data T) error

	// Subscribe attaches a new subscriber. The subscription is closed when ctx is done.
	Subscribe(ctx context.Context) (Subscriber[T], error)

	// Intake returns the write-side handle of the broadcaster.
	Intake() Sink[T]

	// Close shuts the broadcaster down using the configured shutdown timeout.
	Close() error
}

// Subscriber receives broadcast messages.
type Subscriber[T any] interface {
	// ID returns the unique subscriber identifier.
	ID() string

	// Receive returns the message channel. It is closed once the subscriber is detached
	// or the broadcaster is closed.
	Receive() <-chan Message[T]

	// Done is closed as soon as Close is called.
	Done() <-chan struct{}

	// Close detaches the subscriber. Later calls return ErrSubscriberClosed.
	Close() error
}

// Sink accepts payloads for broadcasting.
type Sink[T any] interface {
	Publish(ctx context.Context, data T) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc[T any] func(ctx context.Context, data T) error

// Publish calls f(ctx, data).
func (f SinkFunc[T]) Publish(ctx context.Context, data T) error {
	return f(ctx, data)
}

// Stats provides observability counters for monitoring and debugging.
type Stats struct {
	Published       int64 // Messages stamped by the dispatcher
	Delivered       int64 // Successful per-subscriber deliveries
	Abandoned       int64 // Deliveries given up after the shutdown deadline
	Stalls          int64 // Intake requests that had to wait for capacity
	Subscribers     int32
	IsRunning       bool
	LastPublishedAt time.Time
}
