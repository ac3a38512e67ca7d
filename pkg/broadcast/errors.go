package broadcast

import "errors"

var (
	// ErrBroadcasterClosed is returned when publishing to or subscribing on a closed broadcaster.
	ErrBroadcasterClosed = errors.New("broadcaster is closed")

	// ErrSubscriberClosed is returned when closing a subscriber twice.
	ErrSubscriberClosed = errors.New("subscriber is closed")

	// ErrShutdownTimeout is returned when pending deliveries were abandoned during shutdown.
	ErrShutdownTimeout = errors.New("broadcaster shutdown timeout exceeded")
)
