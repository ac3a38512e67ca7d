package broadcast

import (
	"log/slog"
	"time"
)

const (
	// DefaultBufferSize is the default per-subscriber buffer size.
	DefaultBufferSize = 100

	// DefaultIntakeSize is the default capacity of the intake queue.
	DefaultIntakeSize = 100

	// DefaultShutdownTimeout bounds the time Close spends delivering accepted messages.
	DefaultShutdownTimeout = 30 * time.Second
)

// Option configures a MemoryBroadcaster.
type Option func(*options)

type options struct {
	bufferSize      int
	intakeSize      int
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// WithBufferSize sets how many messages a subscriber may lag behind
// before the dispatcher waits for it. Non-positive values are ignored.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithIntakeSize sets the capacity of the intake queue.
// Publishers block once this many messages wait for the dispatcher.
func WithIntakeSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.intakeSize = size
		}
	}
}

// WithShutdownTimeout configures the maximum time Close spends delivering
// messages that were accepted before shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithLogger configures structured logging for the broadcaster.
// Use slog.New(slog.NewTextHandler(io.Discard, nil)) to disable logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
