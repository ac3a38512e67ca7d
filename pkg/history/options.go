package history

import "log/slog"

// All requests every stored message from Recent.
const All = -1

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	capacity int
}

// WithCapacity bounds the store to the newest n messages.
// Zero or negative keeps every message for the lifetime of the store.
func WithCapacity(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorderOptions)

type recorderOptions struct {
	logger *slog.Logger
}

// WithRecorderLogger sets the logger used for per-message records and failures.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(o *recorderOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
