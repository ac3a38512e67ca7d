package server

import "time"

const (
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is zero: live streams stay open for as long as the client listens.
	DefaultWriteTimeout = 0

	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20
)
