package server

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*Server)

func WithTLS(config *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = config
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight requests.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.shutdown = timeout
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = timeout
	}
}

// WithWriteTimeout limits the time to write a response. Zero disables the limit,
// which long-lived streams require.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = timeout
	}
}

func WithIdleTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = timeout
	}
}

func WithMaxHeaderBytes(size int) Option {
	return func(s *Server) {
		s.maxHeaderBytes = size
	}
}

// WithOnShutdown registers functions called when graceful shutdown starts.
// Use it to end long-lived responses, which would otherwise hold Stop until its timeout.
func WithOnShutdown(fns ...func()) Option {
	return func(s *Server) {
		s.onShutdown = append(s.onShutdown, fns...)
	}
}
