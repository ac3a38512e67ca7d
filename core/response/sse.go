package response

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/broadcaster/core/handler"
)

// DefaultSSEKeepAlive is the default interval between keep-alive comments.
const DefaultSSEKeepAlive = 30 * time.Second

type sseConfig struct {
	eventName string
	idGen     func(any) string
	reconnect time.Duration
	keepAlive time.Duration
	onError   func(context.Context, error)
}

// EventOption configures an SSE response.
type EventOption func(*sseConfig)

// WithEventName sets the "event:" field of every event.
func WithEventName(name string) EventOption {
	return func(s *sseConfig) {
		s.eventName = name
	}
}

// WithEventIDGenerator derives the "id:" field from each event.
func WithEventIDGenerator(fn func(data any) string) EventOption {
	return func(s *sseConfig) {
		s.idGen = fn
	}
}

// WithReconnectTime sends a "retry:" field so clients wait d before reconnecting.
func WithReconnectTime(d time.Duration) EventOption {
	return func(s *sseConfig) {
		s.reconnect = d
	}
}

// WithKeepAlive sets the keep-alive interval. Zero or negative disables keep-alives.
func WithKeepAlive(interval time.Duration) EventOption {
	return func(s *sseConfig) {
		s.keepAlive = interval
	}
}

// WithSSEErrorHandler receives write failures. The stream ends after the first one.
func WithSSEErrorHandler(fn func(context.Context, error)) EventOption {
	return func(s *sseConfig) {
		s.onError = fn
	}
}

// SSE streams events as text/event-stream until the channel is closed or the client goes away.
// Strings and byte slices are sent verbatim; other values are JSON encoded.
func SSE[T any](events <-chan T, opts ...EventOption) handler.Response {
	cfg := &sseConfig{keepAlive: DefaultSSEKeepAlive}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, req *http.Request) error {
		flusher, ok := w.(http.Flusher)
		if !ok {
			return ErrNotAcceptable.WithMessage("streaming unsupported")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		ctx := req.Context()
		fail := func(err error) error {
			if cfg.onError != nil {
				cfg.onError(ctx, err)
			}
			return nil
		}

		if cfg.reconnect > 0 {
			if _, err := fmt.Fprintf(w, "retry: %d\n\n", cfg.reconnect.Milliseconds()); err != nil {
				return fail(fmt.Errorf("write retry: %w", err))
			}
		}
		if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
			return fail(fmt.Errorf("write connection message: %w", err))
		}
		flusher.Flush()

		var keepAlive <-chan time.Time
		if cfg.keepAlive > 0 {
			ticker := time.NewTicker(cfg.keepAlive)
			defer ticker.Stop()
			keepAlive = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return nil

			case <-keepAlive:
				if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
					return fail(fmt.Errorf("send keepalive: %w", err))
				}
				flusher.Flush()

			case data, ok := <-events:
				if !ok {
					return nil
				}
				if err := writeSSEEvent(w, data, cfg); err != nil {
					return fail(fmt.Errorf("write event: %w", err))
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSEEvent(w io.Writer, data any, cfg *sseConfig) error {
	if cfg.eventName != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", cfg.eventName); err != nil {
			return err
		}
	}

	if cfg.idGen != nil {
		if id := cfg.idGen(data); id != "" {
			if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
				return err
			}
		}
	}

	var payload string
	switch v := data.(type) {
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		payload = string(b)
	}

	// Multi-line payloads need one data field per line.
	for line := range strings.SplitSeq(payload, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}
