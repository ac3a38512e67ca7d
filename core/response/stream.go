package response

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/broadcaster/core/handler"
)

// ContentTypeNDJSON is the media type of newline-delimited JSON.
const ContentTypeNDJSON = "application/x-ndjson"

type streamConfig struct {
	contentType string
	onError     func(context.Context, error)
}

// StreamOption configures a JSON stream.
type StreamOption func(*streamConfig)

// WithStreamContentType overrides the Content-Type, e.g. "application/stream+json".
func WithStreamContentType(contentType string) StreamOption {
	return func(s *streamConfig) {
		if contentType != "" {
			s.contentType = contentType
		}
	}
}

// WithStreamErrorHandler receives encode and write failures. The stream ends after the first one.
func WithStreamErrorHandler(fn func(context.Context, error)) StreamOption {
	return func(s *streamConfig) {
		s.onError = fn
	}
}

// StreamJSON writes each item as one JSON line and flushes it immediately.
// It returns when the channel is closed or the client disconnects.
func StreamJSON[T any](items <-chan T, opts ...StreamOption) handler.Response {
	cfg := &streamConfig{contentType: ContentTypeNDJSON}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) error {
		flusher, ok := w.(http.Flusher)
		if !ok {
			return ErrNotAcceptable.WithMessage("streaming unsupported")
		}

		w.Header().Set("Content-Type", cfg.contentType)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		enc := json.NewEncoder(w)

		for {
			select {
			case <-ctx.Done():
				return nil
			case item, ok := <-items:
				if !ok {
					return nil
				}
				// Encode appends the newline.
				if err := enc.Encode(item); err != nil {
					if cfg.onError != nil {
						cfg.onError(ctx, fmt.Errorf("encode stream item: %w", err))
					}
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
