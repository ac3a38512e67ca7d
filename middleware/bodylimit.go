package middleware

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/dmitrymomot/broadcaster/core/handler"
	"github.com/dmitrymomot/broadcaster/core/response"
)

// DefaultBodyLimit is used when no size is configured.
const DefaultBodyLimit int64 = 1 << 20

// BodyLimitConfig configures the request body limit middleware.
type BodyLimitConfig struct {
	Skip func(ctx handler.Context) bool
	// MaxSize in bytes. Defaults to DefaultBodyLimit.
	MaxSize int64
	// ContentTypeLimit overrides MaxSize per media type, e.g. {"text/plain": 4096}.
	ContentTypeLimit map[string]int64
}

func BodyLimit[C handler.Context]() handler.Middleware[C] {
	return BodyLimitWithConfig[C](BodyLimitConfig{})
}

func BodyLimitWithSize[C handler.Context](maxSize int64) handler.Middleware[C] {
	return BodyLimitWithConfig[C](BodyLimitConfig{MaxSize: maxSize})
}

// BodyLimitWithConfig rejects requests whose declared Content-Length exceeds the
// limit and caps reads of bodies that do not declare one.
func BodyLimitWithConfig[C handler.Context](cfg BodyLimitConfig) handler.Middleware[C] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultBodyLimit
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			req := ctx.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(ctx)
			}

			limit := cfg.MaxSize
			if len(cfg.ContentTypeLimit) > 0 {
				if mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type")); err == nil {
					if l, ok := cfg.ContentTypeLimit[mediaType]; ok && l > 0 {
						limit = l
					}
				}
			}

			if req.ContentLength > limit {
				return response.Error(response.ErrRequestTooLarge.WithMessage(
					fmt.Sprintf("request body too large: %d bytes, limit %d", req.ContentLength, limit)))
			}

			req.Body = http.MaxBytesReader(ctx.ResponseWriter(), req.Body, limit)
			return next(ctx)
		}
	}
}
