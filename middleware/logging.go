package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/broadcaster/core/handler"
	"github.com/dmitrymomot/broadcaster/core/logger"
)

// LoggingConfig configures request logging.
type LoggingConfig struct {
	Skip   func(ctx handler.Context) bool
	Logger *slog.Logger
	// LogLevel for successful requests. Defaults to info.
	LogLevel slog.Level
	// LogRequest also logs when a request starts, which helps with long-lived streams.
	LogRequest bool
	// SlowRequestThreshold logs slower requests at warn level. Defaults to 5s.
	// Requests whose response is a live stream are exempt.
	SlowRequestThreshold time.Duration
	Component            string
}

// Logging logs each completed request with the default logger.
func Logging[C handler.Context]() handler.Middleware[C] {
	return LoggingWithConfig[C](LoggingConfig{})
}

// LoggingWithLogger logs each completed request with log.
func LoggingWithLogger[C handler.Context](log *slog.Logger) handler.Middleware[C] {
	return LoggingWithConfig[C](LoggingConfig{Logger: log})
}

func LoggingWithConfig[C handler.Context](cfg LoggingConfig) handler.Middleware[C] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SlowRequestThreshold <= 0 {
		cfg.SlowRequestThreshold = 5 * time.Second
	}
	if cfg.Component == "" {
		cfg.Component = "http"
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			start := time.Now()
			req := ctx.Request()
			requestID, _ := GetRequestID(ctx)

			if cfg.LogRequest {
				cfg.Logger.LogAttrs(ctx, cfg.LogLevel, "HTTP request started",
					logger.Component(cfg.Component),
					logger.Event("request"),
					logger.Method(req.Method),
					logger.Path(req.URL.Path),
					logger.ClientIP(req.RemoteAddr),
					logger.UserAgent(req.UserAgent()),
					logger.RequestID(requestID))
			}

			response := next(ctx)
			if response == nil {
				return nil
			}

			return observe(response, func(w *statusWriter, r *http.Request, err error) {
				elapsed := time.Since(start)
				status := statusOf(w, err)

				attrs := []slog.Attr{
					logger.Component(cfg.Component),
					logger.Event("response"),
					logger.Method(req.Method),
					logger.Path(req.URL.Path),
					logger.StatusCode(status),
					slog.Int64("bytes_out", w.size),
					logger.Duration(elapsed),
					logger.RequestID(requestID),
				}

				level := cfg.LogLevel
				switch {
				case status >= http.StatusInternalServerError:
					level = slog.LevelError
					attrs = append(attrs, logger.Error(err))
				case status >= http.StatusBadRequest:
					level = slog.LevelWarn
					attrs = append(attrs, logger.Error(err))
				case elapsed > cfg.SlowRequestThreshold && !isStream(w):
					level = slog.LevelWarn
					attrs = append(attrs, slog.Bool("slow_request", true))
				}

				cfg.Logger.LogAttrs(r.Context(), level, "HTTP request completed", attrs...)
			})
		}
	}
}

func isStream(w *statusWriter) bool {
	if w.status == http.StatusSwitchingProtocols {
		return true
	}
	switch w.Header().Get("Content-Type") {
	case "text/event-stream", "application/x-ndjson", "application/stream+json":
		return true
	}
	return false
}
