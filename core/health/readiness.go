package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/broadcaster/core/handler"
	"github.com/dmitrymomot/broadcaster/core/logger"
	"github.com/dmitrymomot/broadcaster/core/response"
)

// Check is a named dependency probe.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// Report is the readiness response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	checkOK        = "ok"
)

// Readiness runs checks in order and answers 200 when all pass, 503 otherwise.
func Readiness[C handler.Context](log *slog.Logger, checks ...Check) handler.HandlerFunc[C] {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(ctx C) handler.Response {
		report := Report{Status: StatusReady, Checks: make(map[string]string, len(checks))}

		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed",
					logger.Component(c.Name),
					logger.Error(err))
				report.Status = StatusNotReady
				report.Checks[c.Name] = err.Error()
				continue
			}
			report.Checks[c.Name] = checkOK
		}

		if report.Status != StatusReady {
			return response.JSONWithStatus(report, http.StatusServiceUnavailable)
		}
		return response.JSON(report)
	}
}
