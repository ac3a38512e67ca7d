package middleware

import (
	"net/http"
	"time"

	"github.com/dmitrymomot/broadcaster/core/handler"
)

// RequestObserver receives one observation per completed request.
// *metrics.Prom satisfies it.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Metrics reports each request to obs, labelled with the matched route pattern
// so path parameters do not blow up label cardinality.
func Metrics[C handler.Context](obs RequestObserver) handler.Middleware[C] {
	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			start := time.Now()
			response := next(ctx)
			if response == nil {
				return nil
			}

			return observe(response, func(w *statusWriter, r *http.Request, err error) {
				obs.ObserveRequest(r.Method, routeOf(r), statusOf(w, err), time.Since(start))
			})
		}
	}
}

// routeOf strips the method prefix ServeMux keeps in Pattern.
func routeOf(r *http.Request) string {
	p := r.Pattern
	for i := 0; i < len(p); i++ {
		if p[i] == ' ' {
			return p[i+1:]
		}
		if p[i] == '/' {
			break
		}
	}
	return p
}
