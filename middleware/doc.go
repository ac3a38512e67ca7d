// Package middleware holds the typed handler.Middleware used by the HTTP boundary:
// request IDs, structured request logging, request body limits and Prometheus
// request metrics.
//
// Every constructor is generic over the context type and comes in a default and a
// WithConfig flavour:
//
//	r.Use(
//		middleware.RequestID[*router.Context](),
//		middleware.LoggingWithLogger[*router.Context](log),
//		middleware.Metrics[*router.Context](prom),
//		middleware.BodyLimitWithSize[*router.Context](64<<10),
//	)
//
// Wrapped response writers keep http.Flusher and http.Hijacker working, so the
// middleware can sit in front of SSE and WebSocket routes.
package middleware
