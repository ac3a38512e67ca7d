package router

import (
	"net/http"

	"github.com/dmitrymomot/broadcaster/core/handler"
)

// Router dispatches requests to typed handlers.
// Patterns use net/http.ServeMux syntax without the method prefix:
// "/last/{amount}", "/files/{path...}", "/{$}".
type Router[C handler.Context] interface {
	http.Handler

	Get(pattern string, h handler.HandlerFunc[C])
	Post(pattern string, h handler.HandlerFunc[C])
	Put(pattern string, h handler.HandlerFunc[C])
	Delete(pattern string, h handler.HandlerFunc[C])

	// Handle registers h for every method.
	Handle(pattern string, h handler.HandlerFunc[C])
	Method(method, pattern string, h handler.HandlerFunc[C])

	// Use appends middleware. All middleware must be added before the first route.
	Use(middlewares ...handler.Middleware[C])
	// With returns an inline router whose routes also run the given middleware.
	With(middlewares ...handler.Middleware[C]) Router[C]
	Group(fn func(r Router[C])) Router[C]

	Routes() []Route
}

// Route describes a registered route.
type Route struct {
	Method  string
	Pattern string
}

// New creates a router.
func New[C handler.Context](opts ...Option[C]) Router[C] {
	return newMux(opts...)
}
