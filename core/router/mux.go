package router

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrymomot/broadcaster/core/handler"
)

// table is the route registry shared by a router and its inline children.
type table struct {
	mu      sync.RWMutex
	std     *http.ServeMux
	routes  []Route
	methods []string
}

// mux implements Router on top of http.ServeMux.
type mux[C handler.Context] struct {
	table        *table
	middlewares  []handler.Middleware[C]
	errorHandler handler.ErrorHandler[C]
	newContext   func(http.ResponseWriter, *http.Request) C
	logger       *slog.Logger
	parent       *mux[C]
	inline       bool
	sealed       bool
}

func newMux[C handler.Context](opts ...Option[C]) *mux[C] {
	m := &mux[C]{
		table:        &table{std: http.NewServeMux()},
		errorHandler: defaultErrorHandler[C],
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.newContext == nil {
		var zero C
		if _, ok := any(zero).(*Context); !ok {
			panic(ErrNoContextFactory)
		}
		m.newContext = func(w http.ResponseWriter, r *http.Request) C {
			return any(NewContext(w, r)).(C)
		}
	}

	return m
}

// ServeHTTP implements http.Handler.
func (m *mux[C]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, pattern := m.table.std.Handler(r); pattern == "" {
		ww := newResponseWriter(w)
		ctx := m.newContext(ww, r)
		if allowed := m.allowed(r); len(allowed) > 0 {
			ww.Header().Set("Allow", strings.Join(allowed, ", "))
			m.errorHandler(ctx, ErrMethodNotAllowed)
			return
		}
		m.errorHandler(ctx, ErrNotFound)
		return
	}

	m.table.std.ServeHTTP(w, r)
}

// allowed lists the registered methods that would match r's path.
func (m *mux[C]) allowed(r *http.Request) []string {
	m.table.mu.RLock()
	methods := slices.Clone(m.table.methods)
	m.table.mu.RUnlock()

	var out []string
	for _, method := range methods {
		if method == r.Method {
			continue
		}
		probe := r.Clone(r.Context())
		probe.Method = method
		if _, pattern := m.table.std.Handler(probe); pattern != "" {
			out = append(out, method)
		}
	}
	return out
}

func (m *mux[C]) Get(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodGet, pattern, h)
}

func (m *mux[C]) Post(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPost, pattern, h)
}

func (m *mux[C]) Put(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPut, pattern, h)
}

func (m *mux[C]) Delete(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodDelete, pattern, h)
}

func (m *mux[C]) Handle(pattern string, h handler.HandlerFunc[C]) {
	m.handle("", pattern, h)
}

func (m *mux[C]) Method(method, pattern string, h handler.HandlerFunc[C]) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" || strings.ContainsAny(method, " /") {
		panic(fmt.Errorf("%w: %q", ErrInvalidMethod, method))
	}
	m.handle(method, pattern, h)
}

func (m *mux[C]) Use(middlewares ...handler.Middleware[C]) {
	if m.sealed {
		panic("router: all middlewares must be defined before routes on a mux")
	}
	m.middlewares = append(m.middlewares, middlewares...)
}

func (m *mux[C]) With(middlewares ...handler.Middleware[C]) Router[C] {
	return &mux[C]{
		table:        m.table,
		middlewares:  middlewares,
		errorHandler: m.errorHandler,
		newContext:   m.newContext,
		logger:       m.logger,
		parent:       m,
		inline:       true,
	}
}

func (m *mux[C]) Group(fn func(r Router[C])) Router[C] {
	im := m.With()
	if fn != nil {
		fn(im)
	}
	return im
}

func (m *mux[C]) Routes() []Route {
	m.table.mu.RLock()
	defer m.table.mu.RUnlock()
	return slices.Clone(m.table.routes)
}

func (m *mux[C]) root() *mux[C] {
	curr := m
	for curr.inline {
		curr = curr.parent
	}
	return curr
}

func (m *mux[C]) handle(method, pattern string, fn handler.HandlerFunc[C]) {
	if pattern == "" || pattern[0] != '/' {
		panic(fmt.Errorf("%w: %q", ErrInvalidPattern, pattern))
	}

	root := m.root()
	root.sealed = true

	// Inline routers contribute their middleware at registration time,
	// outermost parent first. Root middleware is applied per request.
	var inline []handler.Middleware[C]
	for curr := m; curr.inline; curr = curr.parent {
		inline = append(slices.Clone(curr.middlewares), inline...)
	}
	if len(inline) > 0 {
		fn = chain(inline, fn)
	}

	full := pattern
	if method != "" {
		full = method + " " + pattern
	}

	t := root.table
	t.mu.Lock()
	defer t.mu.Unlock()

	t.std.Handle(full, root.endpoint(fn))
	t.routes = append(t.routes, Route{Method: method, Pattern: pattern})
	if method != "" && !slices.Contains(t.methods, method) {
		t.methods = append(t.methods, method)
	}
}

// endpoint adapts a typed handler to http.Handler.
func (m *mux[C]) endpoint(fn handler.HandlerFunc[C]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := newResponseWriter(w)
		ctx := m.newContext(ww, r)

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}

				perr := &panicError{value: p, stack: debug.Stack()}
				if ww.Written() {
					m.logger.Error("panic after response written",
						slog.Any("value", perr.value),
						slog.String("stack", string(perr.stack)),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.Int("status", ww.Status()))
					return
				}
				m.errorHandler(ctx, perr)
			}
		}()

		h := fn
		if len(m.middlewares) > 0 {
			h = chain(m.middlewares, h)
		}

		response := h(ctx)
		if response == nil {
			m.errorHandler(ctx, ErrNilResponse)
			return
		}

		if err := response(ww, ctx.Request()); err != nil {
			m.errorHandler(ctx, err)
		}
	})
}

// chain wraps endpoint so that middlewares[0] runs first.
func chain[C handler.Context](middlewares []handler.Middleware[C], endpoint handler.HandlerFunc[C]) handler.HandlerFunc[C] {
	h := endpoint
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
