package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/broadcaster/core/handler"
	"github.com/dmitrymomot/broadcaster/core/response"
	"github.com/dmitrymomot/broadcaster/core/router"
	"github.com/dmitrymomot/broadcaster/middleware"
)

type ctx = *router.Context

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("generates and exposes an id", func(t *testing.T) {
		t.Parallel()

		var seen string
		r := router.New[ctx]()
		r.Use(middleware.RequestID[ctx]())
		r.Get("/", func(c ctx) handler.Response {
			seen, _ = middleware.GetRequestID(c)
			return response.String("ok")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("ignores client ids by default", func(t *testing.T) {
		t.Parallel()

		r := router.New[ctx]()
		r.Use(middleware.RequestID[ctx]())
		r.Get("/", func(c ctx) handler.Response { return response.String("ok") })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.NotEqual(t, "client", w.Header().Get("X-Request-ID"))
	})

	t.Run("reuses client ids when configured", func(t *testing.T) {
		t.Parallel()

		r := router.New[ctx]()
		r.Use(middleware.RequestIDWithConfig[ctx](middleware.RequestIDConfig{
			HeaderName:  "X-Trace",
			UseExisting: true,
		}))
		r.Get("/", func(c ctx) handler.Response { return response.String("ok") })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Trace", "client")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "client", w.Header().Get("X-Trace"))
	})
}

func TestLogging(t *testing.T) {
	t.Parallel()

	t.Run("logs completed requests", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))

		r := router.New[ctx]()
		r.Use(middleware.RequestID[ctx](), middleware.LoggingWithLogger[ctx](log))
		r.Get("/last", func(c ctx) handler.Response { return response.String("hello") })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/last", nil))

		out := buf.String()
		assert.Contains(t, out, "HTTP request completed")
		assert.Contains(t, out, "path=/last")
		assert.Contains(t, out, "status_code=200")
		assert.Contains(t, out, "bytes_out=5")
		assert.Contains(t, out, "request_id="+w.Header().Get("X-Request-ID"))
	})

	t.Run("logs handler errors with their status", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))

		r := router.New[ctx](router.WithErrorHandler[ctx](response.ErrorHandler[ctx]))
		r.Use(middleware.LoggingWithLogger[ctx](log))
		r.Post("/", func(c ctx) handler.Response { return response.Error(response.ErrBadRequest) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "status_code=400")
	})

	t.Run("keeps the writer flushable", func(t *testing.T) {
		t.Parallel()

		r := router.New[ctx]()
		r.Use(middleware.LoggingWithLogger[ctx](slog.New(slog.NewTextHandler(io.Discard, nil))))
		r.Get("/", func(c ctx) handler.Response {
			return func(w http.ResponseWriter, r *http.Request) error {
				_, ok := w.(http.Flusher)
				if !ok {
					return response.ErrNotAcceptable
				}
				_, err := w.Write([]byte("flushable"))
				return err
			}
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "flushable", w.Body.String())
	})
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	echo := func(c ctx) handler.Response {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return response.Error(response.ErrRequestTooLarge)
		}
		return response.String(string(body))
	}

	newRouter := func(cfg middleware.BodyLimitConfig) http.Handler {
		r := router.New[ctx](router.WithErrorHandler[ctx](response.ErrorHandler[ctx]))
		r.Use(middleware.BodyLimitWithConfig[ctx](cfg))
		r.Post("/", echo)
		return r
	}

	t.Run("accepts bodies within the limit", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		newRouter(middleware.BodyLimitConfig{MaxSize: 8}).
			ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "hello", w.Body.String())
	})

	t.Run("rejects by content length", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		newRouter(middleware.BodyLimitConfig{MaxSize: 4}).
			ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("caps bodies without content length", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader("hello")))
		req.ContentLength = -1

		w := httptest.NewRecorder()
		newRouter(middleware.BodyLimitConfig{MaxSize: 4}).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("per content type limits", func(t *testing.T) {
		t.Parallel()

		h := newRouter(middleware.BodyLimitConfig{
			MaxSize:          100,
			ContentTypeLimit: map[string]int64{"text/plain": 2},
		})

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
		req.Header.Set("Content-Type", "application/json")
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type observation struct {
	method, route string
	status        int
}

type recorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recorder) ObserveRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{method, route, status})
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	obs := &recorder{}
	r := router.New[ctx](router.WithErrorHandler[ctx](response.ErrorHandler[ctx]))
	r.Use(middleware.Metrics[ctx](obs))
	r.Get("/last/{amount}", func(c ctx) handler.Response { return response.String(c.Param("amount")) })
	r.Post("/{$}", func(c ctx) handler.Response { return response.Error(response.ErrServiceUnavailable) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/last/3", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

	require.Len(t, obs.obs, 2)
	assert.Equal(t, observation{http.MethodGet, "/last/{amount}", http.StatusOK}, obs.obs[0])
	assert.Equal(t, observation{http.MethodPost, "/{$}", http.StatusServiceUnavailable}, obs.obs[1])
}
