package broadcaster

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/broadcaster/core/handler"
	"github.com/dmitrymomot/broadcaster/core/health"
	"github.com/dmitrymomot/broadcaster/core/metrics"
	"github.com/dmitrymomot/broadcaster/core/response"
	"github.com/dmitrymomot/broadcaster/core/router"
	"github.com/dmitrymomot/broadcaster/core/server"
	"github.com/dmitrymomot/broadcaster/middleware"
)

// App is the broadcaster HTTP service.
type App struct {
	config  Config
	service *Service
	metrics *metrics.Prom
	router  router.Router[*router.Context]
	server  *server.Server
	logger  *slog.Logger
	wsOpts  []response.WebSocketOption
}

type AppOption func(*App) error

// NewApp builds the service, its routes and the HTTP server from cfg.
func NewApp(cfg Config, opts ...AppOption) (*App, error) {
	app := &App{
		config: cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.service == nil {
		svc, err := NewService(cfg, WithServiceLogger(app.logger))
		if err != nil {
			return nil, err
		}
		app.service = svc
	}

	if app.metrics == nil {
		app.metrics = metrics.New(cfg.MetricsNamespace)
	}
	app.metrics.WatchBroadcaster(app.service)
	app.metrics.WatchHistory(app.service)

	app.router = app.routes()

	srv, err := server.NewFromConfig(cfg.Server,
		server.WithLogger(app.logger),
		// Live streams only end when the hub closes.
		server.WithOnShutdown(func() { _ = app.service.Close() }),
	)
	if err != nil {
		_ = app.service.Close()
		return nil, err
	}
	app.server = srv

	return app, nil
}

func WithLogger(log *slog.Logger) AppOption {
	return func(app *App) error {
		if log == nil {
			return ErrNilLogger
		}
		app.logger = log
		return nil
	}
}

// WithService replaces the service built from the config.
func WithService(svc *Service) AppOption {
	return func(app *App) error {
		if svc == nil {
			return ErrNilService
		}
		app.service = svc
		return nil
	}
}

func WithMetrics(m *metrics.Prom) AppOption {
	return func(app *App) error {
		app.metrics = m
		return nil
	}
}

// WithWebSocketOptions configures the /ws upgrader, e.g. response.WithWSAllowAnyOrigin().
func WithWebSocketOptions(opts ...response.WebSocketOption) AppOption {
	return func(app *App) error {
		app.wsOpts = append(app.wsOpts, opts...)
		return nil
	}
}

func (app *App) routes() router.Router[*router.Context] {
	h := &handlers{
		svc:       app.service,
		streams:   app.metrics,
		keepAlive: app.config.SSEKeepAlive,
		wsOpts:    app.wsOpts,
		logger:    app.logger,
	}

	r := router.New[*router.Context](
		router.WithErrorHandler[*router.Context](response.JSONErrorHandler[*router.Context]),
		router.WithLogger[*router.Context](app.logger),
	)
	r.Use(
		middleware.RequestID[*router.Context](),
		middleware.LoggingWithLogger[*router.Context](app.logger),
		middleware.Metrics[*router.Context](app.metrics),
	)

	r.Get("/health/live", health.Liveness[*router.Context])
	r.Get("/health/ready", health.Readiness[*router.Context](app.logger,
		health.Check{Name: "broadcaster", Fn: app.service.Healthcheck}))
	r.Get("/metrics", func(*router.Context) handler.Response {
		return handler.FromHTTP(app.metrics.Handler())
	})

	r.With(middleware.BodyLimitWithSize[*router.Context](app.config.MaxBodySize)).
		Post("/{$}", h.publish)
	r.Get("/{$}", h.stream)
	r.Get("/ws", h.websocket)
	r.Get("/last", h.last)
	r.Get("/last/{amount}", h.last)

	return r
}

// Handler returns the routed HTTP handler.
func (app *App) Handler() http.Handler {
	return app.router
}

// Service returns the underlying broadcaster service.
func (app *App) Service() *Service {
	return app.service
}

// Run serves HTTP until ctx is done, then closes the service.
func (app *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(app.server.Run(ctx, app.router))
	err := g.Wait()

	if cerr := app.service.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the service without running the server.
func (app *App) Close() error {
	return app.service.Close()
}
