package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
)

// StatsSource exposes broadcaster counters.
type StatsSource interface {
	Stats() broadcast.Stats
}

// HistorySource exposes history recorder counters.
type HistorySource interface {
	Recorded() int64
	Failed() int64
	Len() int
}

// Prom owns a private registry so tests and multiple instances never collide.
type Prom struct {
	reg       *prometheus.Registry
	namespace string

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveStreams   *prometheus.GaugeVec
}

// New creates a registry with Go runtime and process collectors plus HTTP request metrics.
func New(namespace string) *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg:       reg,
		namespace: namespace,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time to produce HTTP responses, including whole streams.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ActiveStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open live streams by transport.",
		}, []string{"transport"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		p.Requests,
		p.RequestDuration,
		p.ActiveStreams,
	)

	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

// Registry returns the underlying registry for collectors registered outside this package.
func (p *Prom) Registry() *prometheus.Registry {
	return p.reg
}

// ObserveRequest records one finished HTTP request.
func (p *Prom) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StreamOpened increments the open stream gauge and returns the matching decrement.
func (p *Prom) StreamOpened(transport string) (closed func()) {
	g := p.ActiveStreams.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

// WatchBroadcaster exports src's counters, read at scrape time.
func (p *Prom) WatchBroadcaster(src StatsSource) {
	counter := func(name, help string, read func(broadcast.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "broadcaster",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(src.Stats())) })
	}
	gauge := func(name, help string, read func(broadcast.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "broadcaster",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(src.Stats()) })
	}

	p.reg.MustRegister(
		counter("published_total", "Messages stamped with a sequence number.",
			func(s broadcast.Stats) int64 { return s.Published }),
		counter("delivered_total", "Per-subscriber deliveries.",
			func(s broadcast.Stats) int64 { return s.Delivered }),
		counter("abandoned_total", "Deliveries abandoned at the shutdown deadline.",
			func(s broadcast.Stats) int64 { return s.Abandoned }),
		counter("stalls_total", "Publishes that waited for intake capacity.",
			func(s broadcast.Stats) int64 { return s.Stalls }),
		gauge("subscribers", "Attached subscribers.",
			func(s broadcast.Stats) float64 { return float64(s.Subscribers) }),
		gauge("running", "1 while the broadcaster accepts messages.",
			func(s broadcast.Stats) float64 {
				if s.IsRunning {
					return 1
				}
				return 0
			}),
		gauge("last_published_timestamp_seconds", "Unix time of the newest message.",
			func(s broadcast.Stats) float64 {
				if s.LastPublishedAt.IsZero() {
					return 0
				}
				return float64(s.LastPublishedAt.UnixNano()) / 1e9
			}),
	)
}

// WatchHistory exports history recorder counters, read at scrape time.
func (p *Prom) WatchHistory(src HistorySource) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: p.namespace, Subsystem: "history", Name: name, Help: help}
	}

	p.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("recorded_total", "Messages appended to history.")),
			func() float64 { return float64(src.Recorded()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("failed_total", "Messages history failed to append.")),
			func() float64 { return float64(src.Failed()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("entries", "Messages currently held in history.")),
			func() float64 { return float64(src.Len()) }),
	)
}
