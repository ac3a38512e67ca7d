// Package metrics exports broadcaster, history and HTTP metrics to Prometheus.
//
// Broadcaster and history values are read from their Stats at scrape time, so
// the hot path carries no metrics code. HTTP metrics are fed by middleware.
//
//	prom := metrics.New("broadcaster")
//	prom.WatchBroadcaster(hub)
//	prom.WatchHistory(svc)
//	r.Get("/metrics", func(*router.Context) handler.Response {
//		return handler.FromHTTP(prom.Handler())
//	})
package metrics
