// Package health serves liveness and readiness probes.
//
//	r.Get("/health/live", health.Liveness[*router.Context])
//	r.Get("/health/ready", health.Readiness[*router.Context](log,
//		health.Check{Name: "broadcaster", Fn: hub.Healthcheck},
//	))
//
// Readiness runs every check with the request context and reports each result.
// Any failure turns the whole probe into 503.
package health
