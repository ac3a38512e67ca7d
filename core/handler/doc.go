// Package handler defines the typed request handling model shared by the router,
// the response helpers and the middleware.
//
// A HandlerFunc receives a Context and returns a Response. The Response is a
// deferred rendering step: the router calls it with the response writer and
// routes any error it returns to the ErrorHandler. Middleware wraps HandlerFuncs
// and may wrap the Response it gets back to observe rendering.
//
//	func recent(svc *broadcaster.Service) handler.HandlerFunc[*router.Context] {
//		return func(ctx *router.Context) handler.Response {
//			return response.JSON(svc.Recent(history.All))
//		}
//	}
//
// FromHTTP adapts existing http.Handlers, for example a Prometheus exporter.
package handler
