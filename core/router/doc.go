// Package router maps HTTP requests to typed handlers.
//
// Routing is delegated to net/http.ServeMux, so patterns follow its syntax:
// wildcards are written {name}, a trailing {name...} matches the rest of the path,
// and {$} anchors a pattern ending in a slash. The router adds typed request
// contexts, middleware chains, a single error handler for routing errors,
// handler errors and panics, and the Response rendering model of package handler.
//
//	r := router.New[*router.Context]()
//	r.Use(middleware.RequestID[*router.Context]())
//
//	r.Get("/last/{amount}", func(ctx *router.Context) handler.Response {
//		n := ctx.Param("amount")
//		return response.JSON(recent(n))
//	})
//
//	http.ListenAndServe(":8080", r)
//
// Custom context types need a factory:
//
//	r := router.New[*AppContext](
//		router.WithContextFactory(newAppContext),
//		router.WithErrorHandler(appErrorHandler),
//	)
//
// Unmatched paths reach the error handler as ErrNotFound. A path that matches
// only under other methods produces ErrMethodNotAllowed and an Allow header.
// Both errors implement StatusCode() int.
package router
