// Package response builds handler.Response values: plain and JSON bodies,
// structured HTTP errors, and long-lived streams.
//
//	func recent(ctx *router.Context) handler.Response {
//		return response.JSON(store.Recent(history.All))
//	}
//
// # Errors
//
// HTTPError carries a status, a machine-readable code and a message. Handlers
// return them through Error or as the error of a Response; JSONErrorHandler and
// ErrorHandler render any error, mapping values that implement StatusCode()
// to the matching HTTPError.
//
//	if errors.Is(err, broadcast.ErrBroadcasterClosed) {
//		return response.Error(response.ErrServiceUnavailable.WithMessage("hub closed"))
//	}
//
// # Streams
//
// SSE, StreamJSON and WebSocketStream drain a channel until it is closed or the
// client disconnects. The caller owns the channel and should tie its producer to
// the request context:
//
//	ch, err := svc.Stream(ctx, nil)
//	if err != nil {
//		return response.Error(err)
//	}
//	return response.SSE(ch,
//		response.WithEventIDGenerator(messageID),
//		response.WithKeepAlive(15*time.Second),
//	)
//
// Stream writers need an http.Flusher; writers that cannot flush get ErrNotAcceptable.
package response
