package handler

import (
	"context"
	"net/http"
)

// Context is the request context handed to every HandlerFunc.
// It is a context.Context bound to the lifetime of the request.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	// Param returns a path wildcard value, or "".
	Param(key string) string
	// SetValue stores a request-scoped value readable through Value.
	SetValue(key, val any)
}
