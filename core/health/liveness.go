package health

import (
	"github.com/dmitrymomot/broadcaster/core/handler"
	"github.com/dmitrymomot/broadcaster/core/response"
)

// Liveness answers 200 "ALIVE" while the process can serve requests.
func Liveness[C handler.Context](C) handler.Response {
	return response.String("ALIVE")
}
