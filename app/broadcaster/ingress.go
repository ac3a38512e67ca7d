package broadcaster

import (
	"context"

	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
)

// Ingress is the write side of the service. Any string is accepted, including "".
type Ingress struct {
	sink broadcast.Sink[string]
}

// NewIngress wraps a hub intake.
func NewIngress(sink broadcast.Sink[string]) Ingress {
	return Ingress{sink: sink}
}

// Publish returns once the hub accepted body. It blocks while the hub applies
// backpressure and fails with broadcast.ErrBroadcasterClosed after shutdown.
func (i Ingress) Publish(ctx context.Context, body string) error {
	return i.sink.Publish(ctx, body)
}
