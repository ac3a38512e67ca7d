package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/dmitrymomot/broadcaster/core/logger"
	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
)

// Source hands out broadcast subscriptions.
type Source[T any] interface {
	Subscribe(ctx context.Context) (broadcast.Subscriber[T], error)
}

// Recorder appends every message observed on one subscription to a Store.
type Recorder[T any] struct {
	sub    broadcast.Subscriber[T]
	store  *Store[T]
	logger *slog.Logger
	done   chan struct{}

	recorded atomic.Int64
	failed   atomic.Int64
}

// Record subscribes to src once and starts copying messages into store.
// The subscription lives until ctx is done, Close is called, or src shuts down.
func Record[T any](ctx context.Context, src Source[T], store *Store[T], opts ...RecorderOption) (*Recorder[T], error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if store == nil {
		return nil, ErrNilStore
	}

	o := recorderOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	sub, err := src.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe history recorder: %w", err)
	}

	r := &Recorder[T]{
		sub:    sub,
		store:  store,
		logger: o.logger,
		done:   make(chan struct{}),
	}

	go r.run()

	return r, nil
}

// Close detaches the recorder from its source. Use Done to wait for the last append.
func (r *Recorder[T]) Close() error {
	return r.sub.Close()
}

// Done is closed after the subscription ends and every received message is stored.
func (r *Recorder[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until a message with ID >= id is stored. It returns
// ErrRecorderStopped if the recorder stops first, or ctx.Err().
func (r *Recorder[T]) Wait(ctx context.Context, id uint64) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-r.done:
			cancel()
		case <-wctx.Done():
		}
	}()

	err := r.store.Wait(wctx, id)
	if err == nil || ctx.Err() != nil {
		return err
	}
	// Stopped: the last message may have landed together with done.
	if last, ok := r.store.Last(); ok && last.ID >= id {
		return nil
	}
	return ErrRecorderStopped
}

// Recorded returns the number of stored messages.
func (r *Recorder[T]) Recorded() int64 {
	return r.recorded.Load()
}

// Failed returns the number of messages that could not be stored.
func (r *Recorder[T]) Failed() int64 {
	return r.failed.Load()
}

func (r *Recorder[T]) run() {
	defer close(r.done)

	for msg := range r.sub.Receive() {
		r.record(msg)
	}

	r.logger.Info("history recorder stopped",
		logger.SubscriberID(r.sub.ID()),
		slog.Int64("recorded", r.recorded.Load()),
		slog.Int64("failed", r.failed.Load()))
}

func (r *Recorder[T]) record(msg broadcast.Message[T]) {
	defer func() {
		if p := recover(); p != nil {
			r.failed.Add(1)
			r.logger.Error("history append panicked", logger.Seq(msg.ID), slog.Any("panic", p))
		}
	}()

	if err := r.store.Append(msg); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to record message", logger.Seq(msg.ID), logger.Error(err))
		return
	}

	r.recorded.Add(1)
	r.logger.Info("message recorded", logger.Seq(msg.ID), slog.Any("data", msg.Data))
}
