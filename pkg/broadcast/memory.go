package broadcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/broadcaster/core/logger"
)

// request is a unit of work on the intake queue: either a payload or an attach request.
type request[T any] struct {
	data T
	sub  *memorySubscriber[T]
}

// MemoryBroadcaster is an in-memory Broadcaster.
// One dispatcher goroutine owns sequence numbering, the subscriber registry and fan-out.
type MemoryBroadcaster[T any] struct {
	intake  chan request[T]
	done    chan struct{} // closed when shutdown starts
	abort   chan struct{} // closed when the shutdown deadline passes
	stopped chan struct{} // closed when the dispatcher exits

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup // in-flight enqueue calls

	leaveMu sync.Mutex
	leaving []*memorySubscriber[T]
	leaveCh chan struct{}

	// Owned by the dispatcher goroutine.
	subs []*memorySubscriber[T]
	seq  uint64

	bufferSize      int
	shutdownTimeout time.Duration
	logger          *slog.Logger

	published       atomic.Int64
	delivered       atomic.Int64
	abandoned       atomic.Int64
	stalls          atomic.Int64
	subscribers     atomic.Int32
	lastPublishedAt atomic.Int64
}

var _ Broadcaster[any] = (*MemoryBroadcaster[any])(nil)

// NewMemoryBroadcaster creates a broadcaster and starts its dispatcher.
//
// Example:
//
//	hub := broadcast.NewMemoryBroadcaster[string](
//	    broadcast.WithBufferSize(100),
//	    broadcast.WithLogger(logger),
//	)
//	defer hub.Close()
func NewMemoryBroadcaster[T any](opts ...Option) *MemoryBroadcaster[T] {
	o := options{
		bufferSize:      DefaultBufferSize,
		intakeSize:      DefaultIntakeSize,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(&o)
	}

	b := &MemoryBroadcaster[T]{
		intake:          make(chan request[T], o.intakeSize),
		done:            make(chan struct{}),
		abort:           make(chan struct{}),
		stopped:         make(chan struct{}),
		leaveCh:         make(chan struct{}, 1),
		bufferSize:      o.bufferSize,
		shutdownTimeout: o.shutdownTimeout,
		logger:          o.logger,
	}

	go b.run()

	return b
}

// Broadcast hands data to the intake queue.
// It returns ErrBroadcasterClosed after shutdown and ctx.Err() if ctx is done
// before the message was accepted. A message is never accepted partially.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, data T) error {
	return b.enqueue(ctx, request[T]{data: data})
}

// Subscribe attaches a subscriber and returns once the dispatcher attached it.
// The subscriber receives every message dispatched after that point; ids it
// missed are all below Stats().Published read after Subscribe returns.
// The subscriber is closed automatically when ctx is done.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) (Subscriber[T], error) {
	s := &memorySubscriber[T]{
		id:       uuid.New().String(),
		ch:       make(chan Message[T], b.bufferSize),
		done:     make(chan struct{}),
		attached: make(chan struct{}),
		hub:      b,
	}

	s.mu.Lock()
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	s.mu.Unlock()

	if err := b.enqueue(ctx, request[T]{sub: s}); err != nil {
		s.markClosed()
		return nil, err
	}

	// An accepted request is always handled, even during shutdown.
	select {
	case <-s.attached:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return s, nil
}

// Intake returns the write-side handle of the broadcaster.
func (b *MemoryBroadcaster[T]) Intake() Sink[T] {
	return SinkFunc[T](b.Broadcast)
}

// Close shuts the broadcaster down, spending at most the configured shutdown
// timeout on delivering messages that were already accepted.
func (b *MemoryBroadcaster[T]) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
	defer cancel()
	return b.Shutdown(ctx)
}

// Shutdown rejects new work, delivers accepted messages until ctx is done,
// and closes every subscription channel.
func (b *MemoryBroadcaster[T]) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBroadcasterClosed
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.pending.Wait()
	close(b.intake)

	b.logger.InfoContext(ctx, "broadcaster closing, delivering accepted messages",
		slog.Int("pending", len(b.intake)),
		slog.Int("subscribers", int(b.subscribers.Load())))

	select {
	case <-b.stopped:
		b.logger.InfoContext(ctx, "broadcaster closed",
			slog.Int64("published", b.published.Load()),
			slog.Int64("delivered", b.delivered.Load()))
		return nil
	case <-ctx.Done():
		close(b.abort)
		<-b.stopped
		b.logger.WarnContext(ctx, "broadcaster shutdown deadline exceeded, pending deliveries abandoned",
			slog.Int64("abandoned", b.abandoned.Load()))
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// Stats returns current broadcaster statistics.
func (b *MemoryBroadcaster[T]) Stats() Stats {
	b.mu.RLock()
	isRunning := !b.closed
	b.mu.RUnlock()

	var last time.Time
	if ns := b.lastPublishedAt.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return Stats{
		Published:       b.published.Load(),
		Delivered:       b.delivered.Load(),
		Abandoned:       b.abandoned.Load(),
		Stalls:          b.stalls.Load(),
		Subscribers:     b.subscribers.Load(),
		IsRunning:       isRunning,
		LastPublishedAt: last,
	}
}

// Healthcheck returns ErrBroadcasterClosed once shutdown has started.
func (b *MemoryBroadcaster[T]) Healthcheck(ctx context.Context) error {
	if !b.Stats().IsRunning {
		return ErrBroadcasterClosed
	}
	return nil
}

func (b *MemoryBroadcaster[T]) enqueue(ctx context.Context, req request[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBroadcasterClosed
	}
	b.pending.Add(1)
	b.mu.RUnlock()
	defer b.pending.Done()

	select {
	case b.intake <- req:
		return nil
	default:
	}

	b.stalls.Add(1)
	b.logger.DebugContext(ctx, "intake full, waiting for subscribers to catch up",
		slog.Int("intake_size", cap(b.intake)))

	start := time.Now()
	select {
	case b.intake <- req:
		b.logger.DebugContext(ctx, "intake stall resolved", logger.Elapsed(start))
		return nil
	case <-b.done:
		return ErrBroadcasterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroadcaster[T]) leave(s *memorySubscriber[T]) {
	b.leaveMu.Lock()
	b.leaving = append(b.leaving, s)
	b.leaveMu.Unlock()

	select {
	case b.leaveCh <- struct{}{}:
	default:
	}
}

// run is the dispatcher loop. It exits once the intake is closed and drained.
func (b *MemoryBroadcaster[T]) run() {
	defer close(b.stopped)

	for {
		select {
		case req, ok := <-b.intake:
			if !ok {
				b.reap()
				b.detachAll()
				return
			}
			if req.sub != nil {
				b.attach(req.sub)
				continue
			}
			b.dispatch(req.data)

		case <-b.leaveCh:
			b.reap()
		}
	}
}

func (b *MemoryBroadcaster[T]) attach(s *memorySubscriber[T]) {
	defer close(s.attached)

	select {
	case <-s.done:
		// Detached before the attach request was processed.
		close(s.ch)
		return
	default:
	}

	b.subs = append(b.subs, s)
	b.subscribers.Store(int32(len(b.subs)))
	b.logger.Debug("subscriber attached",
		logger.SubscriberID(s.id),
		slog.Int("subscribers", len(b.subs)))
}

func (b *MemoryBroadcaster[T]) dispatch(data T) {
	msg := Message[T]{
		ID:          b.seq,
		Data:        data,
		PublishedAt: time.Now(),
	}
	b.seq++
	b.published.Add(1)
	b.lastPublishedAt.Store(msg.PublishedAt.UnixNano())

	for _, s := range b.subs {
		select {
		case s.ch <- msg:
			b.delivered.Add(1)
			continue
		default:
		}

		b.logger.Debug("subscriber buffer full, waiting",
			logger.SubscriberID(s.id),
			logger.Seq(msg.ID))

		select {
		case s.ch <- msg:
			b.delivered.Add(1)
		case <-s.done:
		case <-b.abort:
			b.abandoned.Add(1)
		}
	}
}

// reap removes subscribers that asked to leave and closes their channels.
func (b *MemoryBroadcaster[T]) reap() {
	b.leaveMu.Lock()
	leaving := b.leaving
	b.leaving = nil
	b.leaveMu.Unlock()

	for _, s := range leaving {
		i := slices.Index(b.subs, s)
		if i < 0 {
			continue
		}
		b.subs = slices.Delete(b.subs, i, i+1)
		close(s.ch)
		b.logger.Debug("subscriber detached",
			logger.SubscriberID(s.id),
			slog.Int("subscribers", len(b.subs)))
	}

	b.subscribers.Store(int32(len(b.subs)))
}

func (b *MemoryBroadcaster[T]) detachAll() {
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	b.subscribers.Store(0)
}
