package broadcaster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/broadcaster/core/logger"
	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
	"github.com/dmitrymomot/broadcaster/pkg/history"
)

// Service wires the hub, its ingress and the history store.
type Service struct {
	hub      *broadcast.MemoryBroadcaster[string]
	store    *history.Store[string]
	recorder *history.Recorder[string]
	ingress  Ingress
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger shared by the hub, the recorder and the service.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewService starts the hub and subscribes the history recorder before
// anything can be published, so the history sees every message.
func NewService(cfg Config, opts ...ServiceOption) (*Service, error) {
	s := &Service{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = broadcast.NewMemoryBroadcaster[string](
		broadcast.WithBufferSize(cfg.BufferSize),
		broadcast.WithIntakeSize(cfg.IntakeSize),
		broadcast.WithShutdownTimeout(cfg.ShutdownTimeout),
		broadcast.WithLogger(s.logger.With(logger.Component("hub"))),
	)
	s.store = history.NewStore[string](history.WithCapacity(cfg.HistoryCapacity))
	s.ingress = NewIngress(s.hub.Intake())

	rec, err := history.Record(context.Background(), s.hub, s.store,
		history.WithRecorderLogger(s.logger.With(logger.Component("history"))))
	if err != nil {
		_ = s.hub.Close()
		return nil, err
	}
	s.recorder = rec

	return s, nil
}

// Publish hands body to the hub.
func (s *Service) Publish(ctx context.Context, body string) error {
	return s.ingress.Publish(ctx, body)
}

// Recent returns up to n stored messages, newest first. Negative n returns all.
func (s *Service) Recent(n int) []broadcast.Message[string] {
	return s.store.Recent(n)
}

// Stream subscribes to live messages. When after is set, stored messages with
// a greater id are sent first and the live stream continues from there without
// gaps or duplicates. The channel is closed when ctx is done or the hub closes.
func (s *Service) Stream(ctx context.Context, after *uint64) (<-chan broadcast.Message[string], error) {
	sub, err := s.hub.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	// Every id below the horizon was dispatched before the subscriber attached
	// or arrives live as well; the recorder has all of them. A resume id at or
	// beyond the horizon was never issued by this hub, so the stream is live only.
	horizon := uint64(s.hub.Stats().Published)
	resume := after != nil && *after < horizon
	var next uint64

	out := make(chan broadcast.Message[string])
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		send := func(msg broadcast.Message[string]) bool {
			select {
			case out <- msg:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if resume {
			next = *after + 1
			if horizon > next {
				// A stopped recorder still leaves what it stored to replay.
				if err := s.recorder.Wait(ctx, horizon-1); err != nil && ctx.Err() != nil {
					return
				}
				for _, msg := range s.store.Since(*after) {
					if msg.ID >= horizon {
						break
					}
					if !send(msg) {
						return
					}
				}
				next = horizon
			}
		}

		for msg := range sub.Receive() {
			if resume && msg.ID < next {
				continue
			}
			if !send(msg) {
				return
			}
		}
	}()

	return out, nil
}

// Stats returns the hub counters.
func (s *Service) Stats() broadcast.Stats {
	return s.hub.Stats()
}

// Recorded returns how many messages the history stored.
func (s *Service) Recorded() int64 {
	return s.recorder.Recorded()
}

// Failed returns how many messages the history rejected.
func (s *Service) Failed() int64 {
	return s.recorder.Failed()
}

// Len returns the number of stored messages.
func (s *Service) Len() int {
	return s.store.Len()
}

// Healthcheck fails once the hub is closed or the recorder stopped.
func (s *Service) Healthcheck(ctx context.Context) error {
	if err := s.hub.Healthcheck(ctx); err != nil {
		return err
	}
	select {
	case <-s.recorder.Done():
		return history.ErrRecorderStopped
	default:
		return nil
	}
}

// Close stops accepting messages, delivers the accepted ones and waits for the
// history to record them. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		err := s.hub.Close()
		<-s.recorder.Done()
		if err != nil && !errors.Is(err, broadcast.ErrBroadcasterClosed) {
			s.logger.Error("hub shutdown incomplete", logger.Error(err))
			s.closeErr = err
		}
	})
	return s.closeErr
}
