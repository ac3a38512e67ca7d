package broadcast

import "sync"

type memorySubscriber[T any] struct {
	id       string
	ch       chan Message[T]
	done     chan struct{}
	attached chan struct{} // closed once the dispatcher handled the attach request
	hub      *MemoryBroadcaster[T]

	once sync.Once
	mu   sync.Mutex
	stop func() bool
}

func (s *memorySubscriber[T]) ID() string {
	return s.id
}

func (s *memorySubscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *memorySubscriber[T]) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscriber without waiting for the dispatcher.
// The channel returned by Receive is closed once the dispatcher processes the detach.
func (s *memorySubscriber[T]) Close() error {
	if !s.markClosed() {
		return ErrSubscriberClosed
	}
	s.hub.leave(s)
	return nil
}

// markClosed closes done and releases the context hook. Reports whether this call closed it.
func (s *memorySubscriber[T]) markClosed() bool {
	closed := false
	s.once.Do(func() {
		closed = true
		close(s.done)

		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
	return closed
}
