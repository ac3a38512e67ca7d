package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
)

// Store is an ordered, append-only sequence of messages.
// Entries are kept in ascending ID order and never modified once stored.
type Store[T any] struct {
	mu       sync.Mutex // serialises appends
	entries  atomic.Pointer[[]broadcast.Message[T]]
	changed  atomic.Pointer[chan struct{}]
	capacity int
}

// NewStore creates an empty store.
func NewStore[T any](opts ...Option) *Store[T] {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[T]{capacity: o.capacity}

	empty := make([]broadcast.Message[T], 0)
	s.entries.Store(&empty)

	ch := make(chan struct{})
	s.changed.Store(&ch)

	return s
}

// Append stores msg. IDs must be strictly increasing.
func (s *Store[T]) Append(msg broadcast.Message[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.entries.Load()
	if n := len(cur); n > 0 && msg.ID <= cur[n-1].ID {
		return fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, msg.ID, cur[n-1].ID)
	}

	// Readers only ever look at indexes below their snapshot length,
	// so appending into spare capacity is invisible to them.
	next := append(cur, msg)
	if s.capacity > 0 && len(next) > s.capacity {
		next = next[len(next)-s.capacity:]
	}
	s.entries.Store(&next)

	ch := make(chan struct{})
	close(*s.changed.Swap(&ch))

	return nil
}

// Len returns the number of stored messages.
func (s *Store[T]) Len() int {
	return len(s.snapshot())
}

// Last returns the newest message.
func (s *Store[T]) Last() (broadcast.Message[T], bool) {
	snap := s.snapshot()
	if len(snap) == 0 {
		return broadcast.Message[T]{}, false
	}
	return snap[len(snap)-1], true
}

// Recent returns up to n of the newest messages, newest first.
// n larger than the store size returns everything; negative n (see All) returns everything;
// zero returns an empty slice.
func (s *Store[T]) Recent(n int) []broadcast.Message[T] {
	snap := s.snapshot()
	size := len(snap)
	if n < 0 || n > size {
		n = size
	}

	out := make([]broadcast.Message[T], n)
	for i := range n {
		out[i] = snap[size-1-i]
	}
	return out
}

// Since returns messages with ID greater than after, oldest first.
func (s *Store[T]) Since(after uint64) []broadcast.Message[T] {
	snap := s.snapshot()
	i := sort.Search(len(snap), func(i int) bool { return snap[i].ID > after })
	return append([]broadcast.Message[T](nil), snap[i:]...)
}

// Range returns messages with from <= ID < to, oldest first.
func (s *Store[T]) Range(from, to uint64) []broadcast.Message[T] {
	snap := s.snapshot()
	lo := sort.Search(len(snap), func(i int) bool { return snap[i].ID >= from })
	hi := sort.Search(len(snap), func(i int) bool { return snap[i].ID >= to })
	if lo >= hi {
		return nil
	}
	return append([]broadcast.Message[T](nil), snap[lo:hi]...)
}

// Wait blocks until a message with ID >= id is stored or ctx is done.
func (s *Store[T]) Wait(ctx context.Context, id uint64) error {
	for {
		changed := *s.changed.Load()
		if last, ok := s.Last(); ok && last.ID >= id {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Store[T]) snapshot() []broadcast.Message[T] {
	return *s.entries.Load()
}
