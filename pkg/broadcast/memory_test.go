package broadcast_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
)

func receive[T any](t *testing.T, sub broadcast.Subscriber[T]) broadcast.Message[T] {
	t.Helper()

	select {
	case msg, ok := <-sub.Receive():
		require.True(t, ok, "subscription closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return broadcast.Message[T]{}
}

func waitClosed[T any](t *testing.T, sub broadcast.Subscriber[T]) []broadcast.Message[T] {
	t.Helper()

	var rest []broadcast.Message[T]
	timeout := time.After(time.Second)
	for {
		select {
		case msg, ok := <-sub.Receive():
			if !ok {
				return rest
			}
			rest = append(rest, msg)
		case <-timeout:
			t.Fatal("timeout waiting for subscription to close")
			return rest
		}
	}
}

func TestNewMemoryBroadcaster(t *testing.T) {
	t.Parallel()

	t.Run("starts running with defaults", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		stats := hub.Stats()
		assert.True(t, stats.IsRunning)
		assert.Zero(t, stats.Published)
		assert.Zero(t, stats.Subscribers)
		assert.True(t, stats.LastPublishedAt.IsZero())
		assert.NoError(t, hub.Healthcheck(context.Background()))
	})

	t.Run("ignores non-positive sizes", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string](
			broadcast.WithBufferSize(0),
			broadcast.WithIntakeSize(-1),
			broadcast.WithShutdownTimeout(0),
			broadcast.WithLogger(nil),
		)
		defer hub.Close()

		ctx := context.Background()
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		require.NoError(t, hub.Broadcast(ctx, "ok"))
		assert.Equal(t, "ok", receive(t, sub).Data)
	})
}

func TestMemoryBroadcaster_Broadcast(t *testing.T) {
	t.Parallel()

	t.Run("assigns sequential ids starting at zero", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx := context.Background()
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		for _, body := range []string{"a", "b", "c"} {
			require.NoError(t, hub.Broadcast(ctx, body))
		}

		for i, body := range []string{"a", "b", "c"} {
			msg := receive(t, sub)
			assert.Equal(t, uint64(i), msg.ID)
			assert.Equal(t, body, msg.Data)
			assert.False(t, msg.PublishedAt.IsZero())
		}
	})

	t.Run("stamps messages without subscribers", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx := context.Background()
		require.NoError(t, hub.Broadcast(ctx, "nobody listens"))

		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)
		require.NoError(t, hub.Broadcast(ctx, "next"))

		msg := receive(t, sub)
		assert.Equal(t, uint64(1), msg.ID)
		assert.Equal(t, "next", msg.Data)
	})

	t.Run("intake sink publishes into the hub", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx := context.Background()
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		require.NoError(t, hub.Intake().Publish(ctx, "via sink"))
		assert.Equal(t, "via sink", receive(t, sub).Data)
	})

	t.Run("returns context error for cancelled context", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := hub.Broadcast(ctx, "never")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, hub.Stats().Published)
	})
}

func TestMemoryBroadcaster_Ordering(t *testing.T) {
	t.Parallel()

	t.Run("all subscribers observe the same order", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[int]()
		defer hub.Close()

		ctx := context.Background()
		first, err := hub.Subscribe(ctx)
		require.NoError(t, err)
		second, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		const total = 200
		var wg sync.WaitGroup
		for p := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range total / 4 {
					assert.NoError(t, hub.Broadcast(ctx, p*1000+i))
				}
			}()
		}

		collect := func(sub broadcast.Subscriber[int]) []broadcast.Message[int] {
			out := make([]broadcast.Message[int], 0, total)
			for range total {
				out = append(out, receive(t, sub))
			}
			return out
		}

		var a, b []broadcast.Message[int]
		var cwg sync.WaitGroup
		cwg.Add(2)
		go func() { defer cwg.Done(); a = collect(first) }()
		go func() { defer cwg.Done(); b = collect(second) }()

		wg.Wait()
		cwg.Wait()

		require.Len(t, a, total)
		assert.Equal(t, a, b)
		for i, msg := range a {
			assert.Equal(t, uint64(i), msg.ID)
		}
	})

	t.Run("late subscriber misses earlier messages", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx := context.Background()
		early, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		require.NoError(t, hub.Broadcast(ctx, "x"))

		late, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		require.NoError(t, hub.Broadcast(ctx, "y"))

		assert.Equal(t, "x", receive(t, early).Data)
		assert.Equal(t, "y", receive(t, early).Data)

		msg := receive(t, late)
		assert.Equal(t, "y", msg.Data)
		assert.Equal(t, uint64(1), msg.ID)
	})
}

func TestMemoryBroadcaster_Backpressure(t *testing.T) {
	t.Parallel()

	t.Run("slow subscriber stalls publisher without loss", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[int](
			broadcast.WithBufferSize(1),
			broadcast.WithIntakeSize(1),
		)
		defer hub.Close()

		ctx := context.Background()
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		const total = 50
		published := make(chan struct{})
		go func() {
			defer close(published)
			for i := range total {
				assert.NoError(t, hub.Broadcast(ctx, i))
			}
		}()

		require.Eventually(t, func() bool {
			return hub.Stats().Stalls > 0
		}, time.Second, 5*time.Millisecond)

		select {
		case <-published:
			t.Fatal("publisher finished while subscriber was stalled")
		default:
		}

		for i := range total {
			msg := receive(t, sub)
			assert.Equal(t, i, msg.Data)
			assert.Equal(t, uint64(i), msg.ID)
		}

		select {
		case <-published:
		case <-time.After(time.Second):
			t.Fatal("publisher did not resume")
		}
	})

	t.Run("cancelled publish is not accepted", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string](
			broadcast.WithBufferSize(1),
			broadcast.WithIntakeSize(1),
		)
		defer hub.Close()

		ctx := context.Background()
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		// m0 fills the subscriber buffer, m1 is held by the dispatcher, m2 fills the intake.
		for i := range 3 {
			require.NoError(t, hub.Broadcast(ctx, fmt.Sprintf("m%d", i)))
		}

		tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err = hub.Broadcast(tctx, "timed out")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		for i := range 3 {
			assert.Equal(t, fmt.Sprintf("m%d", i), receive(t, sub).Data)
		}

		require.NoError(t, hub.Broadcast(ctx, "after"))
		msg := receive(t, sub)
		assert.Equal(t, "after", msg.Data)
		assert.Equal(t, uint64(3), msg.ID)
	})

	t.Run("detaching slow subscriber releases the pipeline", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[int](
			broadcast.WithBufferSize(1),
			broadcast.WithIntakeSize(1),
		)
		defer hub.Close()

		ctx := context.Background()
		slow, err := hub.Subscribe(ctx)
		require.NoError(t, err)
		fast, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		const total = 20
		received := make(chan []int, 1)
		go func() {
			var got []int
			for range total {
				msg, ok := <-fast.Receive()
				if !ok {
					break
				}
				got = append(got, msg.Data)
			}
			received <- got
		}()

		published := make(chan struct{})
		go func() {
			defer close(published)
			for i := range total {
				assert.NoError(t, hub.Broadcast(ctx, i))
			}
		}()

		require.Eventually(t, func() bool {
			return hub.Stats().Stalls > 0
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, slow.Close())

		select {
		case <-published:
		case <-time.After(time.Second):
			t.Fatal("publisher still blocked after slow subscriber detached")
		}

		select {
		case got := <-received:
			require.Len(t, got, total)
			for i, v := range got {
				assert.Equal(t, i, v)
			}
		case <-time.After(time.Second):
			t.Fatal("fast subscriber did not receive all messages")
		}

		waitClosed(t, slow)
		require.Eventually(t, func() bool {
			return hub.Stats().Subscribers == 1
		}, time.Second, 5*time.Millisecond)
	})
}

func TestMemoryBroadcaster_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("context cancellation detaches subscriber", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, sub.ID())

		require.Eventually(t, func() bool {
			return hub.Stats().Subscribers == 1
		}, time.Second, 5*time.Millisecond)

		cancel()

		select {
		case <-sub.Done():
		case <-time.After(time.Second):
			t.Fatal("subscriber not closed after context cancellation")
		}

		waitClosed(t, sub)
		require.Eventually(t, func() bool {
			return hub.Stats().Subscribers == 0
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("returns once attached", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx := context.Background()
		require.NoError(t, hub.Broadcast(ctx, "missed"))

		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), hub.Stats().Subscribers)
		assert.Equal(t, int64(1), hub.Stats().Published)

		require.NoError(t, hub.Broadcast(ctx, "seen"))
		assert.Equal(t, uint64(1), receive(t, sub).ID)
	})

	t.Run("close twice returns error", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		sub, err := hub.Subscribe(context.Background())
		require.NoError(t, err)

		require.NoError(t, sub.Close())
		assert.ErrorIs(t, sub.Close(), broadcast.ErrSubscriberClosed)
	})

	t.Run("subscriber ids are unique", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		defer hub.Close()

		ctx := context.Background()
		a, err := hub.Subscribe(ctx)
		require.NoError(t, err)
		b, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		assert.NotEqual(t, a.ID(), b.ID())
	})
}

func TestMemoryBroadcaster_Close(t *testing.T) {
	t.Parallel()

	t.Run("delivers accepted messages then closes subscriptions", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[int](broadcast.WithBufferSize(10))

		ctx := context.Background()
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		for i := range 5 {
			require.NoError(t, hub.Broadcast(ctx, i))
		}

		require.NoError(t, hub.Close())

		rest := waitClosed(t, sub)
		require.Len(t, rest, 5)
		for i, msg := range rest {
			assert.Equal(t, i, msg.Data)
		}

		stats := hub.Stats()
		assert.False(t, stats.IsRunning)
		assert.Equal(t, int64(5), stats.Published)
		assert.Equal(t, int64(5), stats.Delivered)
		assert.Zero(t, stats.Subscribers)
	})

	t.Run("rejects work after close", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string]()
		require.NoError(t, hub.Close())

		ctx := context.Background()
		assert.ErrorIs(t, hub.Broadcast(ctx, "late"), broadcast.ErrBroadcasterClosed)
		assert.ErrorIs(t, hub.Intake().Publish(ctx, "late"), broadcast.ErrBroadcasterClosed)

		sub, err := hub.Subscribe(ctx)
		assert.ErrorIs(t, err, broadcast.ErrBroadcasterClosed)
		assert.Nil(t, sub)

		assert.ErrorIs(t, hub.Close(), broadcast.ErrBroadcasterClosed)
		assert.ErrorIs(t, hub.Healthcheck(ctx), broadcast.ErrBroadcasterClosed)
	})

	t.Run("unblocks stalled publishers", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[int](
			broadcast.WithBufferSize(1),
			broadcast.WithIntakeSize(1),
			broadcast.WithShutdownTimeout(50*time.Millisecond),
		)

		ctx := context.Background()
		_, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		errCh := make(chan error, 1)
		go func() {
			for i := 0; ; i++ {
				if err := hub.Broadcast(ctx, i); err != nil {
					errCh <- err
					return
				}
			}
		}()

		require.Eventually(t, func() bool {
			return hub.Stats().Stalls > 0
		}, time.Second, 5*time.Millisecond)

		assert.ErrorIs(t, hub.Close(), broadcast.ErrShutdownTimeout)

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, broadcast.ErrBroadcasterClosed)
		case <-time.After(time.Second):
			t.Fatal("publisher still blocked after close")
		}
	})

	t.Run("shutdown deadline abandons pending deliveries", func(t *testing.T) {
		t.Parallel()

		hub := broadcast.NewMemoryBroadcaster[string](
			broadcast.WithBufferSize(1),
			broadcast.WithIntakeSize(1),
		)

		ctx := context.Background()
		sub, err := hub.Subscribe(ctx)
		require.NoError(t, err)

		for i := range 3 {
			require.NoError(t, hub.Broadcast(ctx, fmt.Sprintf("m%d", i)))
		}

		sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		err = hub.Shutdown(sctx)
		require.ErrorIs(t, err, broadcast.ErrShutdownTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		rest := waitClosed(t, sub)
		require.Len(t, rest, 1)
		assert.Equal(t, "m0", rest[0].Data)
		assert.Equal(t, int64(2), hub.Stats().Abandoned)
	})
}
