package history_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
	"github.com/dmitrymomot/broadcaster/pkg/history"
)

func msg(id uint64, body string) broadcast.Message[string] {
	return broadcast.Message[string]{ID: id, Data: body, PublishedAt: time.Now()}
}

func filled(t *testing.T, bodies ...string) *history.Store[string] {
	t.Helper()

	store := history.NewStore[string]()
	for i, body := range bodies {
		require.NoError(t, store.Append(msg(uint64(i), body)))
	}
	return store
}

func bodies(msgs []broadcast.Message[string]) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Data)
	}
	return out
}

func TestStore_Recent(t *testing.T) {
	t.Parallel()

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		store := history.NewStore[string]()
		assert.Empty(t, store.Recent(history.All))
		assert.Empty(t, store.Recent(5))
		assert.Zero(t, store.Len())

		_, ok := store.Last()
		assert.False(t, ok)
	})

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a", "b", "c")

		got := store.Recent(2)
		require.Len(t, got, 2)
		assert.Equal(t, uint64(2), got[0].ID)
		assert.Equal(t, "c", got[0].Data)
		assert.Equal(t, uint64(1), got[1].ID)
		assert.Equal(t, "b", got[1].Data)
	})

	t.Run("zero returns empty slice", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a", "b")
		got := store.Recent(0)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("count beyond size returns everything", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a", "b", "c")
		assert.Equal(t, []string{"c", "b", "a"}, bodies(store.Recent(3)))
		assert.Equal(t, []string{"c", "b", "a"}, bodies(store.Recent(100)))
	})

	t.Run("negative count returns everything", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a", "b", "c")
		assert.Equal(t, []string{"c", "b", "a"}, bodies(store.Recent(history.All)))
		assert.Equal(t, []string{"c", "b", "a"}, bodies(store.Recent(-42)))
	})

	t.Run("result is a copy", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a", "b")
		got := store.Recent(history.All)
		got[0].Data = "mutated"

		assert.Equal(t, "b", store.Recent(1)[0].Data)
	})
}

func TestStore_Append(t *testing.T) {
	t.Parallel()

	t.Run("rejects out of order ids", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a", "b")

		err := store.Append(msg(1, "dup"))
		assert.ErrorIs(t, err, history.ErrOutOfOrder)

		err = store.Append(msg(0, "old"))
		assert.ErrorIs(t, err, history.ErrOutOfOrder)

		assert.Equal(t, 2, store.Len())
	})

	t.Run("accepts gaps", func(t *testing.T) {
		t.Parallel()

		store := history.NewStore[string]()
		require.NoError(t, store.Append(msg(3, "x")))
		require.NoError(t, store.Append(msg(7, "y")))

		last, ok := store.Last()
		require.True(t, ok)
		assert.Equal(t, uint64(7), last.ID)
	})

	t.Run("capacity evicts oldest entries", func(t *testing.T) {
		t.Parallel()

		store := history.NewStore[string](history.WithCapacity(2))
		for i, body := range []string{"a", "b", "c", "d"} {
			require.NoError(t, store.Append(msg(uint64(i), body)))
		}

		assert.Equal(t, 2, store.Len())
		assert.Equal(t, []string{"d", "c"}, bodies(store.Recent(history.All)))
		assert.ErrorIs(t, store.Append(msg(1, "stale")), history.ErrOutOfOrder)
	})

	t.Run("snapshots are stable during appends", func(t *testing.T) {
		t.Parallel()

		store := history.NewStore[int]()
		const total = 500

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range total {
				assert.NoError(t, store.Append(broadcast.Message[int]{ID: uint64(i), Data: i}))
			}
		}()

		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 200 {
					snap := store.Recent(history.All)
					for i := 1; i < len(snap); i++ {
						if !assert.Equal(t, snap[i-1].ID, snap[i].ID+1) {
							return
						}
					}
				}
			}()
		}

		wg.Wait()
		assert.Equal(t, total, store.Len())
	})
}

func TestStore_Since(t *testing.T) {
	t.Parallel()

	store := filled(t, "a", "b", "c", "d")

	assert.Equal(t, []string{"c", "d"}, bodies(store.Since(1)))
	assert.Empty(t, store.Since(3))
	assert.Empty(t, store.Since(10))
}

func TestStore_Range(t *testing.T) {
	t.Parallel()

	store := filled(t, "a", "b", "c", "d")

	assert.Equal(t, []string{"b", "c"}, bodies(store.Range(1, 3)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, bodies(store.Range(0, 100)))
	assert.Empty(t, store.Range(2, 2))
	assert.Empty(t, store.Range(3, 1))
}

func TestStore_Wait(t *testing.T) {
	t.Parallel()

	t.Run("returns immediately when already stored", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a", "b")
		assert.NoError(t, store.Wait(context.Background(), 1))
	})

	t.Run("unblocks on append", func(t *testing.T) {
		t.Parallel()

		store := filled(t, "a")

		errCh := make(chan error, 1)
		go func() {
			errCh <- store.Wait(context.Background(), 2)
		}()

		require.NoError(t, store.Append(msg(1, "b")))
		select {
		case <-errCh:
			t.Fatal("wait returned before the requested id was stored")
		case <-time.After(20 * time.Millisecond):
		}

		require.NoError(t, store.Append(msg(2, "c")))
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("wait did not return after append")
		}
	})

	t.Run("honours context", func(t *testing.T) {
		t.Parallel()

		store := history.NewStore[string]()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, store.Wait(ctx, 0), context.DeadlineExceeded)
	})
}
