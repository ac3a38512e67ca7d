// Package history keeps an ordered, append-only record of broadcast messages.
//
// Store is the record itself. Reads are lock-free snapshots: they never block
// appends and appends never block them. Recorder feeds a Store from a broadcast
// subscription.
//
//	hub := broadcast.NewMemoryBroadcaster[string]()
//	store := history.NewStore[string]()
//
//	rec, err := history.Record(ctx, hub, store, history.WithRecorderLogger(log))
//	if err != nil {
//		return err
//	}
//	defer rec.Close()
//
//	_ = hub.Broadcast(ctx, "a")
//	_ = hub.Broadcast(ctx, "b")
//
//	// Newest first: [#1 b, #0 a]
//	latest := store.Recent(history.All)
//
// By default the store grows for the lifetime of the process. WithCapacity bounds it
// by evicting the oldest entries; sequence numbers are never reused either way.
package history
