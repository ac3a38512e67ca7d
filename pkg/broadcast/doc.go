// Package broadcast provides an ordered, in-process pub/sub hub with blocking backpressure.
//
// A single dispatcher goroutine takes messages from a bounded intake queue, stamps each one
// with a sequence number and fans it out to every attached subscriber. Every subscriber
// observes the same total order. When a subscriber falls behind, its bounded buffer fills,
// the dispatcher waits for it, the intake fills, and finally publishers block until the slow
// consumer catches up or detaches. Nothing accepted into the intake is dropped while its
// subscribers stay attached, and memory stays bounded.
//
// # Architecture
//
// The package defines three interfaces:
//   - Broadcaster: accepts messages and hands out subscriptions
//   - Subscriber: a live view of the stream from the moment of attachment
//   - Sink: the write-side handle returned by Broadcaster.Intake
//
// MemoryBroadcaster is the in-memory implementation.
//
// # Usage
//
//	// Per-subscriber buffer of 100 messages, intake queue of 100 messages
//	hub := broadcast.NewMemoryBroadcaster[string](
//		broadcast.WithBufferSize(100),
//		broadcast.WithIntakeSize(100),
//		broadcast.WithLogger(log),
//	)
//	defer hub.Close()
//
//	sub, err := hub.Subscribe(ctx) // detached automatically when ctx is done
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	go func() {
//		for msg := range sub.Receive() {
//			fmt.Printf("#%d %s\n", msg.ID, msg.Data)
//		}
//	}()
//
//	_ = hub.Broadcast(ctx, "Hello, World!")
//
// # Sequence Numbers
//
// Message.ID is assigned by the dispatcher when the message leaves the intake queue.
// IDs start at 0 and grow by exactly one per message, whether or not anyone is subscribed.
//
// # Attachment
//
// Subscribe requests travel through the intake queue together with published messages.
// A subscriber therefore receives exactly the messages enqueued after its request and
// nothing enqueued before it. Like Broadcast, Subscribe may wait for intake capacity.
//
// # Shutdown
//
// Close and Shutdown reject further Broadcast and Subscribe calls with ErrBroadcasterClosed,
// deliver everything already accepted, then close every subscription channel. Delivery is
// abandoned when the shutdown deadline passes.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use across multiple goroutines.
package broadcast
