// Package emitz provides an in-process publish/subscribe emitter with an
// instance-wide "after" hook chain.
//
// Every listener invocation produces an Outcome (its error or its result)
// and that Outcome is handed to each after-hook in the order the hooks were
// added, together with the event key and the original emission arguments.
//
// Key properties:
//   - Listeners are kept in a set per event, keyed by *Listener identity
//   - Each listener runs in its own goroutine; Emit never blocks on it
//   - Listener errors and panics become Outcome.Err, never a caller error
//   - After-hooks are append-only and are not deduplicated
//   - A failing after-hook is logged and stops only its own chain
//
// Basic Usage:
//
//	emitter := emitz.New()
//
//	greet := emitz.NewListener(func(ctx context.Context, args ...any) (any, error) {
//		return fmt.Sprintf("hello %v", args[0]), nil
//	})
//	emitter.On("user.created", greet)
//
//	emitter.After(func(ctx context.Context, o emitz.Outcome) error {
//		if o.Err != nil {
//			log.Printf("%s failed: %v", o.Event, o.Err)
//		}
//		return nil
//	})
//
//	emitter.Emit(ctx, "user.created", "ada")
//
// One-shot listeners:
//
//	emitter.Once("server.ready", emitz.NewListener(onReady))
//
// Bounded dispatch:
//
//	emitter := emitz.New(
//		emitz.WithWorkers(8),
//		emitz.WithQueueSize(64),
//		emitz.WithTimeout(2*time.Second),
//	)
//	defer emitter.Close(context.Background())
//
// Emitters hold no external resources. Close is only needed to drain
// in-flight listeners or to stop a worker pool configured via WithWorkers.
package emitz

// Key identifies an event type. Keys need no declaration; emitting a key
// nobody listens to is a no-op.
//
// Package-level constants keep keys consistent:
//
//	const (
//		OrderPlaced  emitz.Key = "order.placed"
//		OrderShipped emitz.Key = "order.shipped"
//	)
type Key = string
