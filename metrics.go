package emitz

// Metrics provides observability data for emitter monitoring.
// All counter fields use atomic operations for thread safety.
// Capacity fields are static and don't require atomics.
type Metrics struct {
	// Emission Counters (atomic operations required)
	Emissions  int64 // Emit calls that found at least one listener
	Dispatched int64 // Listener tasks handed to the dispatcher
	Skipped    int64 // Tasks whose listener was removed before it ran
	Rejected   int64 // Emit calls dropped because the emitter was closed

	// Outcome Counters (atomic operations required)
	Succeeded    int64 // Listener invocations that returned a nil error
	Failed       int64 // Listener invocations that returned an error or panicked
	Panicked     int64 // Subset of Failed that panicked
	HookFailures int64 // After-hook chains aborted by a failing hook

	// Dispatch Metrics
	InFlight      int64 // Tasks dispatched but not yet finished
	QueueDepth    int64 // Tasks waiting in the worker pool queue
	QueueCapacity int64 // Worker pool queue capacity (static, 0 without a pool)
	Spilled       int64 // Tasks run on a dedicated goroutine because the queue was full

	// Registration Metrics (requires mutex read)
	RegisteredListeners int64
	AfterHooks          int64
}
