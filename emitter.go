package emitz

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Option configures an Emitter during creation.
type Option func(*config)

// config holds internal configuration for emitter creation.
type config struct {
	clock       clockz.Clock // Time abstraction for deterministic testing
	logger      *zap.Logger
	timeout     time.Duration
	workers     int
	queueSize   int
	onHookError func(Outcome, error)
}

// WithClock sets the clock implementation for time operations.
// Default is clockz.RealClock for production use.
// Use clockz.FakeClock for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithTimeout bounds every listener invocation. The listener's context
// is canceled once the timeout elapses; listeners are expected to honor it.
// Default is no timeout (0).
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithWorkers routes listener tasks through a pool of count goroutines.
// Default is 0: every task gets its own goroutine.
func WithWorkers(count int) Option {
	return func(c *config) {
		c.workers = count
	}
}

// WithQueueSize sets the worker pool queue size.
// Default is 0, which auto-calculates as workers * 2.
// Tasks that do not fit run on their own goroutine instead of blocking Emit.
func WithQueueSize(size int) Option {
	return func(c *config) {
		c.queueSize = size
	}
}

// WithLogger sets the logger used to report after-hook failures.
// Listener errors and panics are never logged; they reach after-hooks as
// Outcome.Err. Default writes JSON to stderr at info level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHookErrorHandler registers fn to be called, in addition to logging,
// whenever an after-hook fails. fn runs on the goroutine of the failed
// chain and receives the Outcome that was being delivered.
func WithHookErrorHandler(fn func(Outcome, error)) Option {
	return func(c *config) {
		c.onHookError = fn
	}
}

// Emitter dispatches events to listeners and reports each listener's
// Outcome to the after-hook chain.
//
// Thread Safety:
// All methods are safe for concurrent use. The registry and hook list are
// guarded by a read-write mutex; Emit copies what it needs under the read
// lock and dispatches without holding it.
type Emitter struct {
	clock       clockz.Clock // Time abstraction injected at creation
	logger      *zap.Logger
	timeout     time.Duration
	onHookError func(Outcome, error)

	mu             sync.RWMutex
	registry       map[Key]*listenerSet
	after          []AfterFunc
	totalListeners int // Tracks listener count across all events
	closed         bool

	workers  *workerPool // nil unless WithWorkers was given
	inflight tracker

	// Metrics field - zero initialization provides safe defaults
	metrics Metrics
}

// New creates an independent emitter.
//
// Default configuration:
//   - One goroutine per listener invocation
//   - No listener timeout
//   - JSON logging to stderr
//
// Example:
//
//	emitter := emitz.New()
//
//	emitter := emitz.New(
//	    emitz.WithWorkers(20),
//	    emitz.WithTimeout(5*time.Second),
//	    emitz.WithLogger(logger),
//	)
func New(opts ...Option) *Emitter {
	cfg := config{
		clock:     clockz.RealClock, // default to real clock
		timeout:   0,                // no timeout default
		workers:   0,                // goroutine per task
		queueSize: 0,                // auto-calculate from workers
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = defaultLogger()
	}

	if cfg.workers > 0 && cfg.queueSize == 0 {
		cfg.queueSize = cfg.workers * 2
	}

	e := &Emitter{
		clock:       cfg.clock,
		logger:      cfg.logger,
		timeout:     cfg.timeout,
		onHookError: cfg.onHookError,
		registry:    make(map[Key]*listenerSet),
	}

	if cfg.workers > 0 {
		e.workers = newWorkerPool(cfg.workers, cfg.queueSize, e.run, &e.metrics)
	}
	return e
}

// On registers l for event. Registering a listener that is already a
// member of event is a no-op. A nil listener is ignored.
func (e *Emitter) On(event Key, l *Listener) {
	e.register(event, l, false)
}

// Once registers a one-shot member for l under event. The first
// invocation unregisters it before l is called, so re-entrant or
// concurrent emissions of event cannot run it again.
//
// The one-shot member is separate from any On registration of l: On after
// Once adds a permanent member, and each Once call adds its own one-shot.
// Off(event, l) removes all of them.
func (e *Emitter) Once(event Key, l *Listener) {
	e.register(event, l, true)
}

func (e *Emitter) register(event Key, l *Listener, once bool) {
	if l == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.logger.Debug("registration after close ignored", zap.String("event", event))
		return
	}

	set := e.registry[event]
	if set == nil {
		set = newListenerSet()
		e.registry[event] = set
	}

	if set.add(&entry{listener: l, once: once}) {
		e.totalListeners++
	}
}

// Off removes l from event, including pending Once registrations of l.
// Absent events and listeners are a no-op.
// Once Off returns, l is not invoked by any emission that has not yet
// started it, including emissions already in flight.
func (e *Emitter) Off(event Key, l *Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.registry[event]
	if set == nil {
		return
	}

	e.totalListeners -= set.remove(l)

	// Clean up empty events to prevent memory leaks
	if set.len() == 0 {
		delete(e.registry, event)
	}
}

// detach unregisters a once entry that has just been claimed.
func (e *Emitter) detach(event Key, ent *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.registry[event]
	if set == nil {
		return
	}

	if set.drop(ent) {
		e.totalListeners--
	}

	if set.len() == 0 {
		delete(e.registry, event)
	}
}

// After appends fn to the after-hook chain. Hooks cannot be removed and
// are not deduplicated: adding the same hook twice runs it twice per
// Outcome. A nil hook is ignored.
//
// Each Emit captures the chain as it stands when Emit is called; hooks
// added later only see later emissions.
func (e *Emitter) After(fn AfterFunc) {
	if fn == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.logger.Debug("after hook added after close ignored")
		return
	}
	e.after = append(e.after, fn)
}

// Emit invokes every listener registered for event with args, each on
// its own goroutine, and returns without waiting for them.
//
// Listener errors and panics are captured as Outcomes and delivered to
// the after-hook chain; nothing is reported to the caller. ctx is passed
// to listeners and hooks as-is, bounded by WithTimeout for listeners; a
// nil ctx is treated as context.Background.
func (e *Emitter) Emit(ctx context.Context, event Key, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Get listeners under read lock to minimize lock contention
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		atomic.AddInt64(&e.metrics.Rejected, 1)
		e.logger.Debug("emit after close dropped", zap.String("event", event))
		return
	}

	set := e.registry[event]
	if set == nil || set.len() == 0 {
		// No listeners registered for this event
		e.mu.RUnlock()
		return
	}

	// Copy listeners and hooks to prevent race conditions during dispatch
	entries := set.snapshot()
	hooks := make([]AfterFunc, len(e.after))
	copy(hooks, e.after)

	// Counted under the read lock so Close cannot miss these tasks
	e.inflight.add(len(entries))
	atomic.AddInt64(&e.metrics.InFlight, int64(len(entries)))
	e.mu.RUnlock()

	atomic.AddInt64(&e.metrics.Emissions, 1)

	// The caller may reuse its slice once Emit returns
	args = slices.Clone(args)
	id := uuid.NewString()
	for _, ent := range entries {
		atomic.AddInt64(&e.metrics.Dispatched, 1)
		e.dispatch(task{
			ctx:        ctx,
			event:      event,
			args:       args,
			emissionID: id,
			entry:      ent,
			hooks:      hooks,
		})
	}
}

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter) ListenerCount(event Key) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if set := e.registry[event]; set != nil {
		return set.len()
	}
	return 0
}

// Events returns the events that currently have listeners, sorted.
func (e *Emitter) Events() []Key {
	e.mu.RLock()
	keys := make([]Key, 0, len(e.registry))
	for k := range e.registry {
		keys = append(keys, k)
	}
	e.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Clear removes all listeners for the specified event.
func (e *Emitter) Clear(event Key) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.registry[event]
	if set == nil {
		return 0
	}

	count := e.clearSet(set)
	delete(e.registry, event)
	return count
}

// ClearAll removes all listeners for all events. After-hooks are kept.
func (e *Emitter) ClearAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, set := range e.registry {
		count += e.clearSet(set)
	}

	e.registry = make(map[Key]*listenerSet)
	return count
}

// clearSet flags every entry as removed. Caller holds e.mu.
func (e *Emitter) clearSet(set *listenerSet) int {
	count := set.len()
	for _, ent := range set.entries {
		ent.removed.Store(true)
	}
	e.totalListeners -= count // Decrement total listener counter
	return count
}

// Wait blocks until every listener dispatched so far, including its
// after-hook chain, has finished, or until ctx is done.
func (e *Emitter) Wait(ctx context.Context) error {
	return e.inflight.wait(ctx)
}

// Metrics returns current emitter metrics with thread-safe access.
// Registration counts require mutex acquisition for consistency with On/Off.
// All counter values are read atomically for thread safety.
func (e *Emitter) Metrics() Metrics {
	e.mu.RLock()
	registered := int64(e.totalListeners)
	hooks := int64(len(e.after))
	e.mu.RUnlock()

	var capacity int64
	if e.workers != nil {
		capacity = int64(cap(e.workers.tasks))
	}

	return Metrics{
		Emissions:           atomic.LoadInt64(&e.metrics.Emissions),
		Dispatched:          atomic.LoadInt64(&e.metrics.Dispatched),
		Skipped:             atomic.LoadInt64(&e.metrics.Skipped),
		Rejected:            atomic.LoadInt64(&e.metrics.Rejected),
		Succeeded:           atomic.LoadInt64(&e.metrics.Succeeded),
		Failed:              atomic.LoadInt64(&e.metrics.Failed),
		Panicked:            atomic.LoadInt64(&e.metrics.Panicked),
		HookFailures:        atomic.LoadInt64(&e.metrics.HookFailures),
		InFlight:            atomic.LoadInt64(&e.metrics.InFlight),
		QueueDepth:          atomic.LoadInt64(&e.metrics.QueueDepth),
		QueueCapacity:       capacity,
		Spilled:             atomic.LoadInt64(&e.metrics.Spilled),
		RegisteredListeners: registered,
		AfterHooks:          hooks,
	}
}

// Close stops accepting emissions and registrations, waits for in-flight
// listeners to finish (bounded by ctx), then stops the worker pool.
//
// Emitters hold no external resources, so Close is optional.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrAlreadyClosed
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.inflight.wait(ctx); err != nil {
		// Leave the pool to drain whatever is still queued
		if e.workers != nil {
			e.workers.stop()
		}
		return err
	}

	if e.workers != nil {
		e.workers.close()
	}
	return nil
}
