package emitz

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// task represents a single listener invocation plus its hook chain.
type task struct {
	ctx        context.Context // Context passed to Emit
	event      Key             // Event name (for outcome and logging)
	args       []any           // Emission arguments
	emissionID string          // Correlates tasks of one Emit
	entry      *entry          // Listener membership captured at Emit
	hooks      []AfterFunc     // After-hook chain captured at Emit
}

// dispatch hands t to the worker pool if one is configured, otherwise
// starts a goroutine for it.
func (e *Emitter) dispatch(t task) {
	if e.workers != nil {
		e.workers.submit(t)
		return
	}
	go e.run(t)
}

// run is the isolated unit of work for one listener. Nothing it does can
// reach the caller of Emit or another task.
func (e *Emitter) run(t task) {
	defer func() {
		atomic.AddInt64(&e.metrics.InFlight, -1)
		e.inflight.done()
	}()

	if !t.entry.claim() {
		// Removed after the snapshot was taken
		atomic.AddInt64(&e.metrics.Skipped, 1)
		return
	}

	if t.entry.once {
		e.detach(t.event, t.entry)
	}

	o := e.invoke(t)
	e.deliver(t, o)
}

// invoke runs the listener with panic recovery and the configured timeout.
func (e *Emitter) invoke(t task) Outcome {
	o := Outcome{
		Event:      t.event,
		Args:       t.args,
		EmissionID: t.emissionID,
	}

	ctx := t.ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = e.clock.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := e.clock.Now()
	o.Result, o.Err = callListener(ctx, t.entry.listener, t.args)
	o.Duration = e.clock.Now().Sub(start)

	if o.Err != nil {
		o.Result = nil
		atomic.AddInt64(&e.metrics.Failed, 1)
		// Listener failures are the hooks' to report, not the logger's
		if _, ok := o.Err.(*PanicError); ok {
			atomic.AddInt64(&e.metrics.Panicked, 1)
		}
	} else {
		atomic.AddInt64(&e.metrics.Succeeded, 1)
	}
	return o
}

func callListener(ctx context.Context, l *Listener, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = newPanicError(ErrListenerPanicked, r)
		}
	}()
	return l.fn(ctx, args...)
}

// deliver passes o to each hook in order. The first failing hook ends
// the chain for this outcome.
func (e *Emitter) deliver(t task, o Outcome) {
	for i, hook := range t.hooks {
		if err := callHook(t.ctx, hook, o); err != nil {
			atomic.AddInt64(&e.metrics.HookFailures, 1)
			e.logHookFailure(i, o, err)
			e.reportHookFailure(o, err)
			return
		}
	}
}

func callHook(ctx context.Context, hook AfterFunc, o Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(ErrHookPanicked, r)
		}
	}()
	return hook(ctx, o)
}

// reportHookFailure calls the user's handler; a panic there is logged
// and contained like any other hook failure.
func (e *Emitter) reportHookFailure(o Outcome, err error) {
	if e.onHookError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("hook error handler panicked",
				zap.String("event", o.Event),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	e.onHookError(o, err)
}

// tracker counts tasks that have been dispatched but not finished.
// Unlike sync.WaitGroup it allows add to race with wait.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *tracker) add(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n += n
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

// wait returns once the count drops to zero or ctx is done.
func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	if t.n == 0 {
		t.mu.Unlock()
		return nil
	}
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// workerPool bounds the number of goroutines running listener tasks.
//
// The pool:
//   - Starts a fixed number of workers reading from a buffered queue
//   - Never blocks or fails a submission: tasks that do not fit in the
//     queue, or arrive after shutdown, run on a dedicated goroutine
//   - Supports graceful shutdown that drains queued tasks
type workerPool struct {
	// Channel for receiving listener tasks
	tasks chan task

	// Executes one task; the emitter's run method
	run func(task)

	// WaitGroup to track worker goroutines for graceful shutdown
	wg sync.WaitGroup

	mu sync.RWMutex

	// Tracks if the pool has been closed
	closed bool

	// Metrics pointer for atomic updates
	metrics *Metrics
}

// newWorkerPool creates and starts a worker pool.
//
// The pool immediately starts workers goroutines that will process
// tasks from the queue. The queueSize parameter sets the buffering
// capacity for handling bursty workloads.
func newWorkerPool(workers, queueSize int, run func(task), metrics *Metrics) *workerPool {
	pool := &workerPool{
		tasks:   make(chan task, queueSize),
		run:     run,
		metrics: metrics,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	return pool
}

// submit queues t, or spills it to its own goroutine when the queue is
// full or the pool has been stopped.
func (p *workerPool) submit(t task) {
	// Channel send must be protected by mutex to prevent race with close()
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.closed {
		select {
		case p.tasks <- t:
			// Task successfully queued - update depth atomically
			atomic.AddInt64(&p.metrics.QueueDepth, 1)
			return
		default:
			// Queue is full
		}
	}

	atomic.AddInt64(&p.metrics.Spilled, 1)
	go p.run(t)
}

// worker is the main loop for worker goroutines.
//
// Each worker continuously processes tasks from the queue until
// the task channel is closed during shutdown.
func (p *workerPool) worker() {
	defer p.wg.Done()

	for t := range p.tasks {
		// Decrement queue depth as soon as task is retrieved
		atomic.AddInt64(&p.metrics.QueueDepth, -1)
		p.run(t)
	}
}

// stop prevents new submissions from being queued and closes the queue.
// Workers keep draining what was already queued.
func (p *workerPool) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}

// close stops the pool and waits for all workers to finish.
func (p *workerPool) close() {
	p.stop()
	p.wg.Wait()
}
