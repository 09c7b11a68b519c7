package emitz

import (
	"context"
	"slices"
	"sync/atomic"
	"time"
)

// ListenerFunc is the callback behind a Listener. A non-nil error, or a
// panic, is reported to after-hooks as Outcome.Err; otherwise the returned
// value is reported as Outcome.Result.
type ListenerFunc func(ctx context.Context, args ...any) (any, error)

// Listener is a registration handle for a ListenerFunc.
//
// Go func values cannot be compared, so the *Listener pointer is what
// On, Once and Off use as identity. Keep the pointer if you need to
// unregister later:
//
//	audit := emitz.NewListener(writeAudit)
//	emitter.On("order.placed", audit)
//	// ...
//	emitter.Off("order.placed", audit)
//
// Two listeners built from the same func are distinct members.
type Listener struct {
	fn ListenerFunc
}

// NewListener wraps fn in a new Listener handle.
func NewListener(fn ListenerFunc) *Listener {
	return &Listener{fn: fn}
}

// AfterFunc observes the Outcome of a single listener invocation.
// Returning an error (or panicking) aborts the remaining after-hooks for
// that Outcome only; the failure is logged and reported to the
// WithHookErrorHandler callback.
type AfterFunc func(ctx context.Context, o Outcome) error

// Outcome describes how one listener invocation settled.
//
// Exactly one of Err and Result carries information. A listener that
// returns (nil, nil) yields an Outcome where both are nil.
type Outcome struct {
	Err        error         // Listener error, or *PanicError if it panicked
	Result     any           // Listener return value when Err is nil
	Event      Key           // Event the listener was registered for
	Args       []any         // Arguments passed to Emit
	EmissionID string        // Shared by every Outcome of one Emit call
	Duration   time.Duration // Listener run time, measured on the emitter clock
}

// entry is one membership of a listener in an event's set.
type entry struct {
	listener *Listener
	once     bool
	removed  atomic.Bool
}

// claim reports whether the entry may run now. A once entry can be
// claimed a single time; a regular entry runs until removed.
func (e *entry) claim() bool {
	if e.once {
		return e.removed.CompareAndSwap(false, true)
	}
	return !e.removed.Load()
}

// listenerSet is an insertion-ordered set of entries. index holds the
// On memberships by identity; once entries are never indexed, so every
// Once call adds its own one-shot member next to any On of the same
// listener. entries is replaced, never mutated in place, on removal so
// that snapshots taken by Emit stay valid.
type listenerSet struct {
	entries []*entry
	index   map[*Listener]*entry
}

func newListenerSet() *listenerSet {
	return &listenerSet{index: make(map[*Listener]*entry)}
}

// add inserts e unless it is a regular entry whose listener is already
// registered with On.
func (s *listenerSet) add(e *entry) bool {
	if !e.once {
		if _, ok := s.index[e.listener]; ok {
			return false
		}
		s.index[e.listener] = e
	}
	s.entries = append(s.entries, e)
	return true
}

// remove drops every membership of l, regular and pending once, and flags
// them so in-flight snapshots skip them. It returns how many were dropped.
func (s *listenerSet) remove(l *Listener) int {
	next := make([]*entry, 0, len(s.entries))
	for _, cur := range s.entries {
		if cur.listener == l {
			cur.removed.Store(true)
			continue
		}
		next = append(next, cur)
	}

	n := len(s.entries) - len(next)
	if n > 0 {
		delete(s.index, l)
		s.entries = next
	}
	return n
}

// drop removes e from the set without touching its flag.
func (s *listenerSet) drop(e *entry) bool {
	i := slices.Index(s.entries, e)
	if i < 0 {
		return false
	}
	if s.index[e.listener] == e {
		delete(s.index, e.listener)
	}
	s.entries = slices.Delete(slices.Clone(s.entries), i, i+1)
	return true
}

// snapshot copies the current members in insertion order.
func (s *listenerSet) snapshot() []*entry {
	out := make([]*entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *listenerSet) len() int {
	return len(s.entries)
}
