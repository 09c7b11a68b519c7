package emitz

import (
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
)

// Lifecycle Errors
//
// These errors are returned by Close. No other public method returns an
// error: emitting an unknown event, registering a listener twice and
// removing an absent listener are all defined no-ops.

// ErrAlreadyClosed is returned when calling Close() on an emitter
// that has already been closed.
var ErrAlreadyClosed = errors.New("emitter already closed")

// Execution Errors
//
// These errors describe failures captured while dispatching. They never
// reach the caller of Emit.

// ErrListenerPanicked is matched by the Outcome.Err of a listener that
// panicked instead of returning.
var ErrListenerPanicked = errors.New("listener panicked")

// ErrHookPanicked is matched by the error handed to the hook error
// handler when an after-hook panicked.
var ErrHookPanicked = errors.New("after hook panicked")

// PanicError carries a recovered panic value and the stack of the
// goroutine that panicked.
//
//	if errors.Is(o.Err, emitz.ErrListenerPanicked) {
//		var pe *emitz.PanicError
//		errors.As(o.Err, &pe)
//		log.Printf("panic: %v\n%s", pe.Value, pe.Stack)
//	}
type PanicError struct {
	Value any
	Stack []byte
	kind  error
}

func newPanicError(kind error, value any) *PanicError {
	return &PanicError{
		Value: value,
		Stack: debug.Stack(),
		kind:  kind,
	}
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("%s: %v", p.kind.Error(), p.Value)
}

// Unwrap exposes the sentinel kind and, when the panic value was itself
// an error, that error too.
func (p *PanicError) Unwrap() []error {
	if err, ok := p.Value.(error); ok {
		return []error{p.kind, err}
	}
	return []error{p.kind}
}
