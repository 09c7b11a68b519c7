package emitz

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// defaultLogger writes JSON to stderr at info level. Built from a core so
// that it cannot fail.
func defaultLogger() *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zap.InfoLevel,
	)
	return zap.New(core).Named("emitz")
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// logHookFailure records which hook broke the chain, the error's type name
// and the best stack available for it.
func (e *Emitter) logHookFailure(index int, o Outcome, err error) {
	e.logger.Error("after hook failed",
		zap.String("event", o.Event),
		zap.String("emission_id", o.EmissionID),
		zap.Int("hook_index", index),
		zap.String("error_type", errorName(err)),
		zap.Error(err),
		stackField(err),
	)
}

func errorName(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("panic(%T)", pe.Value)
	}
	return fmt.Sprintf("%T", errors.Cause(err))
}

func stackField(err error) zap.Field {
	var pe *PanicError
	if errors.As(err, &pe) {
		return zap.ByteString("stack", pe.Stack)
	}

	var st stackTracer
	if errors.As(err, &st) && !recordedAtInit(st.StackTrace()) {
		return zap.String("stack", fmt.Sprintf("%+v", st.StackTrace()))
	}

	// Plain errors and package-level sentinels carry no useful stack; the
	// delivering goroutine's is the closest
	return zap.Stack("stack")
}

// recordedAtInit reports whether trace was captured while initializing a
// package variable, as it is for sentinels declared with errors.New.
func recordedAtInit(trace errors.StackTrace) bool {
	for _, f := range trace {
		if fmt.Sprintf("%n", f) == "init" {
			return true
		}
	}
	return false
}
