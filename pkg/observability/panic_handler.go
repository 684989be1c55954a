package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with its stack trace. It
// must be deferred directly:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "invitation purge")
//	    purge(ctx)
//	}()
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, component string) {
	if r := recover(); r != nil {
		logPanic(logger, component, r)
	}
}

// CallSafely runs fn and converts a panic inside it into an error. The stack
// is logged; the returned error only carries the panic value.
func CallSafely(logger *Logger, component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, component, r)
			err = PanicError(r)
		}
	}()
	return fn()
}

// PanicError converts a recovered value into an error, or nil if r is nil
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func logPanic(logger *Logger, component string, r interface{}) {
	logger.WithFields(map[string]interface{}{
		"panic":     fmt.Sprint(r),
		"stack":     string(debug.Stack()),
		"component": component,
	}).Error("Panic recovered")
}
