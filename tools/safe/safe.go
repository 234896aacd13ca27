package safe

import (
	"reflect"

	"GCProject/logger"
	"GCProject/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required fields during struct initialization.
func MustNotNil(v any, name string) {
	if v == nil || reflect.ValueOf(v).IsNil() {
		panic(name + " must not be nil")
	}
}

// Go starts a new goroutine that recovers from panic, so a misbehaving
// background task cannot crash the whole process.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic",
					zap.String("name", name),
					zap.Error(errs.ErrPanic(r)))
			}
		}()
		f()
	}()
}

// Protect runs f inline with panic recovery. The session actor wraps every
// event handler with it so one bad event cannot take down the loop.
func Protect(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic",
				zap.String("name", name),
				zap.Error(errs.ErrPanic(r)))
		}
	}()
	f()
}
