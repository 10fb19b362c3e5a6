package safe

import (
	"fmt"
	"reflect"

	"PPGate/logger"
	"PPGate/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Used to enforce required collaborators at construction time.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts f in a new goroutine; a panic inside f is logged and swallowed so
// a single connection can never take the process down.
func Go(name string, f func()) {
	go Run(name, f)
}

// Run calls f and recovers a panic, returning it as an error.
func Run(name string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
			logger.Error("[safe] panic recovered", zap.String("task", name), zap.Error(err))
		}
	}()
	f()
	return nil
}
