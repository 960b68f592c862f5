// Package panicerr turns panics into errors so one failing unit of work does
// not take down its siblings.
package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Call runs fn and converts a panic into a *panics.RecoveredError.
func Call[T any](fn func() (T, error)) (T, error) {
	var (
		catcher panics.Catcher
		val     T
		err     error
	)
	catcher.Try(func() {
		val, err = fn()
	})
	if r := catcher.Recovered(); r != nil {
		var zero T
		return zero, r.AsError()
	}
	return val, err
}

// SafeContext wraps fn so that a panic is returned as an error.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := Call(func() (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		return err
	}
}
