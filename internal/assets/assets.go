// Package assets loads session assets (marker templates, gesture libraries)
// under an explicit deadline.
package assets

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single asset load.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is wrapped by a LoadError when a load exceeds its deadline.
var ErrTimeout = errors.New("asset load timed out")

// LoadError reports a failed asset load.
type LoadError struct {
	Asset string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load asset %s: %v", e.Asset, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load runs fn with a deadline of timeout (DefaultTimeout when <= 0) and
// returns its value. A load that overruns is abandoned: its result is
// discarded when it eventually returns.
func Load[T any](ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("panic: %v", p)
			}
			done <- r
		}()
		r.v, r.err = fn(ctx)
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, &LoadError{Asset: name, Err: r.err}
		}
		return r.v, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, &LoadError{Asset: name, Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
		}
		return zero, &LoadError{Asset: name, Err: ctx.Err()}
	}
}
