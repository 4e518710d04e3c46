// Package poll provides the bounded wait primitive used everywhere a
// remote condition is awaited: run a check immediately, then at a
// fixed interval, until it succeeds or a wall-clock deadline passes.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the deadline elapses before the
// condition reports done.
var ErrTimeout = errors.New("poll: deadline exceeded")

// Until calls fn immediately and then every interval until fn returns
// done=true, fn returns an error, ctx is cancelled, or timeout
// elapses. A zero interval defaults to one second.
func Until(ctx context.Context, timeout, interval time.Duration, fn func(ctx context.Context) (done bool, err error)) error {
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
