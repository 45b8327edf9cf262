// Package lock provides the two mutual-exclusion mechanisms used around
// document writes: an in-process LockTable and a cross-process FileLocker
// built on lease files that can be reclaimed when their owner dies.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned (wrapped in *TimeoutError) when a lock is not
// obtained within its budget. Callers may retry.
var ErrTimeout = errors.New("lock timeout")

// TimeoutError reports which target timed out and after how long.
type TimeoutError struct {
	Target  string
	Waited  time.Duration
	Holder  string
	Context string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("lock timeout on %s after %v", e.Target, e.Waited.Round(time.Millisecond))
	if e.Holder != "" {
		msg += " (held by " + e.Holder + ")"
	}
	if e.Context != "" {
		msg = e.Context + ": " + msg
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Locker is satisfied by both LockTable and FileLocker. Lock blocks until
// path is held or the lock's timeout elapses; the returned release func is
// safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, path string) (release func() error, err error)
}

// With runs fn while holding path, releasing on every exit path.
func With(ctx context.Context, l Locker, path string, fn func() error) (err error) {
	release, err := l.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = fmt.Errorf("release lock %s: %w", path, rerr)
		}
	}()
	return fn()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
