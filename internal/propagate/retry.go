package propagate

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/RamXX/plansync/internal/lock"
)

// WithRetry runs op until it succeeds, fails with anything other than a
// lock timeout, or maxElapsed passes.
func WithRetry(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, lock.ErrTimeout) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func (p *Propagator) retry(ctx context.Context, op func() error) error {
	attempt := 0
	return WithRetry(ctx, p.RetryMaxElapsed, func() error {
		attempt++
		err := op()
		if err != nil && errors.Is(err, lock.ErrTimeout) {
			p.logger.Warn("lock timeout, retrying", "attempt", attempt, "err", err)
		}
		return err
	})
}
