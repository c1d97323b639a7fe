package schedlib

import (
	"context"
	"errors"
	"time"
)

// TickFunc handles one tick. It returns done=true when the run is over.
type TickFunc func(ctx context.Context) (done bool, err error)

// RunClock calls fn once per interval, starting one interval from now, until fn
// reports done, fn fails, or ctx is cancelled. fn always runs on the calling
// goroutine, so ticks never overlap; fires which come due while fn is still
// busy are dropped by the ticker.
func RunClock(ctx context.Context, interval time.Duration, fn TickFunc) error {
	if interval <= 0 {
		return errors.New("cannot run clock, interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	return Drive(ctx, ticker.C, fn)
}

// Drive calls fn for every value received from ticks. See RunClock.
func Drive(ctx context.Context, ticks <-chan time.Time, fn TickFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return errors.New("tick source closed")
			}
			done, err := fn(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}
