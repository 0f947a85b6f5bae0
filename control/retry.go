package control

import (
	"context"
	"fmt"
	"time"

	"pifanctrl/log"
)

// Retry calls fn up to attempts times, sleeping delay between failures.
// It is meant for opening hardware handles at startup.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, what string, fn func() (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var v T
		v, err = fn()
		if err == nil {
			if i > 1 {
				log.Infof("%s: succeeded on attempt %d", what, i)
			}
			return v, nil
		}
		log.Warnf("%s: attempt %d/%d failed: %s", what, i, attempts, err)
		if i == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w (last error: %v)", what, ctx.Err(), err)
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", what, attempts, err)
}
