package dispatch

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryPolicy is the total number of attempts and the delay before the
// second one. The delay doubles after every further failure.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// Retry runs op until it succeeds, the attempts are used up or ctx is done.
// The returned error wraps the last failure.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.BaseDelay

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			return fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}

		log.Debugf("Attempt %d/%d failed, retrying in %v: %v", attempt, attempts, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("gave up after %d attempts (%w): %v", attempt, ctx.Err(), err)
		case <-timer.C:
		}
		delay *= 2
	}
}
