// Package converge waits for queued actions to take effect, either by watching the status snapshot
// or by waiting for the worker's per-action result.
package converge

import (
	"context"
	"time"
)

// Outcome is how a poll ended.
type Outcome int

const (
	// GaveUp means max tries were spent without the predicate holding. It is not a failure of
	// the action, only of observation.
	GaveUp Outcome = iota
	Converged
)

func (o Outcome) String() string {
	if o == Converged {
		return "converged"
	}
	return "gave_up"
}

// Predicate is evaluated once per try. Return done=true to stop; a non-nil error aborts the poll.
// Transient conditions should be reported as (false, nil).
type Predicate func(ctx context.Context, attempt int) (done bool, err error)

// Poll evaluates pred up to maxTries times, waiting interval between tries. The first try runs
// immediately. Context cancellation aborts the wait with ctx.Err().
func Poll(ctx context.Context, clock Clock, interval time.Duration, maxTries int, pred Predicate) (Outcome, error) {
	if clock == nil {
		clock = RealClock()
	}
	for attempt := 1; attempt <= maxTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return GaveUp, err
		}
		done, err := pred(ctx, attempt)
		if err != nil {
			return GaveUp, err
		}
		if done {
			return Converged, nil
		}
		if attempt == maxTries {
			break
		}
		select {
		case <-ctx.Done():
			return GaveUp, ctx.Err()
		case <-clock.After(interval):
		}
	}
	return GaveUp, nil
}
