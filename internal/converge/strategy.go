package converge

import (
	"context"
	"errors"
	"log"
	"time"

	actiondomain "mfa-orphans/internal/action/domain"
	statusdomain "mfa-orphans/internal/mfastatus/domain"
)

// Result strategy timings.
const (
	ResultInterval = 750 * time.Millisecond
	ResultTries    = 40
)

// SnapshotSource returns the current status snapshot. A missing snapshot is (nil, nil) or an error;
// both are treated as not yet converged.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*statusdomain.Snapshot, error)
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func(ctx context.Context) (*statusdomain.Snapshot, error)

func (f SnapshotFunc) Snapshot(ctx context.Context) (*statusdomain.Snapshot, error) { return f(ctx) }

// ResultFetcher returns a worker result, ErrNotReady while the action is pending, or ErrNotFound.
type ResultFetcher interface {
	FetchResult(ctx context.Context, id string) (*actiondomain.Result, error)
}

// Progress is called after every snapshot try with the rows still outstanding.
type Progress func(attempt int, pending []Row)

// SnapshotOptions tunes WaitForSnapshot. Zero values pick the defaults.
type SnapshotOptions struct {
	Clock    Clock
	Interval time.Duration
	Tries    int
	Progress Progress
}

// WaitForSnapshot polls src until every row of board is satisfied. Tries defaults to the budget
// for the board's want map. Read errors and missing snapshots are retried.
func WaitForSnapshot(ctx context.Context, src SnapshotSource, board *Board, opts SnapshotOptions) (Outcome, error) {
	if board.Done() {
		return Converged, nil
	}
	if opts.Interval <= 0 {
		opts.Interval = SnapshotInterval
	}
	if opts.Tries <= 0 {
		opts.Tries = board.want.Tries()
	}
	return Poll(ctx, opts.Clock, opts.Interval, opts.Tries, func(ctx context.Context, attempt int) (bool, error) {
		snap, err := src.Snapshot(ctx)
		if err != nil {
			log.Printf("converge: snapshot try %d: %v", attempt, err)
		}
		done := board.Evaluate(snap)
		if opts.Progress != nil {
			opts.Progress(attempt, board.Pending())
		}
		return done, nil
	})
}

// ResultOptions tunes WaitForResult. Zero values pick the defaults.
type ResultOptions struct {
	Clock    Clock
	Interval time.Duration
	Tries    int
	// Classify decides success; defaults to the explicit success flag only.
	Classify func(*actiondomain.Result) actiondomain.Outcome
}

// WaitForResult polls f for the result of id. NotReady and transport errors are retried.
// NotFound aborts. Only a succeeded result converges cleanly: a failed result, or one without
// a success flag Classify accepts, is returned together with a *WorkerFailureError carrying
// its details. GaveUp with a nil result means no result was seen.
func WaitForResult(ctx context.Context, f ResultFetcher, id string, opts ResultOptions) (*actiondomain.Result, Outcome, error) {
	if opts.Interval <= 0 {
		opts.Interval = ResultInterval
	}
	if opts.Tries <= 0 {
		opts.Tries = ResultTries
	}
	if opts.Classify == nil {
		opts.Classify = func(r *actiondomain.Result) actiondomain.Outcome { return r.Classify(false) }
	}
	var res *actiondomain.Result
	outcome, err := Poll(ctx, opts.Clock, opts.Interval, opts.Tries, func(ctx context.Context, attempt int) (bool, error) {
		r, err := f.FetchResult(ctx, id)
		switch {
		case err == nil:
			res = r
			return true, nil
		case errors.Is(err, actiondomain.ErrNotReady):
			return false, nil
		case errors.Is(err, actiondomain.ErrNotFound):
			return false, err
		default:
			log.Printf("converge: result %s try %d: %v", id, attempt, err)
			return false, nil
		}
	})
	if err != nil || outcome != Converged {
		return nil, outcome, err
	}
	switch opts.Classify(res) {
	case actiondomain.OutcomeSucceeded:
		return res, Converged, nil
	case actiondomain.OutcomeFailed:
		return res, Converged, &actiondomain.WorkerFailureError{ActionID: id, Details: res.Details}
	default:
		return res, Converged, &actiondomain.WorkerFailureError{ActionID: id, Details: res.Details, Unconfirmed: true}
	}
}
