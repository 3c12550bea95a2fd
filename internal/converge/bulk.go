package converge

import (
	"context"

	"golang.org/x/sync/errgroup"

	actiondomain "mfa-orphans/internal/action/domain"
	statusdomain "mfa-orphans/internal/mfastatus/domain"
)

// bulkConcurrency caps in-flight enqueue calls during a bulk submission.
const bulkConcurrency = 16

// Enqueuer queues one action and returns its action_id.
type Enqueuer interface {
	Enqueue(ctx context.Context, req actiondomain.Request) (string, error)
}

// Submission is the outcome of one bulk enqueue call.
type Submission struct {
	Request  actiondomain.Request
	ActionID string
	Err      error
}

// BulkReport tallies a bulk submission and the merged convergence poll.
type BulkReport struct {
	Submissions []Submission
	Succeeded   int
	Failed      int
	Want        WantMap
	Outcome     Outcome
	Pending     []Row
}

// BulkEnqueue dispatches every request concurrently and returns the submissions in request order
// together with the merged want map of the successful ones. baseline, if non-nil, lets
// single-device webauthn deletes be tracked.
func BulkEnqueue(ctx context.Context, enq Enqueuer, reqs []actiondomain.Request, baseline *statusdomain.Snapshot) ([]Submission, WantMap) {
	subs := make([]Submission, len(reqs))
	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			id, err := enq.Enqueue(ctx, req)
			subs[i] = Submission{Request: req, ActionID: id, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	want := make(WantMap)
	for _, s := range subs {
		if s.Err != nil {
			continue
		}
		if w, ok := WantFor(s.Request, baseline); ok {
			want.Add(s.Request.User, w)
		}
	}
	return subs, want
}

// BulkDelete enqueues reqs and then runs one snapshot poll for the merged want map.
// Individual enqueue failures are reported per submission and never abort the batch.
func BulkDelete(ctx context.Context, enq Enqueuer, src SnapshotSource, reqs []actiondomain.Request, opts SnapshotOptions) (*BulkReport, error) {
	var baseline *statusdomain.Snapshot
	if src != nil {
		baseline, _ = src.Snapshot(ctx)
	}
	subs, want := BulkEnqueue(ctx, enq, reqs, baseline)
	report := &BulkReport{Submissions: subs, Want: want}
	for _, s := range subs {
		if s.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	if report.Succeeded == 0 || src == nil {
		return report, nil
	}
	board := NewBoard(want)
	outcome, err := WaitForSnapshot(ctx, src, board, opts)
	report.Outcome = outcome
	report.Pending = board.Pending()
	return report, err
}
