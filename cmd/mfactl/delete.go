package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/client"
	"mfa-orphans/internal/converge"
	statusdomain "mfa-orphans/internal/mfastatus/domain"
)

const (
	strategyResult   = "result"
	strategySnapshot = "snapshot"
)

var (
	deleteOp       string
	deleteScope    string
	deleteMasked   string
	deleteIndex    int
	deleteWait     bool
	deleteStrategy string

	pollInterval time.Duration
	pollTries    int
)

var deleteCmd = &cobra.Command{
	Use:   "delete <user>",
	Short: "Queue one TOTP or WebAuthn delete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyPollDefaults(cmd)
		op, err := parseOp(deleteOp)
		if err != nil {
			return err
		}
		target, err := buildTarget(op, deleteScope, deleteMasked, deleteIndex)
		if err != nil {
			return err
		}
		req := domain.Request{Op: op, User: args[0], Target: target}
		ctx := cmd.Context()
		c := apiClient()

		var baseline *statusdomain.Snapshot
		if deleteWait && deleteStrategy == strategySnapshot {
			baseline, _ = c.Snapshot(ctx)
		}
		id, err := c.Enqueue(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(id)
		if !deleteWait {
			return nil
		}

		switch deleteStrategy {
		case strategyResult:
			return waitResult(cmd, c, id)
		case strategySnapshot:
			want, ok := converge.WantFor(req, baseline)
			if !ok {
				fmt.Fprintln(os.Stderr, "no snapshot dimension to track for this delete; falling back to the result")
				return waitResult(cmd, c, id)
			}
			wm := converge.WantMap{}
			wm.Add(req.User, want)
			return waitSnapshot(cmd, c, wm)
		default:
			return fmt.Errorf("unknown strategy %q (want result or snapshot)", deleteStrategy)
		}
	},
}

var (
	bulkFile       string
	bulkOrphans    bool
	bulkTOTP       bool
	bulkWebAuthn   bool
	bulkServerSide bool
	bulkDryRun     bool
)

var bulkDeleteCmd = &cobra.Command{
	Use:   "bulk-delete",
	Short: "Queue many deletes and wait once for the snapshot to converge",
	Long: `Queue many deletes concurrently, then run a single snapshot poll for all of them.

Requests come from --file (a JSON array of {"op","user","target"}) or from the
current orphan report with --from-orphans. Failed submissions are reported and
excluded from the poll.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyPollDefaults(cmd)
		ctx := cmd.Context()
		c := apiClient()

		var reqs []domain.Request
		switch {
		case bulkFile != "" && bulkOrphans:
			return errors.New("use either --file or --from-orphans")
		case bulkFile != "":
			f, err := os.Open(bulkFile)
			if err != nil {
				return err
			}
			reqs, err = readRequests(f)
			_ = f.Close()
			if err != nil {
				return err
			}
		case bulkOrphans:
			res, err := c.Orphans(ctx)
			if err != nil {
				return err
			}
			reqs = requestsFromOrphans(res, bulkTOTP, bulkWebAuthn)
		default:
			return errors.New("one of --file or --from-orphans is required")
		}
		if len(reqs) == 0 {
			fmt.Println("nothing to delete")
			return nil
		}
		if bulkDryRun {
			return printJSON(os.Stdout, reqs)
		}

		if bulkServerSide {
			return bulkViaServer(cmd, c, reqs)
		}
		report, err := converge.BulkDelete(ctx, c, c, reqs, snapshotOptions())
		if err != nil {
			return err
		}
		printSubmissions(report.Submissions)
		return finishSnapshot(report.Outcome, report.Pending, report.Succeeded)
	},
}

// bulkViaServer submits the batch in one request; the server enqueues concurrently and returns the want map.
func bulkViaServer(cmd *cobra.Command, c *client.Client, reqs []domain.Request) error {
	resp, err := c.BulkEnqueue(cmd.Context(), reqs)
	if err != nil {
		return err
	}
	tw := newTable(os.Stdout)
	fmt.Fprintln(tw, "OP\tUSER\tACTION_ID\tERROR")
	for _, it := range resp.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Op, it.User, it.ActionID, it.Error)
	}
	_ = tw.Flush()
	fmt.Printf("%d submitted, %d failed\n", resp.Submitted, resp.Failed)
	if resp.Submitted == 0 {
		return nil
	}
	return waitSnapshot(cmd, c, resp.Want)
}

func printSubmissions(subs []converge.Submission) {
	tw := newTable(os.Stdout)
	fmt.Fprintln(tw, "OP\tUSER\tACTION_ID\tERROR")
	ok, failed := 0, 0
	for _, s := range subs {
		msg := ""
		if s.Err != nil {
			msg = s.Err.Error()
			failed++
		} else {
			ok++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Request.Op, s.Request.User, s.ActionID, msg)
	}
	_ = tw.Flush()
	fmt.Printf("%d submitted, %d failed\n", ok, failed)
}

func snapshotOptions() converge.SnapshotOptions {
	return converge.SnapshotOptions{
		Interval: pollInterval,
		Tries:    pollTries,
		Progress: progressPrinter(10),
	}
}

func waitSnapshot(cmd *cobra.Command, c *client.Client, want converge.WantMap) error {
	board := converge.NewBoard(want)
	outcome, err := converge.WaitForSnapshot(cmd.Context(), c, board, snapshotOptions())
	if err != nil {
		return err
	}
	return finishSnapshot(outcome, board.Pending(), len(want))
}

func finishSnapshot(outcome converge.Outcome, pending []converge.Row, submitted int) error {
	if submitted == 0 {
		return nil
	}
	if outcome == converge.Converged {
		fmt.Println("converged")
		return nil
	}
	return &exitError{code: exitGaveUp, err: fmt.Errorf("gave up with %d rows pending: %s", len(pending), summarizeRows(pending, 10))}
}

func init() {
	deleteCmd.Flags().StringVar(&deleteOp, "op", "totp", "credential to delete: totp or webauthn")
	deleteCmd.Flags().StringVar(&deleteScope, "scope", string(domain.ScopeAll), "webauthn scope: all or one")
	deleteCmd.Flags().StringVar(&deleteMasked, "masked", "", "masked credential id for --scope one")
	deleteCmd.Flags().IntVar(&deleteIndex, "index", -1, "device index for --scope one")
	deleteCmd.Flags().BoolVar(&deleteWait, "wait", false, "wait for the worker to converge")
	deleteCmd.Flags().StringVar(&deleteStrategy, "strategy", strategyResult, "wait strategy: result or snapshot")

	bulkDeleteCmd.Flags().StringVar(&bulkFile, "file", "", "JSON file with the requests")
	bulkDeleteCmd.Flags().BoolVar(&bulkOrphans, "from-orphans", false, "delete every credential in the current orphan report")
	bulkDeleteCmd.Flags().BoolVar(&bulkTOTP, "totp", true, "with --from-orphans: include TOTP orphans")
	bulkDeleteCmd.Flags().BoolVar(&bulkWebAuthn, "webauthn", true, "with --from-orphans: include WebAuthn orphans")
	bulkDeleteCmd.Flags().BoolVar(&bulkServerSide, "server-side", false, "submit the batch in one API call")
	bulkDeleteCmd.Flags().BoolVar(&bulkDryRun, "dry-run", false, "print the requests without queueing them")

	for _, c := range []*cobra.Command{deleteCmd, bulkDeleteCmd} {
		c.Flags().DurationVar(&pollInterval, "interval", converge.SnapshotInterval, "snapshot poll interval")
		c.Flags().IntVar(&pollTries, "tries", 0, "snapshot poll tries (0 picks the budget for the batch)")
	}
	rootCmd.AddCommand(deleteCmd, bulkDeleteCmd)
}
