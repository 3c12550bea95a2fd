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
)

var (
	resultInterval time.Duration
	resultTries    int
)

var resultCmd = &cobra.Command{
	Use:   "result <action_id>",
	Short: "Fetch an action result once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient().FetchResult(cmd.Context(), args[0])
		if errors.Is(err, domain.ErrNotReady) {
			fmt.Println("pending")
			return nil
		}
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait <action_id>",
	Short: "Wait for an action result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyPollDefaults(cmd)
		return waitResult(cmd, apiClient(), args[0])
	},
}

func waitResult(cmd *cobra.Command, c *client.Client, id string) error {
	res, outcome, err := converge.WaitForResult(cmd.Context(), c, id, converge.ResultOptions{
		Interval: resultInterval,
		Tries:    resultTries,
	})
	var wf *domain.WorkerFailureError
	switch {
	case errors.As(err, &wf):
		_ = printResult(res)
		return &exitError{code: exitWorkerFailure, err: err}
	case err != nil:
		return err
	case outcome == converge.GaveUp:
		return &exitError{code: exitGaveUp, err: fmt.Errorf("no result for %s yet; run mfactl wait %s later", id, id)}
	}
	return printResult(res)
}

func printResult(res *domain.Result) error {
	if res == nil {
		return nil
	}
	if len(res.Raw) > 0 {
		_, err := os.Stdout.Write(append([]byte(res.Raw), '\n'))
		return err
	}
	fmt.Printf("%s %s: %s\n", res.ActionID, res.Classify(false), res.Details)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{waitCmd, deleteCmd} {
		c.Flags().DurationVar(&resultInterval, "result-interval", converge.ResultInterval, "result poll interval")
		c.Flags().IntVar(&resultTries, "result-tries", converge.ResultTries, "result poll tries")
	}
	rootCmd.AddCommand(resultCmd, waitCmd)
}
