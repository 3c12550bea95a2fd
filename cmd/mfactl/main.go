// mfactl is the operator CLI for orphaned-MFA revocation: list orphans, queue deletes, and wait
// for the privileged worker to converge.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mfa-orphans/internal/client"
	"mfa-orphans/internal/config"
)

// Exit codes beyond cobra's generic 1.
const (
	exitGaveUp        = 3
	exitWorkerFailure = 4
)

var (
	serverURL   string
	token       string
	jsonOutput  bool
	httpTimeout time.Duration
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:           "mfactl",
	Short:         "Revoke MFA enrollments of subjects missing from the directory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("MFACTL_SERVER", "http://localhost:8081"), "operator API base URL (MFACTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("MFACTL_TOKEN"), "operator bearer token (MFACTL_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "http-timeout", 15*time.Second, "per-request HTTP timeout")
}

func apiClient() *client.Client {
	return client.New(serverURL, token, client.WithHTTPClient(newHTTPClient(httpTimeout)))
}

// applyPollDefaults takes poll intervals from SNAPSHOT_POLL_INTERVAL and RESULT_POLL_INTERVAL
// unless the flags were given. A config that does not load leaves the flag defaults.
func applyPollDefaults(cmd *cobra.Command) {
	cfg, err := config.Load()
	if err != nil {
		return
	}
	if f := cmd.Flags().Lookup("interval"); f != nil && !f.Changed {
		pollInterval = cfg.SnapshotPollInterval()
	}
	if f := cmd.Flags().Lookup("result-interval"); f != nil && !f.Changed {
		resultInterval = cfg.ResultPollInterval()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mfactl:", err)
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		os.Exit(code)
	}
}
