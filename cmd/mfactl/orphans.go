package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List subjects with active MFA but no directory identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient().Orphans(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, res)
		}
		tw := newTable(os.Stdout)
		fmt.Fprintln(tw, "SUBJECT\tCREDENTIAL\tCOUNT")
		for _, s := range res.TOTP {
			fmt.Fprintf(tw, "%s\ttotp\t1\n", s)
		}
		for _, w := range res.WebAuthn {
			fmt.Fprintf(tw, "%s\twebauthn\t%d\n", w.Subject, w.Count)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d unique subjects\n", res.TotalUnique)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the worker-published MFA status snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := apiClient().StatusRaw(cmd.Context())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(raw, '\n'))
		return err
	},
}

var (
	auditSubject string
	auditLimit   int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := apiClient().Audit(cmd.Context(), auditSubject, auditLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, entries)
		}
		tw := newTable(os.Stdout)
		fmt.Fprintln(tw, "TIME\tADMIN\tACTION\tSUBJECT\tACTION_ID")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), e.AdminUID, e.Action, e.Subject, e.ActionID)
		}
		return tw.Flush()
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditSubject, "subject", "", "only entries for this subject")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "number of entries (1-500)")
	rootCmd.AddCommand(orphansCmd, statusCmd, auditCmd)
}
