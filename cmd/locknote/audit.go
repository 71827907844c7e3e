package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JackyZhang8/locknote/pkg/audit"
)

var (
	auditLimit     int
	auditSince     string
	auditJSON      bool
	auditOlderThan string
	auditYes       bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditVerifyCmd, auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Show at most this many of the newest events (0 shows all)")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Only events newer than this (e.g. 24h, 7d)")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")
	auditVerifyCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")

	auditPruneCmd.Flags().StringVar(&auditOlderThan, "older-than", "", "Delete monthly log files whose newest event is older than this (e.g. 365d)")
	auditPruneCmd.Flags().BoolVarP(&auditYes, "yes", "y", false, "Do not ask for confirmation")
	_ = auditPruneCmd.MarkFlagRequired("older-than")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tamper-evident audit trail",
	Long: `Every security-relevant operation (unlock, password change, backup,
export, MCP session) is appended to an HMAC-chained log in <data-dir>/audit.
The log never contains note titles or content.`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		var since time.Time
		if auditSince != "" {
			d, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			since = time.Now().Add(-d)
		}
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		events, err := v.AuditLogger().ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}
		if auditJSON {
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events")
			return nil
		}
		for _, e := range events {
			fmt.Println(formatEvent(e))
		}
		return nil
	},
}

func formatEvent(e audit.Event) string {
	ts := e.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		ts = t.Local().Format("2006-01-02 15:04:05")
	}
	result := success()
	if e.Result != audit.ResultSuccess {
		result = failure()
	}
	line := fmt.Sprintf("%s %s %-4s %s", ts, result, e.Source, e.Operation)
	if e.Subject != "" {
		line += " " + highlight(e.Subject)
	}
	if e.Error != nil && e.Error.Code != "" {
		line += " " + warning("("+e.Error.Code+")")
	}
	return line
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the sequence, linkage and HMAC of every audit record",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		result, err := v.AuditLogger().Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}
		if auditJSON {
			if err := printJSON(result); err != nil {
				return err
			}
		} else if result.Valid {
			fmt.Printf("%s %d records, chain intact\n", success(), result.RecordsTotal)
		} else {
			fmt.Printf("%s %d records, %d problem(s)\n", failure(), result.RecordsTotal, len(result.Errors))
			for _, e := range result.Errors {
				fmt.Println("  " + e)
			}
		}
		if !result.Valid {
			return fmt.Errorf("audit log failed verification")
		}
		return nil
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old monthly audit log files",
	Long: `Delete monthly audit log files whose newest event is older than --older-than.

The first record that survives no longer links back to the start of the
chain, so 'audit verify' reports one chain break after a prune.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := parseDuration(auditOlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
		if !auditYes && !confirm("Delete audit logs older than "+auditOlderThan+"?") {
			fmt.Println("Aborted")
			return nil
		}
		n, err := v.AuditLogger().Prune(d)
		if err != nil {
			return fmt.Errorf("failed to prune audit log: %w", err)
		}
		fmt.Printf("%s Removed %d record(s)\n", success(), n)
		return nil
	},
}
