package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/audit/retention"
	"mercator-hq/tether/pkg/audit/storage"
	"mercator-hq/tether/pkg/cli"
	"mercator-hq/tether/pkg/config"
)

var auditFlags struct {
	policy string
	kind   string
	since  string
	limit  int
	format string
	days   int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and maintain the audit trail",
	Long: `Inspect and maintain the audit trail of policy triggers and attempts.

Subcommands:
  query  - List audit events with filters
  prune  - Delete events older than the retention period`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit events",
	Long: `List audit events, newest first.

--since accepts a duration ("24h") or an RFC3339 timestamp.

Examples:
  # Attempts blocked in the last hour
  tether audit query --kind attempt --since 1h

  # Everything one policy recorded, as JSON
  tether audit query --policy block_unlock --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		q, err := buildQuery(time.Now())
		if err != nil {
			return err
		}
		return queryAudit(cmd.Context(), cfg, q, cmd.OutOrStdout(), cli.OutputFormat(auditFlags.format))
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention period now",
	Long: `Delete audit events older than the retention period.

The period comes from audit.retention_days unless --days is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("days") {
			cfg.Audit.RetentionDays = auditFlags.days
		}
		return pruneAudit(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditPruneCmd)

	auditQueryCmd.Flags().StringVar(&auditFlags.policy, "policy", "", "filter by policy ID")
	auditQueryCmd.Flags().StringVar(&auditFlags.kind, "kind", "", "filter by kind: trigger, attempt")
	auditQueryCmd.Flags().StringVar(&auditFlags.since, "since", "", "only events after this duration ago or RFC3339 time")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max results, 0 for all")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json, csv")

	auditPruneCmd.Flags().IntVar(&auditFlags.days, "days", 0, "override the retention period in days")
}

// buildQuery turns the query flags into an audit query.
func buildQuery(now time.Time) (*audit.Query, error) {
	q := &audit.Query{
		PolicyID: auditFlags.policy,
		Limit:    auditFlags.limit,
		Desc:     true,
	}

	switch audit.Kind(auditFlags.kind) {
	case "", audit.KindTrigger, audit.KindAttempt:
		q.Kind = audit.Kind(auditFlags.kind)
	default:
		return nil, fmt.Errorf("unknown event kind %q (supported: trigger, attempt)", auditFlags.kind)
	}

	if auditFlags.since != "" {
		since, err := parseSince(auditFlags.since, now)
		if err != nil {
			return nil, err
		}
		q.Since = &since
	}
	return q, nil
}

// parseSince accepts a duration before now or an RFC3339 timestamp.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q: duration must be positive", s)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a duration or RFC3339 time", s)
	}
	return t, nil
}

// eventTable renders audit events as rows.
type eventTable []*audit.Event

func (t eventTable) Header() []string {
	return []string{"TIME", "POLICY", "KIND", "TARGET", "MESSAGE"}
}

func (t eventTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, ev := range t {
		target := "-"
		if ev.TargetID != nil {
			target = *ev.TargetID
		}
		rows = append(rows, []string{
			ev.Time.Format(time.RFC3339),
			ev.PolicyID,
			string(ev.Kind),
			target,
			ev.Message,
		})
	}
	return rows
}

func queryAudit(ctx context.Context, cfg *config.Config, q *audit.Query, w io.Writer, format cli.OutputFormat) error {
	formatter, err := cli.NewFormatter(format)
	if err != nil {
		return err
	}

	st, err := storage.Open(cfg.Audit)
	if err != nil {
		return cli.NewCommandError("audit query", fmt.Errorf("failed to open audit storage: %w", err))
	}
	defer st.Close()

	events, err := st.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	return formatter.FormatTo(w, eventTable(events))
}

func pruneAudit(ctx context.Context, cfg *config.Config, w io.Writer) error {
	st, err := storage.Open(cfg.Audit)
	if err != nil {
		return cli.NewCommandError("audit prune", fmt.Errorf("failed to open audit storage: %w", err))
	}
	defer st.Close()

	deleted, err := retention.NewPruner(st, retention.FromConfig(cfg.Audit), nil).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	if cfg.Audit.RetentionDays <= 0 {
		fmt.Fprintln(w, "Retention disabled, nothing pruned")
		return nil
	}
	fmt.Fprintf(w, "✓ Pruned %d event(s) older than %d day(s)\n", deleted, cfg.Audit.RetentionDays)
	return nil
}
