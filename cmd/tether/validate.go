package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/tether/pkg/cli"
	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/policy/manager"
	"mercator-hq/tether/pkg/store"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and stored policy records",
	Long: `Validate the configuration file and every record in the policy store.

A record is invalid when its policy is not registered, its custom data does
not match the policy's schema, its conditions are malformed, its limit is
unknown or its internal data cannot be read. The engine would load such a
record with defaults instead.

Exit codes:
  0  everything is valid
  2  the configuration is invalid
  3  one or more records are invalid`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return validateRecords(cmd.Context(), cfg, cmd.OutOrStdout(), cli.OutputFormat(validateFlags.format))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json, csv")
}

// recordCheck is the validation result of one stored record.
type recordCheck struct {
	ID       string   `json:"id"`
	Enabled  bool     `json:"enabled"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

type recordChecks []recordCheck

func (c recordChecks) Header() []string {
	return []string{"POLICY", "ENABLED", "STATUS", "PROBLEMS"}
}

func (c recordChecks) Rows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, rc := range c {
		status := "ok"
		if !rc.Valid {
			status = "invalid"
		}
		problems := "-"
		if len(rc.Problems) > 0 {
			problems = fmt.Sprint(rc.Problems)
		}
		rows = append(rows, []string{rc.ID, fmt.Sprint(rc.Enabled), status, problems})
	}
	return rows
}

func validateRecords(ctx context.Context, cfg *config.Config, w io.Writer, format cli.OutputFormat) error {
	formatter, err := cli.NewFormatter(format)
	if err != nil {
		return err
	}

	host, err := newDemoHost(nil)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	backend, err := store.Open(cfg.Store)
	if err != nil {
		return cli.NewCommandError("validate", fmt.Errorf("failed to open policy store: %w", err))
	}
	defer backend.Close()

	records, err := backend.List(ctx)
	if err != nil {
		return cli.NewCommandError("validate", fmt.Errorf("failed to list policy records: %w", err))
	}

	checks := make(recordChecks, 0, len(records))
	invalid := 0
	for _, rec := range records {
		rc := checkRecord(host.catalog, rec)
		if !rc.Valid {
			invalid++
		}
		checks = append(checks, rc)
	}

	if err := formatter.FormatTo(w, checks); err != nil {
		return err
	}
	if invalid > 0 {
		return &cli.ValidationFailedError{Invalid: invalid}
	}
	return nil
}

func checkRecord(catalog *manager.Registry, rec *store.Record) recordCheck {
	rc := recordCheck{ID: rec.ID, Enabled: rec.Enabled}

	p, err := catalog.Get(rec.ID)
	if err != nil {
		rc.Problems = append(rc.Problems, "policy not registered")
		return rc
	}
	def := p.Definition()

	if _, err := def.Schema.Decode(def.ID, rec.CustomData); err != nil {
		rc.Problems = append(rc.Problems, err.Error())
	}
	if rec.Limit != "" && !rec.Limit.Valid() {
		rc.Problems = append(rc.Problems, fmt.Sprintf("unknown limit %q", rec.Limit))
	}
	if rec.Conditions != nil {
		if err := rec.Conditions.Validate(); err != nil {
			rc.Problems = append(rc.Problems, fmt.Sprintf("conditions: %v", err))
		}
	}
	if len(rec.InternalData) > 0 && def.InternalValidate != nil && !def.InternalValidate(rec.InternalData) {
		rc.Problems = append(rc.Problems, "internal data is unreadable")
	}

	rc.Valid = len(rc.Problems) == 0
	return rc
}
