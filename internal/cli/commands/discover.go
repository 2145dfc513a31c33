package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/discovery"
)

// DiscoverOptions holds options for the discover command.
type DiscoverOptions struct {
	StartDate  string
	EndDate    string
	KeyValues  []string
	JSONOutput bool
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand() *cobra.Command {
	opts := &DiscoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover <template-id>",
		Short: "Enumerate report batches for a built contract",
		Long: `Enumerate the report batches the contract's join and date rules select
from the target database. Requires a previously built contract.`,
		Example: `  # List February's batches
  neurareport discover daily --start 2025-02-01 --end 2025-02-28

  # Restrict to one plant
  neurareport discover daily --start 2025-02-01 --end 2025-02-28 --key plant_id=101`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.StartDate, "start", "", "Inclusive start date (ISO-8601)")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "Inclusive end date (ISO-8601)")
	cmd.Flags().StringArrayVar(&opts.KeyValues, "key", nil, "Key filter as column=value (repeatable)")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output the full discovery response as JSON")

	return cmd
}

func runDiscover(cmd *cobra.Command, id string, opts *DiscoverOptions) error {
	cfg, root, err := loadProject()
	if err != nil {
		return err
	}
	if err := requireTarget(cfg); err != nil {
		return err
	}
	dir, err := templateDir(cfg, root, id)
	if err != nil {
		return err
	}
	keyValues, err := parseKeyValues(opts.KeyValues)
	if err != nil {
		return err
	}

	built := contract.Load(dir)
	if built == nil {
		return fmt.Errorf("no contract built for %s; run: neurareport build %s", id, id)
	}

	ctx := cmd.Context()
	db, err := dbx.OpenReadOnly(ctx, *cfg.Target)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	eng := discovery.New(db, cfg.Target.Dialect, newLogger(cmd))
	result, err := eng.DiscoverBatches(ctx, built.Contract, discovery.Params{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		KeyValues: keyValues,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSONOutput {
		fields, stats := discovery.BuildFieldCatalogAndStats(result.Batches)
		metrics := discovery.BuildBatchMetrics(result.Batches, nil, cfg.Discovery.MetricsLimit)
		schema := discovery.BuildSchema(fields)
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"batches":       result.Batches,
			"batches_count": result.BatchesCount,
			"rows_total":    result.RowsTotal,
			"field_catalog": fields,
			"stats":         stats,
			"metrics":       metrics,
			"schema":        schema,
		})
	}

	if result.BatchesCount == 0 {
		fmt.Fprintln(out, "No batches in range.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Batch", "Rows", "Parent"})
	for i, b := range result.Batches {
		t.AppendRow(table.Row{i + 1, b.ID, b.Rows, b.Parent})
	}
	t.Render()
	fmt.Fprintf(out, "%d batches, %d rows total\n", result.BatchesCount, result.RowsTotal)
	return nil
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		col, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("invalid --key %q, expected column=value", pair)
		}
		out[strings.TrimSpace(col)] = strings.TrimSpace(val)
	}
	return out, nil
}
