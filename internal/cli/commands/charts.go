package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/charts"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/discovery"
)

// ChartsOptions holds options for the charts command.
type ChartsOptions struct {
	StartDate string
	EndDate   string
	NoLLM     bool
}

// NewChartsCommand creates the charts command.
func NewChartsCommand() *cobra.Command {
	opts := &ChartsOptions{}

	cmd := &cobra.Command{
		Use:   "charts <template-id>",
		Short: "Suggest charts over a template's discovery metrics",
		Long: `Run batch discovery, then ask the model to propose charts over the batch
metrics. Proposals that cannot be repaired into valid specs are dropped;
when nothing usable comes back, deterministic fallback charts are generated
instead, so the command always prints something plottable when the data
allows it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCharts(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.StartDate, "start", "", "Inclusive start date (ISO-8601)")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "Inclusive end date (ISO-8601)")
	cmd.Flags().BoolVar(&opts.NoLLM, "no-llm", false, "Skip the model call and emit fallback charts only")

	return cmd
}

func runCharts(cmd *cobra.Command, id string, opts *ChartsOptions) error {
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

	logger := newLogger(cmd)
	eng := discovery.New(db, cfg.Target.Dialect, logger)
	result, err := eng.DiscoverBatches(ctx, built.Contract, discovery.Params{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
	})
	if err != nil {
		return err
	}

	fields, stats := discovery.BuildFieldCatalogAndStats(result.Batches)
	metrics := discovery.BuildBatchMetrics(result.Batches, nil, cfg.Discovery.MetricsLimit)

	var specs []charts.Spec
	if opts.NoLLM {
		specs = charts.FallbackCharts(fields)
	} else {
		suggester := charts.NewSuggester(newLLMClient(cfg, logger), logger)
		specs = suggester.Suggest(ctx, fields, stats, metrics)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"charts": specs})
}
