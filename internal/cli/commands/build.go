package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/template"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	Instructions string
	KeyTokens    []string
	Force        bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build <template-id>",
		Short: "Build or load the SQL contract for a template",
		Long: `Build the SQL contract for a template directory.

The contract is cached by input signature: re-running build with unchanged
template, catalog, and instructions loads the persisted artifacts without a
model call. Use --force to rebuild unconditionally.`,
		Example: `  # Build the contract for templates/daily
  neurareport build daily

  # Rebuild with extra instructions
  neurareport build daily --force --instructions "totals exclude scrapped batches"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Instructions, "instructions", "i", "", "Extra build instructions passed to the model")
	cmd.Flags().StringSliceVar(&opts.KeyTokens, "key-tokens", nil, "Tokens that key batches, e.g. header.plant_id")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Rebuild even when the cached contract matches")

	return cmd
}

func runBuild(cmd *cobra.Command, id string, opts *BuildOptions) error {
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
	logger := newLogger(cmd)

	lock, err := contract.AcquireLock(dir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx := cmd.Context()
	db, err := dbx.OpenReadOnly(ctx, *cfg.Target)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	catalog, err := dbx.Catalog(ctx, db, cfg.Target.Dialect)
	if err != nil {
		return err
	}
	dbSig, err := dbx.Signature(ctx, db, cfg.Target.Dialect)
	if err != nil {
		return err
	}
	assets, err := template.LoadAssets(dir, 0)
	if err != nil {
		return err
	}
	tokens := template.SortedTokenNames(assets.Schema)
	logger.Debug("template tokens extracted",
		"count", len(tokens),
		"tokens", strings.Join(tokens, ", "))

	client := newLLMClient(cfg, logger)
	builder := contract.NewBuilder(contract.BuilderConfig{
		Client: client,
		Model:  client.Model(),
		Logger: logger,
	})

	result, err := builder.BuildOrLoad(ctx, contract.BuildInputs{
		TemplateDir:       dir,
		Catalog:           catalog,
		FinalTemplateHTML: assets.HTML,
		PageSummary:       assets.Summary,
		Schema:            assets.Schema,
		UserInstructions:  opts.Instructions,
		DialectHint:       cfg.Target.Dialect,
		DBSignature:       dbSig,
		KeyTokens:         opts.KeyTokens,
		Force:             opts.Force,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Cached {
		fmt.Fprintf(out, "Contract up to date (build %s)\n", result.Meta.BuildID)
	} else {
		fmt.Fprintf(out, "Contract built (build %s)\n", result.Meta.BuildID)
	}
	if result.Validation != nil {
		fmt.Fprintf(out, "Token coverage: %.1f%%\n", result.Validation.TokenCoverage)
		if len(result.Validation.UnknownColumns) > 0 {
			fmt.Fprintf(out, "Advisory unknown columns: %s\n", strings.Join(result.Validation.UnknownColumns, ", "))
		}
	}
	if unresolved := result.Contract.Unresolved(); len(unresolved) > 0 {
		fmt.Fprintf(out, "Unresolved tokens: %s\n", strings.Join(unresolved, ", "))
	}
	fmt.Fprintf(out, "Artifacts: %s\n", result.Artifacts["meta"])
	return nil
}
