package commands

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/api"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the contract build, discovery, and chart suggestion endpoints over
HTTP. Shuts down gracefully on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, root, err := loadProjectWithFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if err := requireTarget(cfg); err != nil {
				return err
			}
			// Handlers resolve template ids against templates_dir directly,
			// so anchor a relative path at the project root here.
			if !filepath.IsAbs(cfg.TemplatesDir) {
				cfg.TemplatesDir = filepath.Join(root, cfg.TemplatesDir)
			}

			logger := newLogger(cmd)
			client := newLLMClient(cfg, logger)
			srv := api.NewServer(api.Config{
				Project: cfg,
				Builder: contract.NewBuilder(contract.BuilderConfig{
					Client: client,
					Model:  client.Model(),
					Logger: logger,
				}),
				Client: client,
				Logger: logger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
