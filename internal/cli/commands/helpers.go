// Package commands implements the neurareport subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/config"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/llm"
)

// loadProject locates the project root from the working directory and loads
// its configuration. A project file is required for every command except
// version.
func loadProject() (*config.ProjectConfig, string, error) {
	return loadProjectWithFlags(nil)
}

// loadProjectWithFlags additionally layers explicitly set command flags over
// the file and environment configuration.
func loadProjectWithFlags(flags *pflag.FlagSet) (*config.ProjectConfig, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("resolving working directory: %w", err)
	}
	root := config.FindProjectRoot(cwd)
	if root == "" {
		return nil, "", fmt.Errorf("no %s found in %s or any parent directory", config.ConfigFileName, cwd)
	}
	cfg, err := config.LoadFromDirWithFlags(root, flags)
	if err != nil {
		return nil, "", err
	}
	if cfg == nil {
		return nil, "", fmt.Errorf("no %s found in %s", config.ConfigFileName, root)
	}
	return cfg, root, nil
}

// templateDir resolves a template id against the project's templates
// directory. Relative templates_dir is anchored at the project root.
func templateDir(cfg *config.ProjectConfig, root, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid template id %q", id)
	}
	dir := cfg.TemplatesDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Join(dir, id), nil
}

// newLogger builds the command logger. Verbose enables debug level.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// newLLMClient builds the chat-completion client from project configuration.
func newLLMClient(cfg *config.ProjectConfig, logger *slog.Logger) *llm.OpenAIClient {
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Logger:  logger,
	})
}

func requireTarget(cfg *config.ProjectConfig) error {
	if cfg.Target == nil || cfg.Target.DSN == "" {
		return fmt.Errorf("no target database configured; set target.dialect and target.dsn in %s", config.ConfigFileName)
	}
	return nil
}
