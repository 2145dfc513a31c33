package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
)

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	content := `
templates_dir: report_templates
target:
  dialect: sqlite
  dsn: data/source.db
llm:
  model: test-model
discovery:
  metrics_limit: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "report_templates", cfg.TemplatesDir)
	require.NotNil(t, cfg.Target)
	assert.Equal(t, dbx.DialectSQLite, cfg.Target.Dialect)
	assert.Equal(t, "data/source.db", cfg.Target.DSN)

	// Defaults fill what the file leaves out.
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, DefaultLLMBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, DefaultLLMTimeout, cfg.LLM.Timeout)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, 50, cfg.Discovery.MetricsLimit)
	assert.Equal(t, DefaultBucketCount, cfg.Discovery.BucketCount)
}

func TestLoadFromDir_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("llm:\n  model: from-file\n"), 0o644))
	t.Setenv("NEURAREPORT_LLM__API_KEY", "sk-test")
	t.Setenv("NEURAREPORT_LLM__MODEL", "from-env")

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "from-env", cfg.LLM.Model)
}

func TestLoadFromDirWithFlags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("server:\n  addr: \":8080\"\n"), 0o644))

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("addr", "", "")
	require.NoError(t, fs.Parse([]string{"--addr", ":9999"}))

	cfg, err := LoadFromDirWithFlags(dir, fs)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	// An unset flag never clobbers file values.
	fs = pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("addr", "", "")
	cfg, err = LoadFromDirWithFlags(dir, fs)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFromDir_RejectsUnknownDialect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName),
		[]byte("target:\n  dialect: oracle\n  dsn: x\n"), 0o644))

	_, err := LoadFromDir(dir)
	assert.Error(t, err)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileNameAlt), []byte("{}"), 0o644))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, "", FindProjectRoot(t.TempDir()))
}

func TestApplyDefaults_TimeoutZero(t *testing.T) {
	cfg := &ProjectConfig{LLM: &LLMConfig{Timeout: 30 * time.Second}}
	cfg.ApplyDefaults()
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
}
