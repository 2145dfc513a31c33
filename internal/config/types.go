// Package config provides shared project configuration for the report
// pipeline. It is decoupled from CLI concerns so the HTTP server and other
// tools can load project configuration the same way.
package config

import (
	"fmt"
	"time"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
)

// LLMConfig holds the chat-completion endpoint configuration. The API key
// normally comes from the environment (NEURAREPORT_LLM__API_KEY), not from
// the project file.
type LLMConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// ServerConfig holds the HTTP API listener configuration.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// DiscoveryConfig holds tunables for the batch discovery response shape.
type DiscoveryConfig struct {
	// MetricsLimit caps how many flattened metric rows a discovery response
	// carries. 0 means unlimited.
	MetricsLimit int `koanf:"metrics_limit"`
	// BucketCount is the number of equal-width bins for numeric resampling.
	BucketCount int `koanf:"bucket_count"`
}

// ProjectConfig is the root of neurareport.yaml.
type ProjectConfig struct {
	// TemplatesDir holds one subdirectory per report template; contract
	// artifacts are persisted next to their template.
	TemplatesDir string           `koanf:"templates_dir"`
	Target       *dbx.Target      `koanf:"target"`
	LLM          *LLMConfig       `koanf:"llm"`
	Server       *ServerConfig    `koanf:"server"`
	Discovery    *DiscoveryConfig `koanf:"discovery"`
}

// Validate checks the parts of the configuration every command depends on.
// Command-specific requirements (a reachable target, an API key) are checked
// by the commands that need them.
func (c *ProjectConfig) Validate() error {
	if c.Target != nil {
		switch c.Target.Dialect {
		case "", dbx.DialectSQLite, dbx.DialectPostgres:
		default:
			return fmt.Errorf("unsupported target dialect %q", c.Target.Dialect)
		}
	}
	return nil
}
