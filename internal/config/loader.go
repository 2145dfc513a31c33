package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the project config file.
const ConfigFileName = "neurareport.yaml"

// ConfigFileNameAlt is the alternate name of the project config file.
const ConfigFileNameAlt = "neurareport.yml"

// envPrefix scopes the environment overrides. Nesting uses a double
// underscore so key names may contain single underscores, e.g.
// NEURAREPORT_LLM__API_KEY -> llm.api_key.
const envPrefix = "NEURAREPORT_"

// LoadFromDir loads a ProjectConfig from the given directory, looking for
// neurareport.yaml or neurareport.yml, then layering NEURAREPORT_*
// environment overrides on top. Returns nil, nil if no config file is found
// (not an error condition).
func LoadFromDir(dir string) (*ProjectConfig, error) {
	return load(dir, nil)
}

// LoadFromDirWithFlags loads like LoadFromDir, then layers explicitly set
// command-line flags on top (highest priority).
func LoadFromDirWithFlags(dir string, flags *pflag.FlagSet) (*ProjectConfig, error) {
	return load(dir, flags)
}

func load(dir string, flags *pflag.FlagSet) (*ProjectConfig, error) {
	configPath := findConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")

	// Priority, lowest first: defaults, file, env, flags.
	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading %s: %w", configPath, err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKeyTransform(flags)), nil); err != nil {
			return nil, fmt.Errorf("loading flag overrides: %w", err)
		}
	}

	var cfg ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", configPath, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKeyTransform(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// flagKeyTransform maps explicitly set flags onto config keys. The CLI uses
// short flag names; the config keeps them under their sections.
func flagKeyTransform(flags *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if !f.Changed {
			return "", nil
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		switch key {
		case "addr":
			key = "server.addr"
		case "metrics_limit":
			key = "discovery.metrics_limit"
		}
		return key, posflag.FlagVal(flags, f)
	}
}

func defaultsMap() map[string]any {
	return map[string]any{
		"templates_dir":          DefaultTemplatesDir,
		"llm.base_url":           DefaultLLMBaseURL,
		"llm.model":              DefaultLLMModel,
		"server.addr":            DefaultServerAddr,
		"discovery.bucket_count": DefaultBucketCount,
	}
}

// findConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}

// FindProjectRoot walks up from the given directory to find a directory
// containing neurareport.yaml or neurareport.yml.
// Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
