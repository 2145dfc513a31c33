package config

import "time"

// Default configuration values.
const (
	DefaultTemplatesDir = "templates"
	DefaultLLMBaseURL   = "https://api.openai.com/v1"
	DefaultLLMModel     = "gpt-4o-mini"
	DefaultLLMTimeout   = 120 * time.Second
	DefaultServerAddr   = ":8080"
	DefaultBucketCount  = 10
)

// ApplyDefaults fills unset fields with defaults.
func (c *ProjectConfig) ApplyDefaults() {
	if c.TemplatesDir == "" {
		c.TemplatesDir = DefaultTemplatesDir
	}
	if c.LLM == nil {
		c.LLM = &LLMConfig{}
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultLLMBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultLLMModel
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultLLMTimeout
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Discovery == nil {
		c.Discovery = &DiscoveryConfig{}
	}
	if c.Discovery.BucketCount == 0 {
		c.Discovery.BucketCount = DefaultBucketCount
	}
}
