package config

import (
	"fmt"
	"time"
)

// Provider adapter types. Any other type is treated as OpenAI-compatible.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one upstream. APIVersion is sent as the
// anthropic-version header for Anthropic providers.
type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// Validate checks every provider has a base URL and sane limits.
func (p *ProvidersConfig) Validate() error {
	for name, cfg := range p.Providers {
		if cfg.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", name)
		}
		if cfg.Timeout < 0 || cfg.MaxConcurrent < 0 {
			return fmt.Errorf("provider %s: timeout and max_concurrent must not be negative", name)
		}
	}
	return nil
}
