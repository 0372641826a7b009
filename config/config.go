// Package config loads the two configuration files the tool reads:
// providers.yaml (model endpoints and sampling defaults) and settings.yaml
// (run-wide knobs: output location, cost table, budget).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sampling defaults applied when a provider spec leaves them unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// ModelPricing is the cost per 1K tokens for one model.
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input" json:"input"`
	OutputPer1K float64 `yaml:"output" json:"output"`
}

// ProviderSpec describes one provider entry in providers.yaml.
type ProviderSpec struct {
	// Type selects the driver implementation: openai, anthropic, mock.
	Type string `yaml:"type"`

	// DefaultModel is used when a run does not name a model explicitly.
	DefaultModel string `yaml:"default_model"`

	// BaseURL overrides the provider's API endpoint (mock servers, proxies).
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key. When
	// empty the driver falls back to its conventional variable.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Sampling defaults for primary calls. Probe calls override temperature.
	Temperature float32 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Seed        *int    `yaml:"seed,omitempty"`

	// RequestsPerMinute enables client-side rate limiting when positive.
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty"`
}

// Settings holds run-wide configuration from settings.yaml.
type Settings struct {
	OutputDir       string                  `yaml:"output_dir"`
	BudgetUSD       float64                 `yaml:"budget_usd"`
	CostPer1KTokens map[string]ModelPricing `yaml:"cost_per_1k_tokens"`
}

// Config combines both configuration files.
type Config struct {
	Providers map[string]ProviderSpec
	Settings  Settings

	// Dir is the directory the files were loaded from.
	Dir string
}

// Load reads providers.yaml and settings.yaml from dir and applies defaults.
func Load(dir string) (*Config, error) {
	providers, err := LoadProviders(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return nil, err
	}
	settings, err := LoadSettings(filepath.Join(dir, "settings.yaml"))
	if err != nil {
		return nil, err
	}
	return &Config{Providers: providers, Settings: settings, Dir: dir}, nil
}

// LoadProviders reads and validates the provider table.
func LoadProviders(path string) (map[string]ProviderSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var providers map[string]ProviderSpec
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	for name, spec := range providers {
		if spec.Type == "" {
			return nil, fmt.Errorf("provider %q: missing required field: type", name)
		}
		if spec.Temperature == 0 {
			spec.Temperature = DefaultTemperature
		}
		if spec.MaxTokens == 0 {
			spec.MaxTokens = DefaultMaxTokens
		}
		providers[name] = spec
	}
	return providers, nil
}

// LoadSettings reads the run-wide settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if settings.OutputDir == "" {
		settings.OutputDir = "outputs"
	}
	return settings, nil
}

// Provider returns the named provider spec.
func (c *Config) Provider(name string) (ProviderSpec, bool) {
	spec, ok := c.Providers[name]
	return spec, ok
}

// PricingFor resolves the cost table entry for a model, zero when unpriced.
func (s Settings) PricingFor(model string) ModelPricing {
	return s.CostPer1KTokens[model]
}

// ParseModelSpec splits a "provider/model" argument. The model part may
// itself contain slashes (some hosted model ids do).
func ParseModelSpec(spec string) (provider, model string, err error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model spec %q (use provider/model)", spec)
	}
	return parts[0], parts[1], nil
}
