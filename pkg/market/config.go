package market

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/najdi123/currency-sub003/pkg/confkit"
)

// Config describes the upstream providers available to the application.
type Config struct {
	Default   string                     `yaml:"default"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents configuration for a single upstream provider.
type ProviderConfig struct {
	Type string `yaml:"type"`

	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	MinIntervalRaw string        `yaml:"min_interval"`
	MinInterval    time.Duration `yaml:"-"`
	TimeoutRaw     string        `yaml:"timeout"`
	Timeout        time.Duration `yaml:"-"`
	MaxRetries     *int          `yaml:"max_retries"`
	BaseDelayRaw   string        `yaml:"base_delay"`
	BaseDelay      time.Duration `yaml:"-"`
	CapDelayRaw    string        `yaml:"cap_delay"`
	CapDelay       time.Duration `yaml:"-"`

	PageSize int `yaml:"page_size"`
	MaxPages int `yaml:"max_pages"`

	// Endpoints maps a category to the upstream path serving it.
	Endpoints map[Category]string `yaml:"endpoints"`
}

// Retries returns the configured retry budget, or fallback when unset.
func (p *ProviderConfig) Retries(fallback int) int {
	if p == nil || p.MaxRetries == nil {
		return fallback
	}
	return *p.MaxRetries
}

// ProviderBuilder constructs a Provider from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig) (Provider, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider registers a provider constructor under typeName.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupProviderBuilder(typeName string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	builder, ok := providerRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.MinIntervalRaw = strings.TrimSpace(os.ExpandEnv(p.MinIntervalRaw))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
	p.BaseDelayRaw = strings.TrimSpace(os.ExpandEnv(p.BaseDelayRaw))
	p.CapDelayRaw = strings.TrimSpace(os.ExpandEnv(p.CapDelayRaw))
	for cat, path := range p.Endpoints {
		p.Endpoints[cat] = strings.TrimSpace(os.ExpandEnv(path))
	}
}

func (p *ProviderConfig) parseDurations(name string) error {
	fields := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"min_interval", p.MinIntervalRaw, &p.MinInterval},
		{"timeout", p.TimeoutRaw, &p.Timeout},
		{"base_delay", p.BaseDelayRaw, &p.BaseDelay},
		{"cap_delay", p.CapDelayRaw, &p.CapDelay},
	}
	for _, f := range fields {
		d, err := confkit.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("market provider %s: invalid %s: %w", name, f.key, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("market config: providers cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Providers[c.Default]; !ok {
			return fmt.Errorf("market config: default provider %q not defined", c.Default)
		}
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("market config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("market config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("market config: provider %s must specify type", name)
	}
	if _, ok := lookupProviderBuilder(p.Type); !ok {
		return fmt.Errorf("market config: provider %s has unsupported type %q", name, p.Type)
	}
	if p.MaxRetries != nil && *p.MaxRetries < 0 {
		return fmt.Errorf("market config: provider %s max_retries cannot be negative", name)
	}
	if p.PageSize < 0 || p.MaxPages < 0 {
		return fmt.Errorf("market config: provider %s page_size and max_pages cannot be negative", name)
	}
	for cat := range p.Endpoints {
		if !cat.Valid() {
			return fmt.Errorf("market config: provider %s has endpoint for unknown category %q", name, cat)
		}
	}
	return nil
}

// BuildProviders instantiates providers according to configuration.
func (c *Config) BuildProviders() (map[string]Provider, error) {
	result := make(map[string]Provider, len(c.Providers))
	for name, providerCfg := range c.Providers {
		builder, ok := lookupProviderBuilder(providerCfg.Type)
		if !ok {
			return nil, fmt.Errorf("market provider %s: unsupported type %q", name, providerCfg.Type)
		}
		provider, err := builder(name, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("market provider %s: %w", name, err)
		}
		result[name] = provider
	}
	return result, nil
}

// BuildDefault builds every provider and returns the default one. With no
// explicit default, a single configured provider is used.
func (c *Config) BuildDefault() (Provider, error) {
	providers, err := c.BuildProviders()
	if err != nil {
		return nil, err
	}
	name := c.Default
	if name == "" {
		if len(providers) != 1 {
			return nil, fmt.Errorf("market config: default provider required with %d providers", len(providers))
		}
		for n := range providers {
			name = n
		}
	}
	return providers[name], nil
}
