package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
	"github.com/PentesterFlow/OpenSQLi/internal/payloads"
)

// Config holds all scanner configuration.
type Config struct {
	// Spec is the URL or file path of the API description
	Spec string `json:"spec" yaml:"spec"`

	// Target overrides the base URL derived from the description
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Number of concurrent workers
	Workers int `json:"workers" yaml:"workers"`

	// Per-request timeout
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Retries on transport failure
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Base of the linear retry backoff
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Fixed gap before every probe, on top of the rate limit; zero disables
	ProbeDelay time.Duration `json:"probe_delay,omitempty" yaml:"probe_delay,omitempty"`

	// Request body flattening depth
	FlattenDepth int `json:"flatten_depth" yaml:"flatten_depth"`

	// Probe operations marked deprecated too
	IncludeDeprecated bool `json:"include_deprecated" yaml:"include_deprecated"`

	// Response excerpt cap in bytes
	BodyLimit int64 `json:"body_limit" yaml:"body_limit"`

	// Relative body length delta that makes boolean legs "different"
	BooleanDelta float64 `json:"boolean_delta" yaml:"boolean_delta"`

	// Jitter allowance for time-based checks
	TimeTolerance time.Duration `json:"time_tolerance" yaml:"time_tolerance"`

	// Techniques to run; empty means all
	Techniques []string `json:"techniques,omitempty" yaml:"techniques,omitempty"`

	// Extra payload file (YAML), merged into the built-in catalog
	PayloadFile string `json:"payload_file,omitempty" yaml:"payload_file,omitempty"`

	// Custom headers attached verbatim to every probe (auth tokens etc.)
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// User agent for all requests
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// Skip TLS certificate verification
	SkipTLSVerify bool `json:"skip_tls_verify" yaml:"skip_tls_verify"`

	// Upstream proxy URL (http://, https:// or socks5://)
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// Output configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// History database path; empty disables history
	HistoryPath string `json:"history_path,omitempty" yaml:"history_path,omitempty"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// RateLimitConfig holds rate limiter settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// OutputConfig holds output settings.
type OutputConfig struct {
	Format   string `json:"format" yaml:"format"` // json or text
	Pretty   bool   `json:"pretty" yaml:"pretty"`
	Stream   bool   `json:"stream" yaml:"stream"`
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:      10,
		Timeout:      10 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             5,
		},
		FlattenDepth:  5,
		BodyLimit:     8 * 1024,
		BooleanDelta:  0.10,
		TimeTolerance: time.Second,
		Output: OutputConfig{
			Format: "json",
			Pretty: true,
		},
	}
}

// TurboConfig returns a configuration tuned for speed: more workers, no
// time-based probes (the slow technique), higher request rate.
func TurboConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workers = 50
	cfg.Timeout = 5 * time.Second
	cfg.MaxRetries = 1
	cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 100, Burst: 20}
	cfg.Techniques = []string{
		string(payloads.TechniqueError),
		string(payloads.TechniqueBoolean),
		string(payloads.TechniqueUnion),
	}
	cfg.Output.Pretty = false
	cfg.Output.Stream = true
	return cfg
}

// ThoroughConfig returns a configuration that favors coverage over speed.
func ThoroughConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workers = 5
	cfg.Timeout = 20 * time.Second
	cfg.MaxRetries = 3
	cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 5, Burst: 2}
	cfg.FlattenDepth = 8
	cfg.IncludeDeprecated = true
	return cfg
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Spec == "" {
		return scanerrors.NewConfigError("API description (spec) is required")
	}

	if c.Workers < 1 {
		return scanerrors.NewConfigError("workers must be at least 1")
	}

	if c.Timeout <= 0 {
		return scanerrors.NewConfigError("timeout must be positive")
	}

	if c.MaxRetries < 0 {
		return scanerrors.NewConfigError("max retries cannot be negative")
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return scanerrors.NewConfigError("rate limit cannot be negative")
	}

	if c.ProbeDelay < 0 {
		return scanerrors.NewConfigError("probe delay cannot be negative")
	}

	if c.FlattenDepth < 1 {
		return scanerrors.NewConfigError("flatten depth must be at least 1")
	}

	if c.BooleanDelta < 0 || c.BooleanDelta >= 1 {
		return scanerrors.NewConfigError("boolean delta must be in [0, 1)")
	}

	for _, t := range c.Techniques {
		switch payloads.Technique(t) {
		case payloads.TechniqueError, payloads.TechniqueBoolean,
			payloads.TechniqueTime, payloads.TechniqueUnion:
		default:
			return scanerrors.NewConfigError(fmt.Sprintf("unknown technique %q", t))
		}
	}

	switch c.Output.Format {
	case "", "json", "text":
	default:
		return scanerrors.NewConfigError(fmt.Sprintf("unknown output format %q", c.Output.Format))
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone) //nolint:errcheck
	return clone
}

// techniqueEnabled reports whether a technique should run.
func (c *Config) techniqueEnabled(t payloads.Technique) bool {
	if len(c.Techniques) == 0 {
		return true
	}
	for _, name := range c.Techniques {
		if payloads.Technique(name) == t {
			return true
		}
	}
	return false
}
