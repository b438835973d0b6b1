// Package config loads and validates the run configuration for the
// synthesis pipeline. Files are YAML; structural validation runs against
// an embedded JSON schema before semantic checks.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/c360/semlattice/errors"
)

// Defaults applied by Load when a field is absent.
const (
	DefaultBlockSize    = 400
	DefaultStride       = 200
	DefaultMomentum     = 0.3
	DefaultMinSize      = 10
	DefaultMinRatio     = 0.2
	DefaultTrialBudget  = 500
	DefaultMaxDepth     = 5
	DefaultMinConsensus = 0.5
	DefaultWorkers      = 4
	DefaultSeed         = 1
	DefaultMetricsPort  = 9090
)

// RansacConfig tunes layer discovery.
type RansacConfig struct {
	MinSize     int     `yaml:"min_size" json:"min_size"`
	MinRatio    float64 `yaml:"min_ratio" json:"min_ratio"`
	TrialBudget int     `yaml:"trial_budget" json:"trial_budget"`
}

// HenselConfig tunes precision lifting.
type HenselConfig struct {
	MaxDepth     int     `yaml:"max_depth" json:"max_depth"`
	MinConsensus float64 `yaml:"min_consensus" json:"min_consensus"`
}

// SourceConfig points at the NATS stream supplying text blocks. An empty
// URL means blocks arrive programmatically instead.
type SourceConfig struct {
	URL       string  `yaml:"url" json:"url"`
	Subject   string  `yaml:"subject" json:"subject"`
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
}

// MetricsConfig controls the scrape endpoint.
type MetricsConfig struct {
	Port int    `yaml:"port" json:"port"`
	Path string `yaml:"path" json:"path"`
}

// Config is the complete run configuration.
type Config struct {
	Primes    []int64       `yaml:"primes" json:"primes"`
	BlockSize int           `yaml:"block_size" json:"block_size"`
	Stride    int           `yaml:"stride" json:"stride"`
	Momentum  float64       `yaml:"momentum" json:"momentum"`
	Ransac    RansacConfig  `yaml:"ransac" json:"ransac"`
	Hensel    HenselConfig  `yaml:"hensel" json:"hensel"`
	Workers   int           `yaml:"workers" json:"workers"`
	Seed      int64         `yaml:"seed" json:"seed"`
	Source    SourceConfig  `yaml:"source" json:"source"`
	Metrics   MetricsConfig `yaml:"metrics" json:"metrics"`
}

// Default returns a Config carrying every default.
func Default() *Config {
	return &Config{
		Primes:    []int64{5},
		BlockSize: DefaultBlockSize,
		Stride:    DefaultStride,
		Momentum:  DefaultMomentum,
		Ransac: RansacConfig{
			MinSize:     DefaultMinSize,
			MinRatio:    DefaultMinRatio,
			TrialBudget: DefaultTrialBudget,
		},
		Hensel: HenselConfig{
			MaxDepth:     DefaultMaxDepth,
			MinConsensus: DefaultMinConsensus,
		},
		Workers: DefaultWorkers,
		Seed:    DefaultSeed,
		Metrics: MetricsConfig{
			Port: DefaultMetricsPort,
			Path: "/metrics",
		},
	}
}

// Load reads a YAML config file, validates it structurally and
// semantically, and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
	}
	return Parse(data)
}

// Parse validates and decodes raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Config", "Parse", "decode yaml")
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Primes) == 0 {
		c.Primes = []int64{5}
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.Stride == 0 {
		c.Stride = c.BlockSize / 2
	}
	if c.Ransac.MinSize == 0 {
		c.Ransac.MinSize = DefaultMinSize
	}
	if c.Ransac.MinRatio == 0 {
		c.Ransac.MinRatio = DefaultMinRatio
	}
	if c.Ransac.TrialBudget == 0 {
		c.Ransac.TrialBudget = DefaultTrialBudget
	}
	if c.Hensel.MaxDepth == 0 {
		c.Hensel.MaxDepth = DefaultMaxDepth
	}
	if c.Hensel.MinConsensus == 0 {
		c.Hensel.MinConsensus = DefaultMinConsensus
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if len(c.Primes) == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check primes")
	}
	for _, p := range c.Primes {
		if !isPrime(p) {
			return errors.WrapFatal(
				fmt.Errorf("%w: %d is not prime", errors.ErrInvalidConfig, p),
				"Config", "Validate", "check primes")
		}
	}
	seen := map[int64]struct{}{}
	for _, p := range c.Primes {
		if _, dup := seen[p]; dup {
			return errors.WrapFatal(
				fmt.Errorf("%w: duplicate prime %d", errors.ErrInvalidConfig, p),
				"Config", "Validate", "check primes")
		}
		seen[p] = struct{}{}
	}
	if c.Momentum < 0 || c.Momentum > 1 {
		return errors.WrapFatal(
			fmt.Errorf("%w: momentum %v outside [0,1]", errors.ErrInvalidConfig, c.Momentum),
			"Config", "Validate", "check momentum")
	}
	if c.Stride <= 0 || c.Stride > c.BlockSize {
		return errors.WrapFatal(
			fmt.Errorf("%w: stride %d must be in (0, block_size]", errors.ErrInvalidConfig, c.Stride),
			"Config", "Validate", "check stride")
	}
	if c.Ransac.MinRatio <= 0 || c.Ransac.MinRatio > 1 {
		return errors.WrapFatal(
			fmt.Errorf("%w: ransac min_ratio %v outside (0,1]", errors.ErrInvalidConfig, c.Ransac.MinRatio),
			"Config", "Validate", "check ransac")
	}
	if c.Hensel.MinConsensus <= 0 || c.Hensel.MinConsensus > 1 {
		return errors.WrapFatal(
			fmt.Errorf("%w: hensel min_consensus %v outside (0,1]", errors.ErrInvalidConfig, c.Hensel.MinConsensus),
			"Config", "Validate", "check hensel")
	}
	if c.Hensel.MaxDepth < 1 {
		return errors.WrapFatal(
			fmt.Errorf("%w: hensel max_depth %d must be positive", errors.ErrInvalidConfig, c.Hensel.MaxDepth),
			"Config", "Validate", "check hensel")
	}
	if c.Workers < 1 {
		return errors.WrapFatal(
			fmt.Errorf("%w: workers %d must be positive", errors.ErrInvalidConfig, c.Workers),
			"Config", "Validate", "check workers")
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "SafeConfig", "Update", "validate config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

func isPrime(n int64) bool {
	if n < 2 {
		return false
	}
	for d := int64(2); d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}
