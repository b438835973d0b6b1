package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/c360/semlattice/errors"
)

func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("primes: [7]\n"))
	require.NoError(t, err)

	assert.Equal(t, []int64{7}, cfg.Primes)
	assert.Equal(t, DefaultBlockSize, cfg.BlockSize)
	assert.Equal(t, DefaultBlockSize/2, cfg.Stride)
	assert.Equal(t, DefaultMinSize, cfg.Ransac.MinSize)
	assert.Equal(t, DefaultMaxDepth, cfg.Hensel.MaxDepth)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestParseFullDocument(t *testing.T) {
	doc := `
primes: [3, 5, 7]
block_size: 200
stride: 100
momentum: 0.5
ransac:
  min_size: 8
  min_ratio: 0.25
  trial_budget: 300
hensel:
  max_depth: 4
  min_consensus: 0.6
workers: 2
seed: 99
source:
  url: nats://localhost:4222
  subject: semlattice.blocks
  rate_limit: 10
metrics:
  port: 9191
  path: /metrics
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 5, 7}, cfg.Primes)
	assert.Equal(t, 200, cfg.BlockSize)
	assert.Equal(t, 100, cfg.Stride)
	assert.InDelta(t, 0.5, cfg.Momentum, 1e-12)
	assert.Equal(t, 8, cfg.Ransac.MinSize)
	assert.Equal(t, 300, cfg.Ransac.TrialBudget)
	assert.Equal(t, 4, cfg.Hensel.MaxDepth)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.Equal(t, "nats://localhost:4222", cfg.Source.URL)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("primes: [5]\nbogus: true\n"))
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrInvalidConfig))
	assert.True(t, slerrors.IsFatal(err))
}

func TestParseRejectsSchemaViolation(t *testing.T) {
	// Momentum above 1 fails the schema before semantic checks.
	_, err := Parse([]byte("primes: [5]\nmomentum: 1.5\n"))
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrInvalidConfig))
}

func TestValidateSemantics(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-prime base", func(c *Config) { c.Primes = []int64{6} }},
		{"duplicate prime", func(c *Config) { c.Primes = []int64{5, 5} }},
		{"no primes", func(c *Config) { c.Primes = nil }},
		{"stride above block size", func(c *Config) { c.Stride = c.BlockSize + 1 }},
		{"zero min_ratio", func(c *Config) { c.Ransac.MinRatio = 0 }},
		{"consensus above 1", func(c *Config) { c.Hensel.MinConsensus = 1.5 }},
		{"zero max_depth", func(c *Config) { c.Hensel.MaxDepth = 0 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, slerrors.IsFatal(err))
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "semlattice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("primes: [31]\nseed: 7\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{31}, cfg.Primes)
	assert.Equal(t, int64(7), cfg.Seed)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, slerrors.IsFatal(err))
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	got := sc.Get()
	require.NotNil(t, got)
	assert.Equal(t, []int64{5}, got.Primes)

	// Mutating the copy does not touch the held config.
	got.Primes = []int64{3}
	assert.Equal(t, []int64{5}, sc.Get().Primes)

	next := Default()
	next.Primes = []int64{7, 11}
	require.NoError(t, sc.Update(next))
	assert.Equal(t, []int64{7, 11}, sc.Get().Primes)

	bad := Default()
	bad.Momentum = 2.0
	require.Error(t, sc.Update(bad))
	assert.Equal(t, []int64{7, 11}, sc.Get().Primes)

	require.Error(t, sc.Update(nil))
}
