// Package config loads the YAML configuration used by the quickhnsw CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
	"github.com/xDarkicex/quickhnsw/internal/obs"
)

// Environment overrides applied by ApplyEnv
const (
	EnvM              = "QUICKHNSW_M"
	EnvEfConstruction = "QUICKHNSW_EF_CONSTRUCTION"
	EnvEfSearch       = "QUICKHNSW_EF_SEARCH"
	EnvQuantBits      = "QUICKHNSW_QUANT_BITS"
	EnvBatchSize      = "QUICKHNSW_REBUILD_BATCH"
)

// Config is the top-level structure of a configuration file
type Config struct {
	Index    IndexConfig   `yaml:"index"`
	Search   SearchConfig  `yaml:"search"`
	Rebuild  RebuildConfig `yaml:"rebuild"`
	LogLevel string        `yaml:"log_level"`
}

// IndexConfig holds graph construction parameters
type IndexConfig struct {
	Dimension        int   `yaml:"dimension"`
	MaxElements      int   `yaml:"max_elements"`
	M                int   `yaml:"m"`
	EfConstruction   int   `yaml:"ef_construction"`
	QuantBits        int   `yaml:"quant_bits"` // 4 or 8
	Prefetch         bool  `yaml:"prefetch"`
	PrefetchDistance int   `yaml:"prefetch_distance"`
	Seed             int64 `yaml:"seed"` // 0 seeds from the clock
}

// SearchConfig holds query defaults
type SearchConfig struct {
	K  int `yaml:"k"`
	Ef int `yaml:"ef"`
}

// RebuildConfig holds incremental rebuild parameters
type RebuildConfig struct {
	ConnectivityRatio float32 `yaml:"connectivity_ratio"`
	BatchSize         int     `yaml:"batch_size"`
	Background        bool    `yaml:"background"`
}

// Default returns a configuration usable once Dimension is set
func Default() Config {
	return Config{
		Index: IndexConfig{
			MaxElements:      100000,
			M:                16,
			EfConstruction:   hnsw.DefaultEfConstruction,
			QuantBits:        hnsw.DefaultQuantBits,
			PrefetchDistance: hnsw.DefaultPrefetchDistance,
		},
		Search: SearchConfig{
			K:  10,
			Ef: 64,
		},
		Rebuild: RebuildConfig{
			ConnectivityRatio: hnsw.DefaultConnectivityRatio,
			BatchSize:         hnsw.DefaultRebuildBatchSize,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from QUICKHNSW_* environment variables
func (c *Config) ApplyEnv() error {
	overrides := []struct {
		name string
		dst  *int
	}{
		{EnvM, &c.Index.M},
		{EnvEfConstruction, &c.Index.EfConstruction},
		{EnvEfSearch, &c.Search.Ef},
		{EnvQuantBits, &c.Index.QuantBits},
		{EnvBatchSize, &c.Rebuild.BatchSize},
	}

	for _, o := range overrides {
		raw, ok := os.LookupEnv(o.name)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", o.name, raw, err)
		}
		*o.dst = v
	}
	return nil
}

// Validate reports every invalid field
func (c *Config) Validate() error {
	var errs []error

	if c.Index.Dimension <= 0 {
		errs = append(errs, errors.New("index.dimension must be positive"))
	}
	if c.Index.MaxElements <= 0 {
		errs = append(errs, errors.New("index.max_elements must be positive"))
	}
	if c.Index.M <= 0 {
		errs = append(errs, errors.New("index.m must be positive"))
	}
	if c.Index.EfConstruction < 0 {
		errs = append(errs, errors.New("index.ef_construction must not be negative"))
	}
	if c.Index.QuantBits != 4 && c.Index.QuantBits != 8 {
		errs = append(errs, fmt.Errorf("index.quant_bits must be 4 or 8, got %d", c.Index.QuantBits))
	}
	if c.Search.K <= 0 {
		errs = append(errs, errors.New("search.k must be positive"))
	}
	if c.Search.Ef < 0 {
		errs = append(errs, errors.New("search.ef must not be negative"))
	}
	if c.Rebuild.ConnectivityRatio < 0 || c.Rebuild.ConnectivityRatio > 1 {
		errs = append(errs, fmt.Errorf("rebuild.connectivity_ratio must be in [0, 1], got %g", c.Rebuild.ConnectivityRatio))
	}

	return errors.Join(errs...)
}

// Level returns the configured log level
func (c *Config) Level() zerolog.Level {
	return obs.ParseLevel(c.LogLevel)
}

// HNSW converts the index section into an index configuration
func (c *Config) HNSW(logger *zerolog.Logger, metrics *obs.Metrics) *hnsw.Config {
	return &hnsw.Config{
		Dimension:        c.Index.Dimension,
		MaxElements:      c.Index.MaxElements,
		M:                c.Index.M,
		EfConstruction:   c.Index.EfConstruction,
		QuantBits:        c.Index.QuantBits,
		EnablePrefetch:   c.Index.Prefetch,
		PrefetchDistance: c.Index.PrefetchDistance,
		RandomSeed:       c.Index.Seed,
		Logger:           logger,
		Metrics:          metrics,
	}
}

// RebuildOptions converts the rebuild section
func (c *Config) RebuildOptions() hnsw.RebuildConfig {
	return hnsw.RebuildConfig{
		ConnectivityRatio: c.Rebuild.ConnectivityRatio,
		BatchSize:         c.Rebuild.BatchSize,
		Background:        c.Rebuild.Background,
	}
}
