package quickhnsw

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Config holds the optional index settings
type Config struct {
	EfConstruction   int
	QuantBits        int
	Prefetch         bool
	PrefetchDistance int
	Seed             int64
	Logger           *zerolog.Logger
	MetricsEnabled   bool
}

func defaultConfig() *Config {
	return &Config{
		QuantBits:      8,
		MetricsEnabled: true,
	}
}

// Option represents an index configuration option
type Option func(*Config) error

// WithQuantBits sets the width of the inline quantized codes
func WithQuantBits(bits int) Option {
	return func(c *Config) error {
		if bits != 4 && bits != 8 {
			return fmt.Errorf("%w: quantization bits must be 4 or 8, got %d", ErrInvalidArgument, bits)
		}
		c.QuantBits = bits
		return nil
	}
}

// WithPrefetch enables touching neighbor codes distance slots ahead during
// search. A non-positive distance selects the default of 2.
func WithPrefetch(distance int) Option {
	return func(c *Config) error {
		c.Prefetch = true
		c.PrefetchDistance = distance
		return nil
	}
}

// WithEfConstruction sets the candidate list size used while inserting
func WithEfConstruction(ef int) Option {
	return func(c *Config) error {
		if ef <= 0 {
			return fmt.Errorf("%w: ef construction must be positive, got %d", ErrInvalidArgument, ef)
		}
		c.EfConstruction = ef
		return nil
	}
}

// WithSeed fixes the level generator seed for reproducible graphs
func WithSeed(seed int64) Option {
	return func(c *Config) error {
		c.Seed = seed
		return nil
	}
}

// WithLogger routes index logs to logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = &logger
		return nil
	}
}

// WithMetrics enables or disables metrics collection
func WithMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.MetricsEnabled = enabled
		return nil
	}
}
