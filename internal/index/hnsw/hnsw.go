package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xDarkicex/quickhnsw/internal/obs"
	"github.com/xDarkicex/quickhnsw/internal/quant"
)

const (
	// MaxLevel caps the layer a node can be assigned to
	MaxLevel = 32

	// NoNode marks the absent entry point of an empty index
	NoNode = ^uint32(0)

	DefaultEfConstruction   = 200
	DefaultQuantBits        = 8
	DefaultPrefetchDistance = 2
)

// SearchResult is one hit: the stored label and its squared L2 distance
type SearchResult struct {
	Label    uint64
	Distance float32
}

// Config holds HNSW configuration parameters
type Config struct {
	Dimension      int
	MaxElements    int // Hard cap on the number of nodes
	M              int // Maximum links per node above layer 0; layer 0 allows 2*M
	EfConstruction int // Candidate list size during insertion (0 selects 200)

	QuantBits        int  // 4 or 8; anything else selects 8
	EnablePrefetch   bool // Touch upcoming neighbor codes during traversal
	PrefetchDistance int  // How far ahead to touch (0 selects 2)

	RandomSeed int64 // Level sampling seed; 0 seeds from the clock

	Logger  *zerolog.Logger
	Metrics *obs.Metrics
}

// Index implements the HNSW algorithm with inline scalar-quantized codes.
// Nodes live in an append-only arena and reference each other by position.
type Index struct {
	mu        sync.RWMutex
	config    Config
	m0        int
	levelMult float64

	nodes      []Node
	vectors    []float32 // Flat full-precision storage, node i at [i*dim, (i+1)*dim)
	quantizer  *quant.ScalarQuantizer
	entryPoint uint32
	maxLevel   int

	levelGenerator *rand.Rand
	scratch        sync.Pool
	logger         zerolog.Logger
	metrics        *obs.Metrics
	closed         bool

	// Rebuild state, guarded by mu
	rebuilding   bool
	rebuildStats RebuildStats
	rebuildDone  chan struct{}
	workers      sync.WaitGroup
}

// NewHNSW creates a new HNSW index
func NewHNSW(config *Config) (*Index, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidArgument)
	}
	cfg := *config
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid HNSW config: %w", err)
	}

	quantizer, err := quant.NewScalarQuantizer(cfg.Dimension, cfg.QuantBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "hnsw").Logger()
	}

	initial := min(cfg.MaxElements, 1024)
	index := &Index{
		config:         cfg,
		m0:             2 * cfg.M,
		levelMult:      1.0 / math.Log(float64(cfg.M)),
		nodes:          make([]Node, 0, initial),
		vectors:        make([]float32, 0, initial*cfg.Dimension),
		quantizer:      quantizer,
		entryPoint:     NoNode,
		levelGenerator: rand.New(rand.NewSource(seed)),
		logger:         logger,
		metrics:        cfg.Metrics,
	}
	index.scratch.New = func() any { return newSearchScratch() }

	return index, nil
}

func (c *Config) applyDefaults() {
	if c.EfConstruction == 0 {
		c.EfConstruction = DefaultEfConstruction
	}
	if c.QuantBits != 4 && c.QuantBits != 8 {
		c.QuantBits = DefaultQuantBits
	}
	if c.PrefetchDistance <= 0 {
		c.PrefetchDistance = DefaultPrefetchDistance
	}
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidArgument)
	}
	if c.MaxElements <= 0 {
		return fmt.Errorf("%w: max elements must be positive", ErrInvalidArgument)
	}
	if c.M <= 0 {
		return fmt.Errorf("%w: M must be positive", ErrInvalidArgument)
	}
	if c.EfConstruction < 0 {
		return fmt.Errorf("%w: EfConstruction must not be negative", ErrInvalidArgument)
	}
	if uint64(c.MaxElements) >= uint64(NoNode) {
		return fmt.Errorf("%w: max elements %d exceeds 32-bit node ids", ErrInvalidArgument, c.MaxElements)
	}
	if c.MaxElements > math.MaxInt/4/c.Dimension {
		return fmt.Errorf("%w: %d vectors of dimension %d", ErrAllocation, c.MaxElements, c.Dimension)
	}
	return nil
}

// Len returns the number of vectors in the index
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Capacity returns the configured maximum number of vectors
func (h *Index) Capacity() int {
	return h.config.MaxElements
}

// Dimension returns the vector dimension
func (h *Index) Dimension() int {
	return h.config.Dimension
}

// Config returns a copy of the effective configuration
func (h *Index) Config() Config {
	return h.config
}

// Close waits for any background rebuild to finish and releases the graph.
// Closing twice is a no-op.
func (h *Index) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.workers.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nodes = nil
	h.vectors = nil
	h.entryPoint = NoNode
	h.maxLevel = 0
	h.metrics.SetGraphShape(0, 0)
	h.logger.Debug().Msg("index closed")

	return nil
}

// generateLevel samples floor(-ln(U) * levelMult) for U in (0, 1]
func (h *Index) generateLevel() int {
	u := 1.0 - h.levelGenerator.Float64()
	level := -math.Log(u) * h.levelMult
	// NaN and +Inf (M == 1) also land here
	if !(level < MaxLevel) {
		return MaxLevel
	}
	return int(level)
}
