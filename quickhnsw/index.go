// Package quickhnsw provides an in-memory approximate nearest neighbor index:
// an HNSW graph that traverses layer 0 over inline 4 or 8-bit scalar codes and
// reranks with exact squared L2 distance.
package quickhnsw

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
	"github.com/xDarkicex/quickhnsw/internal/obs"
)

// Index is safe for concurrent use. Searches share a read lock; inserts,
// rebuild batches and saves take the write lock.
type Index struct {
	inner   *hnsw.Index
	metrics *obs.Metrics
	health  *obs.HealthChecker
}

// New creates an empty index for vectors of the given dimension holding at
// most maxElements vectors, with m links per node on upper layers and 2*m on
// layer 0.
func New(dimension, maxElements, m int, opts ...Option) (*Index, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, wrap("new", err)
	}

	hc := cfg.hnswConfig()
	hc.Dimension = dimension
	hc.MaxElements = maxElements
	hc.M = m

	inner, err := hnsw.NewHNSW(hc)
	if err != nil {
		return nil, wrap("new", err)
	}
	return newIndex(inner, hc.Metrics), nil
}

// Load reads an index written by Save. Options supply the settings the file
// does not carry: prefetch, seed, logger and metrics.
func Load(path string, opts ...Option) (*Index, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, wrap("load", err)
	}

	hc := cfg.hnswConfig()
	inner, err := hnsw.Load(path, hc)
	if err != nil {
		return nil, wrap("load", err)
	}
	return newIndex(inner, hc.Metrics), nil
}

// ReadFrom decodes an index from a stream produced by WriteTo
func ReadFrom(r io.Reader, opts ...Option) (*Index, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, wrap("read", err)
	}

	hc := cfg.hnswConfig()
	inner, err := hnsw.ReadFrom(r, hc)
	if err != nil {
		return nil, wrap("read", err)
	}
	return newIndex(inner, hc.Metrics), nil
}

func applyOptions(opts []Option) (*Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return cfg, nil
}

func (c *Config) hnswConfig() *hnsw.Config {
	hc := &hnsw.Config{
		EfConstruction:   c.EfConstruction,
		QuantBits:        c.QuantBits,
		EnablePrefetch:   c.Prefetch,
		PrefetchDistance: c.PrefetchDistance,
		RandomSeed:       c.Seed,
		Logger:           c.Logger,
	}
	if c.MetricsEnabled {
		hc.Metrics = obs.NewMetrics()
	}
	return hc
}

func newIndex(inner *hnsw.Index, metrics *obs.Metrics) *Index {
	return &Index{
		inner:   inner,
		metrics: metrics,
		health:  obs.NewHealthChecker(inner),
	}
}

// Insert adds a copy of vector under label. Labels need not be unique.
func (idx *Index) Insert(ctx context.Context, vector []float32, label uint64) error {
	return wrap("insert", idx.inner.Insert(ctx, vector, label))
}

// Search returns up to k results in ascending squared L2 distance.
// ef below k is raised to k. An empty index returns no results.
func (idx *Index) Search(ctx context.Context, query []float32, k, ef int) ([]SearchResult, error) {
	results, err := idx.inner.Search(ctx, query, k, ef)
	if err != nil {
		return nil, wrap("search", err)
	}
	return results, nil
}

// SearchBatch answers every query concurrently; results[i] answers queries[i]
func (idx *Index) SearchBatch(ctx context.Context, queries [][]float32, k, ef int) ([][]SearchResult, error) {
	results, err := idx.inner.SearchBatch(ctx, queries, k, ef)
	if err != nil {
		return nil, wrap("search_batch", err)
	}
	return results, nil
}

// Rebuild recomputes every node's layer-0 neighbors in batches.
// With cfg.Background set it returns at once; use WaitRebuild or RebuildStatus.
func (idx *Index) Rebuild(cfg RebuildConfig) (RebuildStats, error) {
	stats, err := idx.inner.Rebuild(cfg)
	return stats, wrap("rebuild", err)
}

// RebuildStatus returns the progress of the latest rebuild
func (idx *Index) RebuildStatus() RebuildStats {
	return idx.inner.RebuildStatus()
}

// RebuildRunning reports whether a rebuild is in flight
func (idx *Index) RebuildRunning() bool {
	return idx.inner.RebuildRunning()
}

// WaitRebuild blocks until the running rebuild finishes or ctx is done
func (idx *Index) WaitRebuild(ctx context.Context) error {
	return idx.inner.WaitRebuild(ctx)
}

// Len returns the number of vectors in the index
func (idx *Index) Len() int {
	return idx.inner.Len()
}

// Capacity returns the maximum number of vectors
func (idx *Index) Capacity() int {
	return idx.inner.Capacity()
}

// Dimension returns the vector dimension
func (idx *Index) Dimension() int {
	return idx.inner.Dimension()
}

// Stats returns a snapshot of the graph shape
func (idx *Index) Stats() Stats {
	return idx.inner.Stats()
}

// CheckInvariants verifies the graph structure and joins every violation found
func (idx *Index) CheckInvariants() error {
	return wrap("check", idx.inner.CheckInvariants())
}

// Health runs the graph, capacity and rebuild checks
func (idx *Index) Health(ctx context.Context) (*HealthStatus, error) {
	return idx.health.Check(ctx)
}

// Registry exposes the index metrics, or nil when metrics are disabled
func (idx *Index) Registry() *prometheus.Registry {
	return idx.metrics.Registry()
}

// Save writes the index to path atomically; a ".zst" suffix compresses it
func (idx *Index) Save(path string) error {
	return wrap("save", idx.inner.Save(path))
}

// WriteTo writes the binary index format to w
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	n, err := idx.inner.WriteTo(w)
	return n, wrap("write", err)
}

// Close joins any background rebuild and releases the graph
func (idx *Index) Close() error {
	return wrap("close", idx.inner.Close())
}
