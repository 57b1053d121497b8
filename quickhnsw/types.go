package quickhnsw

import (
	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
	"github.com/xDarkicex/quickhnsw/internal/obs"
)

// SearchResult is one neighbor: the caller's label and its squared L2 distance
type SearchResult = hnsw.SearchResult

// RebuildConfig controls an incremental layer-0 rebuild
type RebuildConfig = hnsw.RebuildConfig

// RebuildStats reports rebuild progress
type RebuildStats = hnsw.RebuildStats

// Stats summarizes the shape of the graph
type Stats = hnsw.Stats

// HealthStatus represents the health status of an index
type HealthStatus = obs.HealthStatus

// CheckResult represents the result of a single health check
type CheckResult = obs.CheckResult

// DefaultRebuildConfig returns ratio 0.8, batches of 1000, synchronous
func DefaultRebuildConfig() RebuildConfig {
	return hnsw.DefaultRebuildConfig()
}
