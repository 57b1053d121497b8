package hnsw

import (
	"context"
	"time"
)

const (
	DefaultConnectivityRatio = 0.8
	DefaultRebuildBatchSize  = 1000

	minRebuildEf = 32
)

// RebuildConfig controls an incremental layer-0 rebuild
type RebuildConfig struct {
	// ConnectivityRatio is validated and reported but every processed node
	// has its layer-0 list fully recomputed. Values outside (0, 1] select 0.8.
	ConnectivityRatio float32

	// BatchSize is the number of nodes processed per write-lock hold.
	// Non-positive values select 1000.
	BatchSize int

	// Background runs the rebuild on its own goroutine and returns at once.
	Background bool
}

// RebuildStats reports the progress of the latest rebuild
type RebuildStats struct {
	NodesProcessed uint64
	EdgesAdded     uint64
	EdgesRemoved   uint64
	Elapsed        time.Duration
	Completed      bool

	ConnectivityRatio float32
	BatchSize         int
}

// DefaultRebuildConfig returns the default rebuild settings
func DefaultRebuildConfig() RebuildConfig {
	return RebuildConfig{
		ConnectivityRatio: DefaultConnectivityRatio,
		BatchSize:         DefaultRebuildBatchSize,
	}
}

func (c RebuildConfig) withDefaults() RebuildConfig {
	if c.ConnectivityRatio <= 0 || c.ConnectivityRatio > 1 {
		c.ConnectivityRatio = DefaultConnectivityRatio
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultRebuildBatchSize
	}
	return c
}

// Rebuild recomputes the layer-0 neighbor list of every node using the live
// graph, one batch per write-lock hold. Upper layers are untouched.
// A synchronous rebuild returns the final stats. A background rebuild returns
// the initial snapshot; poll RebuildStatus or call WaitRebuild.
func (h *Index) Rebuild(cfg RebuildConfig) (RebuildStats, error) {
	cfg = cfg.withDefaults()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return RebuildStats{}, ErrClosed
	}
	if h.rebuilding {
		h.mu.Unlock()
		return RebuildStats{}, ErrRebuildInProgress
	}

	h.rebuildStats = RebuildStats{
		ConnectivityRatio: cfg.ConnectivityRatio,
		BatchSize:         cfg.BatchSize,
	}

	if len(h.nodes) == 0 {
		h.rebuildStats.Completed = true
		stats := h.rebuildStats
		h.mu.Unlock()
		return stats, nil
	}

	done := make(chan struct{})
	h.rebuilding = true
	h.rebuildDone = done
	h.metrics.SetRebuildRunning(true)
	stats := h.rebuildStats

	h.workers.Add(1)
	h.mu.Unlock()

	if cfg.Background {
		go func() {
			defer h.workers.Done()
			h.runRebuild(cfg, done)
		}()
		return stats, nil
	}

	final := h.runRebuild(cfg, done)
	h.workers.Done()
	return final, nil
}

// runRebuild processes every node and returns the stats recorded at completion
func (h *Index) runRebuild(cfg RebuildConfig, done chan struct{}) RebuildStats {
	start := time.Now()
	h.logger.Info().
		Float32("connectivity_ratio", cfg.ConnectivityRatio).
		Int("batch_size", cfg.BatchSize).
		Bool("background", cfg.Background).
		Msg("rebuild started")

	var processed, added, removed uint64

	for batchStart := 0; ; batchStart += cfg.BatchSize {
		h.mu.Lock()
		count := len(h.nodes)
		if batchStart >= count {
			h.mu.Unlock()
			break
		}
		batchEnd := min(batchStart+cfg.BatchSize, count)

		var batchAdded, batchRemoved uint64
		sc := h.getScratch()
		for id := batchStart; id < batchEnd; id++ {
			a, r := h.rebuildNode(uint32(id), sc)
			batchAdded += a
			batchRemoved += r
			processed++
		}
		h.putScratch(sc)

		added += batchAdded
		removed += batchRemoved
		h.rebuildStats.NodesProcessed = processed
		h.rebuildStats.EdgesAdded = added
		h.rebuildStats.EdgesRemoved = removed
		h.rebuildStats.Elapsed = time.Since(start)
		h.metrics.ObserveRebuildBatch(batchAdded, batchRemoved)
		h.mu.Unlock()

		h.logger.Debug().
			Int("batch_start", batchStart).
			Int("batch_end", batchEnd).
			Uint64("edges_added", batchAdded).
			Uint64("edges_removed", batchRemoved).
			Msg("rebuild batch applied")
	}

	h.mu.Lock()
	h.rebuildStats.NodesProcessed = processed
	h.rebuildStats.EdgesAdded = added
	h.rebuildStats.EdgesRemoved = removed
	h.rebuildStats.Elapsed = time.Since(start)
	h.rebuildStats.Completed = true
	final := h.rebuildStats
	h.rebuilding = false
	h.metrics.SetRebuildRunning(false)
	close(done)
	h.mu.Unlock()

	h.logger.Info().
		Uint64("nodes_processed", processed).
		Uint64("edges_added", added).
		Uint64("edges_removed", removed).
		Dur("elapsed", time.Since(start)).
		Msg("rebuild completed")
	return final
}

// rebuildNode replaces the layer-0 links of id, links id back from every
// selected neighbor and reports the edge churn
func (h *Index) rebuildNode(id uint32, sc *searchScratch) (added, removed uint64) {
	vec := h.vector(id)
	ef := max(2*h.m0, minRebuildEf)

	candidates := h.searchLayer(vec, h.entryPoint, ef, 0, true, sc)
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.ID != id {
			filtered = append(filtered, c)
		}
	}

	selected := h.selectNeighbors(vec, filtered, h.m0)
	old := h.nodes[id].Links[0]

	for _, s := range selected {
		if !containsID(old, s) {
			added++
		}
	}
	for _, o := range old {
		if !containsID(selected, o) {
			removed++
		}
	}

	h.nodes[id].Links[0] = append(old[:0], selected...)

	for _, s := range selected {
		linked, dropped := h.linkBack(s, id, 0)
		if linked {
			added++
		}
		removed += uint64(dropped)
	}
	return added, removed
}

func containsID(ids []uint32, id uint32) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// RebuildStatus returns a snapshot of the latest rebuild's progress
func (h *Index) RebuildStatus() RebuildStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rebuildStats
}

// RebuildRunning reports whether a rebuild is in flight
func (h *Index) RebuildRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rebuilding
}

// WaitRebuild blocks until the current rebuild finishes or ctx is done.
// It returns immediately when no rebuild is running.
func (h *Index) WaitRebuild(ctx context.Context) error {
	h.mu.RLock()
	done := h.rebuildDone
	running := h.rebuilding
	h.mu.RUnlock()

	if !running || done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
