package hnsw

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Insert adds a vector under label.
// The vector is copied. Labels are opaque and need not be unique.
func (h *Index) Insert(ctx context.Context, vector []float32, label uint64) (err error) {
	start := time.Now()
	defer func() { h.metrics.ObserveInsert(time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vector) != h.config.Dimension {
		return fmt.Errorf("%w: vector dimension %d does not match index dimension %d",
			ErrInvalidArgument, len(vector), h.config.Dimension)
	}
	if i, ok := firstNonFinite(vector); ok {
		return fmt.Errorf("%w: vector component %d is %v", ErrInvalidArgument, i, vector[i])
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if len(h.nodes) >= h.config.MaxElements {
		return fmt.Errorf("%w: %d of %d", ErrCapacityExceeded, len(h.nodes), h.config.MaxElements)
	}

	if err := h.quantizer.Observe(vector); err != nil {
		return fmt.Errorf("failed to update quantization range: %w", err)
	}

	id := uint32(len(h.nodes))
	level := h.generateLevel()
	node := newNode(label, level, h.quantizer.CodeSize(), h.config.M, h.m0)
	if err := h.quantizer.Encode(vector, node.Code); err != nil {
		return fmt.Errorf("failed to quantize vector: %w", err)
	}

	h.vectors = append(h.vectors, vector...)
	h.nodes = append(h.nodes, node)

	defer func() {
		h.metrics.SetGraphShape(len(h.nodes), h.maxLevel)
		h.logger.Debug().
			Uint64("label", label).
			Uint32("id", id).
			Int("level", level).
			Msg("inserted")
	}()

	// First node
	if h.entryPoint == NoNode {
		h.entryPoint = id
		h.maxLevel = level
		return nil
	}

	h.insertNode(id, vector, level)

	if level > h.maxLevel {
		h.entryPoint = id
		h.maxLevel = level
	}

	return nil
}

// insertNode wires a freshly appended node into every layer it shares with the graph
func (h *Index) insertNode(id uint32, vector []float32, level int) {
	// Phase 1: greedy descent to the top layer of the new node
	ep := h.greedyDescent(vector, h.entryPoint, h.maxLevel, level)

	// Phase 2: search each shared layer with efConstruction and connect
	sc := h.getScratch()
	defer h.putScratch(sc)

	for layer := min(level, h.maxLevel); layer >= 0; layer-- {
		candidates := h.searchLayer(vector, ep, h.config.EfConstruction, layer, true, sc)
		if len(candidates) == 0 {
			continue
		}
		h.connectNode(id, candidates, layer)
		ep = candidates[0].ID
	}
}

// firstNonFinite returns the index of the first NaN or infinite component
func firstNonFinite(vec []float32) (int, bool) {
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i, true
		}
	}
	return 0, false
}
