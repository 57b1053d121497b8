package hnsw

import (
	"errors"
	"fmt"
)

// maxViolations bounds the report of CheckInvariants
const maxViolations = 64

// CheckInvariants verifies the structural properties of the graph: storage
// sizes, the entry point, and for every edge its range, its layer bound and
// its list capacity. All violations found (up to a limit) are joined.
func (h *Index) CheckInvariants() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}

	var errs []error
	report := func(format string, args ...any) bool {
		errs = append(errs, fmt.Errorf(format, args...))
		return len(errs) < maxViolations
	}

	count := len(h.nodes)
	if len(h.vectors) != count*h.config.Dimension {
		report("vector storage holds %d floats, want %d", len(h.vectors), count*h.config.Dimension)
	}

	if count == 0 {
		if h.entryPoint != NoNode {
			report("empty index has entry point %d", h.entryPoint)
		}
		return errors.Join(errs...)
	}

	if int(h.entryPoint) >= count {
		report("entry point %d out of range", h.entryPoint)
	} else if lvl := h.nodes[h.entryPoint].Level; lvl != h.maxLevel {
		report("entry point level %d differs from max level %d", lvl, h.maxLevel)
	}

	codeSize := h.quantizer.CodeSize()
	for i := range h.nodes {
		node := &h.nodes[i]
		if node.Level > h.maxLevel {
			if !report("node %d level %d above max level %d", i, node.Level, h.maxLevel) {
				return errors.Join(errs...)
			}
		}
		if len(node.Code) != codeSize {
			if !report("node %d code has %d bytes, want %d", i, len(node.Code), codeSize) {
				return errors.Join(errs...)
			}
		}
		if len(node.Links) != node.Level+1 {
			if !report("node %d has %d link layers, want %d", i, len(node.Links), node.Level+1) {
				return errors.Join(errs...)
			}
			continue
		}

		for layer, links := range node.Links {
			if len(links) > h.capacityAt(layer) {
				if !report("node %d layer %d has %d links, capacity %d", i, layer, len(links), h.capacityAt(layer)) {
					return errors.Join(errs...)
				}
			}
			for _, id := range links {
				var ok bool
				switch {
				case int(id) >= count:
					ok = report("node %d layer %d links to missing node %d", i, layer, id)
				case int(id) == i:
					ok = report("node %d layer %d links to itself", i, layer)
				case h.nodes[id].Level < layer:
					ok = report("node %d layer %d links to node %d of level %d", i, layer, id, h.nodes[id].Level)
				default:
					ok = true
				}
				if !ok {
					return errors.Join(errs...)
				}
			}
		}
	}

	return errors.Join(errs...)
}
