package hnsw

import (
	"github.com/xDarkicex/quickhnsw/internal/util"
)

// selectNeighbors implements the diversity heuristic.
// Candidates are ranked by exact distance to target. A candidate is kept unless
// an already-kept neighbor is strictly closer to it than the target is.
// At most maxCount ids are returned.
func (h *Index) selectNeighbors(target []float32, candidates []util.Candidate, maxCount int) []uint32 {
	if len(candidates) == 0 || maxCount <= 0 {
		return nil
	}

	ranked := make([]util.Candidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = util.Candidate{ID: c.ID, Distance: util.SquaredL2(target, h.vector(c.ID))}
	}
	util.SortCandidates(ranked)

	selected := make([]uint32, 0, min(maxCount, len(ranked)))
	for _, c := range ranked {
		if len(selected) >= maxCount {
			break
		}

		candidateVector := h.vector(c.ID)
		keep := true
		for _, s := range selected {
			if s == c.ID || util.SquaredL2(candidateVector, h.vector(s)) < c.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, c.ID)
		}
	}

	return selected
}

// connectNode sets the outgoing edges of id at layer and adds reverse edges.
// A neighbor whose list is full is re-pruned over its existing links plus id.
func (h *Index) connectNode(id uint32, candidates []util.Candidate, layer int) {
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if c.ID != id {
			filtered = append(filtered, c)
		}
	}

	vec := h.vector(id)
	selected := h.selectNeighbors(vec, filtered, h.capacityAt(layer))

	node := &h.nodes[id]
	node.Links[layer] = append(node.Links[layer][:0], selected...)

	for _, neighborID := range selected {
		h.linkBack(neighborID, id, layer)
	}
}

// linkBack adds id to the layer list of neighborID. A full list is re-pruned
// over its existing links plus id. It reports whether id was added and how
// many existing links were dropped.
func (h *Index) linkBack(neighborID, id uint32, layer int) (added bool, dropped int) {
	neighbor := &h.nodes[neighborID]
	if layer > neighbor.Level {
		return false, 0
	}

	links := neighbor.Links[layer]
	if containsID(links, id) {
		return false, 0
	}

	capacity := h.capacityAt(layer)
	if len(links) < capacity {
		neighbor.Links[layer] = append(links, id)
		return true, 0
	}

	pool := make([]util.Candidate, 0, len(links)+1)
	for _, l := range links {
		pool = append(pool, util.Candidate{ID: l})
	}
	pool = append(pool, util.Candidate{ID: id})

	pruned := h.selectNeighbors(h.vector(neighborID), pool, capacity)
	added = containsID(pruned, id)
	kept := len(pruned)
	if added {
		kept--
	}
	neighbor.Links[layer] = append(links[:0], pruned...)
	return added, len(links) - kept
}
