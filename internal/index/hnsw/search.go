package hnsw

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/xDarkicex/quickhnsw/internal/util"
)

// searchScratch holds per-traversal buffers reused through a sync.Pool
type searchScratch struct {
	visited    *bitset.BitSet
	candidates *util.CandidateList
}

func newSearchScratch() any {
	return &searchScratch{
		visited:    bitset.New(0),
		candidates: util.NewCandidateList(1),
	}
}

func (h *Index) getScratch() *searchScratch {
	return h.scratch.Get().(*searchScratch)
}

func (h *Index) putScratch(sc *searchScratch) {
	h.scratch.Put(sc)
}

// reset prepares the visited set for n nodes and the candidate list for ef entries
func (sc *searchScratch) reset(n, ef int) {
	if sc.visited.Len() < uint(n) {
		sc.visited = bitset.New(uint(n))
	} else {
		sc.visited.ClearAll()
	}
	sc.candidates.Reset(ef)
}

// distanceTo scores node id against query, from its inline code or its full vector
func (h *Index) distanceTo(query []float32, id uint32, quantized bool) float32 {
	if quantized {
		return h.quantizer.DistanceToQuery(query, h.nodes[id].Code)
	}
	return util.SquaredL2(query, h.vector(id))
}

// searchLayer runs a best-first traversal of one layer from entry and returns up
// to ef candidates sorted by ascending distance. It stops once every kept
// candidate has been expanded.
func (h *Index) searchLayer(query []float32, entry uint32, ef, layer int, quantized bool, sc *searchScratch) []util.Candidate {
	count := len(h.nodes)
	if count == 0 || int(entry) >= count {
		return nil
	}

	sc.reset(count, ef)
	visited, candidates := sc.visited, sc.candidates

	candidates.Insert(util.Candidate{ID: entry, Distance: h.distanceTo(query, entry, quantized)})
	visited.Set(uint(entry))

	var touched byte
	for {
		current, ok := candidates.PopUnexpanded()
		if !ok {
			break
		}

		node := &h.nodes[current.ID]
		if layer > node.Level {
			continue
		}

		neighbors := node.Links[layer]
		for i, neighborID := range neighbors {
			if int(neighborID) >= count {
				continue
			}

			if h.config.EnablePrefetch && i+h.config.PrefetchDistance < len(neighbors) {
				if ahead := neighbors[i+h.config.PrefetchDistance]; int(ahead) < count {
					if code := h.nodes[ahead].Code; len(code) > 0 {
						touched ^= code[0]
					}
				}
			}

			if visited.Test(uint(neighborID)) {
				continue
			}
			visited.Set(uint(neighborID))

			candidates.Insert(util.Candidate{
				ID:       neighborID,
				Distance: h.distanceTo(query, neighborID, quantized),
			})
		}
	}
	runtime.KeepAlive(touched)

	items := candidates.Items()
	result := make([]util.Candidate, len(items))
	copy(result, items)
	return result
}

// greedyDescent walks from entry through layers from down to above `to`
// (exclusive), moving to any strictly closer neighbor until none improves.
// Distances are exact.
func (h *Index) greedyDescent(query []float32, entry uint32, from, to int) uint32 {
	current := entry
	best := util.SquaredL2(query, h.vector(current))

	for layer := from; layer > to; layer-- {
		changed := true
		for changed {
			changed = false
			node := &h.nodes[current]
			if layer > node.Level {
				break
			}
			for _, neighborID := range node.Links[layer] {
				if int(neighborID) >= len(h.nodes) {
					continue
				}
				d := util.SquaredL2(query, h.vector(neighborID))
				if d < best {
					best = d
					current = neighborID
					changed = true
				}
			}
		}
	}

	return current
}

// Search finds the k nearest neighbors to the query vector.
// Layer 0 is traversed with quantized distances; the survivors are reranked
// exactly. An empty index yields no results.
func (h *Index) Search(ctx context.Context, query []float32, k, ef int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(query) != h.config.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d does not match index dimension %d",
			ErrInvalidArgument, len(query), h.config.Dimension)
	}
	if i, ok := firstNonFinite(query); ok {
		return nil, fmt.Errorf("%w: query component %d is %v", ErrInvalidArgument, i, query[i])
	}

	start := time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, ErrClosed
	}
	if len(h.nodes) == 0 || h.entryPoint == NoNode {
		return []SearchResult{}, nil
	}

	ef = max(ef, k)

	ep := h.greedyDescent(query, h.entryPoint, h.maxLevel, 0)

	sc := h.getScratch()
	candidates := h.searchLayer(query, ep, ef, 0, true, sc)
	h.putScratch(sc)

	// Exact rerank
	for i := range candidates {
		candidates[i].Distance = util.SquaredL2(query, h.vector(candidates[i].ID))
	}
	util.SortCandidates(candidates)

	results := make([]SearchResult, 0, min(k, len(candidates)))
	for _, c := range candidates[:min(k, len(candidates))] {
		results = append(results, SearchResult{
			Label:    h.nodes[c.ID].Label,
			Distance: c.Distance,
		})
	}

	h.metrics.ObserveSearch(time.Since(start))
	h.logger.Debug().
		Int("k", k).
		Int("ef", ef).
		Int("candidates", len(candidates)).
		Msg("search")

	return results, nil
}
