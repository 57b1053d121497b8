package flat

import (
	"context"
	"fmt"
	"sync"

	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
	"github.com/xDarkicex/quickhnsw/internal/util"
)

// cancelCheckInterval is how many vectors are scanned between context checks
const cancelCheckInterval = 1024

// Index implements a flat (brute-force) vector index.
// It answers with exact squared L2 distances and serves as ground truth.
type Index struct {
	mu        sync.RWMutex
	dimension int
	capacity  int // 0 means unbounded
	vectors   []float32
	labels    []uint64
	closed    bool
}

// NewFlat creates a new flat index. A capacity of 0 is unbounded.
func NewFlat(dimension, capacity int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", hnsw.ErrInvalidArgument, dimension)
	}
	if capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must not be negative, got %d", hnsw.ErrInvalidArgument, capacity)
	}
	return &Index{dimension: dimension, capacity: capacity}, nil
}

// Insert adds a copy of vector under label
func (idx *Index) Insert(ctx context.Context, vector []float32, label uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vector) != idx.dimension {
		return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d",
			hnsw.ErrInvalidArgument, idx.dimension, len(vector))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return hnsw.ErrClosed
	}
	if idx.capacity > 0 && len(idx.labels) >= idx.capacity {
		return fmt.Errorf("%w: %d of %d", hnsw.ErrCapacityExceeded, len(idx.labels), idx.capacity)
	}

	idx.vectors = append(idx.vectors, vector...)
	idx.labels = append(idx.labels, label)
	return nil
}

// Search scans every vector and returns the k nearest in ascending distance.
// ef is accepted for interface compatibility and ignored.
func (idx *Index) Search(ctx context.Context, query []float32, k, ef int) ([]hnsw.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", hnsw.ErrInvalidArgument, k)
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d",
			hnsw.ErrInvalidArgument, idx.dimension, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, hnsw.ErrClosed
	}

	top := util.NewCandidateList(k)
	for i := range idx.labels {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		vec := idx.vectors[i*idx.dimension : (i+1)*idx.dimension]
		top.Insert(util.Candidate{ID: uint32(i), Distance: util.SquaredL2(query, vec)})
	}

	items := top.Items()
	results := make([]hnsw.SearchResult, len(items))
	for i, c := range items {
		results[i] = hnsw.SearchResult{Label: idx.labels[c.ID], Distance: c.Distance}
	}
	return results, nil
}

// Len returns the number of vectors in the index
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.labels)
}

// MemoryUsage estimates the memory usage of the index
func (idx *Index) MemoryUsage() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int64(cap(idx.vectors))*4 + int64(cap(idx.labels))*8
}

// Close releases the stored vectors
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.closed = true
	idx.vectors = nil
	idx.labels = nil
	return nil
}
