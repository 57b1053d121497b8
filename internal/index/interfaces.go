package index

import (
	"context"

	"github.com/xDarkicex/quickhnsw/internal/index/flat"
	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
)

// Index defines the interface for vector indexes
type Index interface {
	Insert(ctx context.Context, vector []float32, label uint64) error
	Search(ctx context.Context, query []float32, k, ef int) ([]hnsw.SearchResult, error)
	Len() int
	MemoryUsage() int64
	Close() error
}

var (
	_ Index = (*hnsw.Index)(nil)
	_ Index = (*flat.Index)(nil)
)

// Recall returns the mean fraction of each truth list whose labels appear in
// the matching result list. Lists are paired by position.
func Recall(truth, results [][]hnsw.SearchResult) float64 {
	if len(truth) == 0 {
		return 0
	}

	var sum float64
	for i, want := range truth {
		if len(want) == 0 {
			sum++
			continue
		}
		found := make(map[uint64]int, len(results[i]))
		for _, r := range results[i] {
			found[r.Label]++
		}
		hits := 0
		for _, w := range want {
			if found[w.Label] > 0 {
				found[w.Label]--
				hits++
			}
		}
		sum += float64(hits) / float64(len(want))
	}
	return sum / float64(len(truth))
}

// GroundTruth answers every query exactly against the vectors of src
func GroundTruth(ctx context.Context, src *hnsw.Index, queries [][]float32, k int) ([][]hnsw.SearchResult, error) {
	exact, err := New(KindFlat, &hnsw.Config{Dimension: src.Dimension()})
	if err != nil {
		return nil, err
	}
	defer exact.Close()

	var insertErr error
	src.Each(func(label uint64, vector []float32) bool {
		insertErr = exact.Insert(ctx, vector, label)
		return insertErr == nil
	})
	if insertErr != nil {
		return nil, insertErr
	}

	truth := make([][]hnsw.SearchResult, len(queries))
	for i, q := range queries {
		if truth[i], err = exact.Search(ctx, q, k, 0); err != nil {
			return nil, err
		}
	}
	return truth, nil
}
