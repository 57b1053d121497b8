package hnsw

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// SearchBatch runs Search for every query concurrently, at most GOMAXPROCS at a
// time. results[i] answers queries[i]. The first failure cancels the rest.
func (h *Index) SearchBatch(ctx context.Context, queries [][]float32, k, ef int) ([][]SearchResult, error) {
	results := make([][]SearchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			res, err := h.Search(gctx, query, k, ef)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
