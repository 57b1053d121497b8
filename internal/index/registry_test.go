package index

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
)

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		for j := range out[i] {
			out[i][j] = rng.Float32()
		}
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		config  *hnsw.Config
		wantErr bool
	}{
		{"hnsw", KindHNSW, &hnsw.Config{Dimension: 8, MaxElements: 10, M: 4, RandomSeed: 1}, false},
		{"flat", KindFlat, &hnsw.Config{Dimension: 8}, false},
		{"invalid hnsw", KindHNSW, &hnsw.Config{Dimension: 8}, true},
		{"invalid flat", KindFlat, &hnsw.Config{}, true},
		{"nil config", KindFlat, nil, true},
		{"unknown kind", Kind(9), &hnsw.Config{Dimension: 8}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := New(tt.kind, tt.config)
			if tt.wantErr {
				assert.ErrorIs(t, err, hnsw.ErrInvalidArgument)
				assert.Nil(t, idx)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, idx)
			assert.Equal(t, 0, idx.Len())
			assert.NoError(t, idx.Close())
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range SupportedKinds() {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseKind("ivfpq")
	assert.ErrorIs(t, err, hnsw.ErrInvalidArgument)
}

func TestRecall(t *testing.T) {
	r := func(labels ...uint64) []hnsw.SearchResult {
		out := make([]hnsw.SearchResult, len(labels))
		for i, l := range labels {
			out[i].Label = l
		}
		return out
	}

	assert.Equal(t, 1.0, Recall([][]hnsw.SearchResult{r(1, 2)}, [][]hnsw.SearchResult{r(2, 1)}))
	assert.Equal(t, 0.5, Recall([][]hnsw.SearchResult{r(1, 2)}, [][]hnsw.SearchResult{r(1, 3)}))
	assert.Equal(t, 0.75, Recall(
		[][]hnsw.SearchResult{r(1, 2), r(3, 4)},
		[][]hnsw.SearchResult{r(1, 2), r(4)},
	))
	assert.Equal(t, 0.0, Recall(nil, nil))
}

// Every index kind answers through the same interface, and the graph
// agrees closely with exhaustive search.
func TestHNSWRecallAgainstFlat(t *testing.T) {
	rng := rand.New(rand.NewSource(101))
	vectors := randomVectors(rng, 1000, 16)
	queries := randomVectors(rng, 50, 16)
	ctx := context.Background()

	cfg := &hnsw.Config{Dimension: 16, MaxElements: 1000, M: 16, EfConstruction: 100, RandomSeed: 5}
	indexes := make(map[Kind]Index)
	for _, kind := range SupportedKinds() {
		idx, err := New(kind, cfg)
		require.NoError(t, err)
		defer idx.Close()
		for i, v := range vectors {
			require.NoError(t, idx.Insert(ctx, v, uint64(i)))
		}
		assert.Equal(t, 1000, idx.Len())
		assert.Greater(t, idx.MemoryUsage(), int64(0))
		indexes[kind] = idx
	}

	results := make(map[Kind][][]hnsw.SearchResult)
	for kind, idx := range indexes {
		for _, q := range queries {
			res, err := idx.Search(ctx, q, 10, 100)
			require.NoError(t, err)
			require.Len(t, res, 10)
			results[kind] = append(results[kind], res)
		}
	}

	recall := Recall(results[KindFlat], results[KindHNSW])
	assert.GreaterOrEqual(t, recall, 0.9)

	truth, err := GroundTruth(ctx, indexes[KindHNSW].(*hnsw.Index), queries, 10)
	require.NoError(t, err)
	assert.Equal(t, results[KindFlat], truth)
}
