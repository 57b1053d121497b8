package hnsw

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInvariants(t *testing.T) {
	build := func(t *testing.T) *Index {
		rng := rand.New(rand.NewSource(41))
		index := newTestIndex(t, Config{Dimension: 6, MaxElements: 60, M: 4, EfConstruction: 32})
		insertAll(t, index, generateTestVectors(rng, 60, 6))
		require.NoError(t, index.CheckInvariants())
		return index
	}

	tests := []struct {
		name    string
		corrupt func(h *Index)
		wantMsg string
	}{
		{"self loop", func(h *Index) {
			h.nodes[3].Links[0] = append(h.nodes[3].Links[0], 3)
		}, "links to itself"},
		{"missing node", func(h *Index) {
			h.nodes[5].Links[0] = append(h.nodes[5].Links[0], 500)
		}, "missing node"},
		{"over capacity", func(h *Index) {
			for len(h.nodes[7].Links[0]) <= h.m0 {
				h.nodes[7].Links[0] = append(h.nodes[7].Links[0], 8)
			}
		}, "capacity"},
		{"entry point out of range", func(h *Index) {
			h.entryPoint = 1000
		}, "entry point"},
		{"short code", func(h *Index) {
			h.nodes[2].Code = h.nodes[2].Code[:1]
		}, "code has"},
		{"vector storage", func(h *Index) {
			h.vectors = h.vectors[:len(h.vectors)-1]
		}, "vector storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := build(t)
			tt.corrupt(index)
			err := index.CheckInvariants()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestCheckInvariants_EmptyAndClosed(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 2, MaxElements: 2, M: 2})
	assert.NoError(t, index.CheckInvariants())

	require.NoError(t, index.Close())
	assert.ErrorIs(t, index.CheckInvariants(), ErrClosed)
}

func TestSearchBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	index := newTestIndex(t, Config{Dimension: 8, MaxElements: 200, M: 8, EfConstruction: 48})
	insertAll(t, index, generateTestVectors(rng, 200, 8))
	queries := generateTestVectors(rng, 32, 8)
	ctx := context.Background()

	batch, err := index.SearchBatch(ctx, queries, 5, 32)
	require.NoError(t, err)
	require.Len(t, batch, len(queries))

	for i, q := range queries {
		single, err := index.Search(ctx, q, 5, 32)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "query %d", i)
	}

	t.Run("empty", func(t *testing.T) {
		results, err := index.SearchBatch(ctx, nil, 5, 32)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("bad query fails the batch", func(t *testing.T) {
		bad := append([][]float32{}, queries[:3]...)
		bad = append(bad, []float32{1, 2})
		results, err := index.SearchBatch(ctx, bad, 5, 32)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Nil(t, results)
	})
}
