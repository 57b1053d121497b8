package hnsw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/quickhnsw/internal/obs"
)

func newTestIndex(t testing.TB, cfg Config) *Index {
	t.Helper()
	if cfg.RandomSeed == 0 {
		cfg.RandomSeed = 42
	}
	index, err := NewHNSW(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

// sinVector fills dim components with sin(seed + i*0.7)
func sinVector(dim int, seed float64) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(math.Sin(seed + float64(i)*0.7))
	}
	return vec
}

func generateTestVectors(rng *rand.Rand, count, dim int) [][]float32 {
	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		for j := range vectors[i] {
			vectors[i][j] = rng.Float32()*2 - 1
		}
	}
	return vectors
}

func insertAll(t testing.TB, index *Index, vectors [][]float32) {
	t.Helper()
	ctx := context.Background()
	for i, vec := range vectors {
		require.NoError(t, index.Insert(ctx, vec, uint64(i)))
	}
}

func TestNewHNSW_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"valid", Config{Dimension: 8, MaxElements: 10, M: 4}, nil},
		{"zero dimension", Config{Dimension: 0, MaxElements: 10, M: 4}, ErrInvalidArgument},
		{"zero max elements", Config{Dimension: 8, MaxElements: 0, M: 4}, ErrInvalidArgument},
		{"zero M", Config{Dimension: 8, MaxElements: 10, M: 0}, ErrInvalidArgument},
		{"negative ef construction", Config{Dimension: 8, MaxElements: 10, M: 4, EfConstruction: -1}, ErrInvalidArgument},
		{"ids overflow", Config{Dimension: 1, MaxElements: math.MaxUint32, M: 4}, ErrInvalidArgument},
		{"storage overflow", Config{Dimension: math.MaxInt32, MaxElements: math.MaxInt32, M: 4}, ErrAllocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, err := NewHNSW(&tt.config)
			if tt.wantErr == nil {
				require.NoError(t, err)
				index.Close()
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, index)
		})
	}

	_, err := NewHNSW(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewHNSW_Defaults(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 8, MaxElements: 10, M: 16, QuantBits: 3})

	cfg := index.Config()
	assert.Equal(t, DefaultEfConstruction, cfg.EfConstruction)
	assert.Equal(t, DefaultQuantBits, cfg.QuantBits)
	assert.Equal(t, DefaultPrefetchDistance, cfg.PrefetchDistance)
	assert.Equal(t, 0, index.Len())
	assert.Equal(t, 10, index.Capacity())

	stats := index.Stats()
	assert.Equal(t, 32, stats.M0)
	assert.False(t, stats.HasEntry)
}

func TestGenerateLevel_Distribution(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 2, MaxElements: 1, M: 16})

	const samples = 20000
	zero := 0
	for i := 0; i < samples; i++ {
		level := index.generateLevel()
		require.GreaterOrEqual(t, level, 0)
		require.LessOrEqual(t, level, MaxLevel)
		if level == 0 {
			zero++
		}
	}

	// P(level >= 1) = 1/M
	assert.InDelta(t, 1-1.0/16, float64(zero)/samples, 0.02)
}

func TestSearch_EmptyIndex(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 8, MaxElements: 10, M: 16})

	results, err := index.Search(context.Background(), sinVector(8, 0), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_SelfRecallScenario(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 8, MaxElements: 200, M: 16, EfConstruction: 64})

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, index.Insert(ctx, sinVector(8, float64(i)), uint64(i)))
	}
	require.Equal(t, 50, index.Len())

	results, err := index.Search(ctx, sinVector(8, 0), 5, 64)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, uint64(0), results[0].Label)
	assert.Less(t, results[0].Distance, float32(1e-3))
}

func TestSearch_SelfRecallEveryVector(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vectors := generateTestVectors(rng, 100, 12)

	for _, bits := range []int{4, 8} {
		index := newTestIndex(t, Config{Dimension: 12, MaxElements: 100, M: 16, EfConstruction: 100, QuantBits: bits})
		insertAll(t, index, vectors)

		for i, vec := range vectors {
			results, err := index.Search(context.Background(), vec, 1, len(vectors))
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, uint64(i), results[0].Label, "bits=%d vector %d", bits, i)
			assert.InDelta(t, 0, results[0].Distance, 1e-6)
		}
	}
}

func TestSearch_ResultOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	index := newTestIndex(t, Config{Dimension: 16, MaxElements: 300, M: 8, EfConstruction: 64})
	insertAll(t, index, generateTestVectors(rng, 300, 16))

	for _, query := range generateTestVectors(rng, 20, 16) {
		results, err := index.Search(context.Background(), query, 10, 32)
		require.NoError(t, err)
		require.Len(t, results, 10)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
		}
	}
}

func TestSearch_KLargerThanCount(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 4, MaxElements: 10, M: 4})
	insertAll(t, index, [][]float32{{0, 0, 0, 0}, {1, 1, 1, 1}, {2, 2, 2, 2}})

	results, err := index.Search(context.Background(), []float32{0, 0, 0, 0}, 10, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{results[0].Label, results[1].Label, results[2].Label})
	assert.Equal(t, float32(4), results[1].Distance)
}

func TestSearch_InvalidArguments(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 4, MaxElements: 10, M: 4})
	ctx := context.Background()

	_, err := index.Search(ctx, []float32{1, 2}, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = index.Search(ctx, []float32{1, 2, 3, 4}, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = index.Search(canceled, []float32{1, 2, 3, 4}, 1, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInsert_CapacityBound(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 2, MaxElements: 3, M: 4})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, index.Insert(ctx, []float32{float32(i), 0}, uint64(i)))
	}

	err := index.Insert(ctx, []float32{9, 9}, 9)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 3, index.Len())
}

func TestInsert_DimensionMismatch(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 3, MaxElements: 3, M: 4})

	err := index.Insert(context.Background(), []float32{1, 2}, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, index.Len())
}

func TestInsert_RejectsNonFinite(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	vectors := generateTestVectors(rng, 300, 6)
	metrics := obs.NewMetrics()
	index := newTestIndex(t, Config{Dimension: 6, MaxElements: 400, M: 8, EfConstruction: 48, Metrics: metrics})
	insertAll(t, index, vectors[:150])
	ctx := context.Background()

	minBefore := append([]float32(nil), index.quantizer.MinValues()...)
	maxBefore := append([]float32(nil), index.quantizer.MaxValues()...)

	for _, v := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		bad := []float32{0, 0, float32(v), 0, 0, 0}
		err := index.Insert(ctx, bad, 999)
		assert.ErrorIs(t, err, ErrInvalidArgument, "value %v", v)

		_, err = index.Search(ctx, bad, 1, 16)
		assert.ErrorIs(t, err, ErrInvalidArgument, "value %v", v)
	}
	assert.Equal(t, 150, index.Len())
	assert.Equal(t, minBefore, index.quantizer.MinValues())
	assert.Equal(t, maxBefore, index.quantizer.MaxValues())

	// Quantized traversal still finds the stored vectors
	for i := 150; i < len(vectors); i++ {
		require.NoError(t, index.Insert(ctx, vectors[i], uint64(i)))
	}
	misses := 0
	for i, vec := range vectors {
		results, err := index.Search(ctx, vec, 1, 32)
		require.NoError(t, err)
		require.Len(t, results, 1)
		if results[0].Label != uint64(i) {
			misses++
		}
	}
	assert.LessOrEqual(t, misses, len(vectors)/20)
}

func TestInsert_FailuresAreCounted(t *testing.T) {
	metrics := obs.NewMetrics()
	index := newTestIndex(t, Config{Dimension: 3, MaxElements: 1, M: 4, Metrics: metrics})
	ctx := context.Background()

	tests := []struct {
		name   string
		vector []float32
	}{
		{"dimension mismatch", []float32{1, 2}},
		{"non-finite component", []float32{1, float32(math.NaN()), 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, index.Insert(ctx, tt.vector, 0), ErrInvalidArgument)
		})
	}
	require.NoError(t, index.Insert(ctx, []float32{1, 2, 3}, 1))
	require.ErrorIs(t, index.Insert(ctx, []float32{1, 2, 3}, 2), ErrCapacityExceeded)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	counters := map[string]float64{}
	for _, f := range families {
		if c := f.GetMetric()[0].Counter; c != nil {
			counters[f.GetName()] = c.GetValue()
		}
	}
	assert.Equal(t, 1.0, counters["quickhnsw_inserts_total"])
	assert.Equal(t, 3.0, counters["quickhnsw_insert_errors_total"])
}

func TestInsert_CountMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	index := newTestIndex(t, Config{Dimension: 6, MaxElements: 50, M: 6})

	for i, vec := range generateTestVectors(rng, 50, 6) {
		require.NoError(t, index.Insert(context.Background(), vec, uint64(i)))
		require.Equal(t, i+1, index.Len())
	}
	require.NoError(t, index.CheckInvariants())
}

func TestInsert_CopiesVector(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 2, MaxElements: 2, M: 4})
	vec := []float32{1, 1}
	require.NoError(t, index.Insert(context.Background(), vec, 7))
	vec[0] = 100

	results, err := index.Search(context.Background(), []float32{1, 1}, 1, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float32(0), results[0].Distance)
}

func TestSearch_FourBitQuantization(t *testing.T) {
	index := newTestIndex(t, Config{
		Dimension:        8,
		MaxElements:      200,
		M:                16,
		EfConstruction:   64,
		QuantBits:        4,
		EnablePrefetch:   true,
		PrefetchDistance: 3,
	})

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, index.Insert(ctx, sinVector(8, float64(i)*2), uint64(i)))
	}

	results, err := index.Search(ctx, sinVector(8, 0), 3, 32)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, uint64(0), results[0].Label)
}

func TestSearch_PrefetchDoesNotChangeResults(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	vectors := generateTestVectors(rng, 200, 8)
	queries := generateTestVectors(rng, 10, 8)

	plain := newTestIndex(t, Config{Dimension: 8, MaxElements: 200, M: 8, EfConstruction: 40})
	prefetch := newTestIndex(t, Config{Dimension: 8, MaxElements: 200, M: 8, EfConstruction: 40, EnablePrefetch: true})
	insertAll(t, plain, vectors)
	insertAll(t, prefetch, vectors)

	for _, q := range queries {
		a, err := plain.Search(context.Background(), q, 5, 20)
		require.NoError(t, err)
		b, err := prefetch.Search(context.Background(), q, 5, 20)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestIndex_Close(t *testing.T) {
	index, err := NewHNSW(&Config{Dimension: 2, MaxElements: 4, M: 4, RandomSeed: 1})
	require.NoError(t, err)
	require.NoError(t, index.Insert(context.Background(), []float32{1, 2}, 1))

	require.NoError(t, index.Close())
	require.NoError(t, index.Close())

	assert.ErrorIs(t, index.Insert(context.Background(), []float32{1, 2}, 2), ErrClosed)
	_, err = index.Search(context.Background(), []float32{1, 2}, 1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = index.Rebuild(DefaultRebuildConfig())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, index.Len())
}

func TestIndex_StatsAndMemory(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	index := newTestIndex(t, Config{Dimension: 10, MaxElements: 100, M: 4, QuantBits: 4})
	insertAll(t, index, generateTestVectors(rng, 100, 10))

	stats := index.Stats()
	assert.Equal(t, 100, stats.Count)
	assert.Equal(t, 5, stats.CodeSize)
	assert.True(t, stats.HasEntry)
	require.Len(t, stats.LevelCounts, stats.MaxLevel+1)
	assert.Equal(t, 100, stats.LevelCounts[0])
	for l := 1; l < len(stats.LevelCounts); l++ {
		assert.LessOrEqual(t, stats.LevelCounts[l], stats.LevelCounts[l-1])
	}
	assert.Greater(t, stats.AvgDegree0, 0.0)
	assert.LessOrEqual(t, stats.AvgDegree0, float64(stats.M0))
	assert.Greater(t, stats.MemoryBytes, int64(100*10*4))
	assert.Equal(t, stats.MemoryBytes, index.MemoryUsage())
}

func TestIndex_MetricsAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	metrics := obs.NewMetrics()

	index := newTestIndex(t, Config{Dimension: 3, MaxElements: 2, M: 4, Logger: &logger, Metrics: metrics})
	ctx := context.Background()
	require.NoError(t, index.Insert(ctx, []float32{1, 2, 3}, 1))
	require.NoError(t, index.Insert(ctx, []float32{3, 2, 1}, 2))
	require.Error(t, index.Insert(ctx, []float32{0, 0, 0}, 3))
	_, err := index.Search(ctx, []float32{1, 2, 3}, 1, 4)
	require.NoError(t, err)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		m := f.GetMetric()[0]
		switch {
		case m.Counter != nil:
			values[f.GetName()] = m.Counter.GetValue()
		case m.Gauge != nil:
			values[f.GetName()] = m.Gauge.GetValue()
		}
	}
	assert.Equal(t, 2.0, values["quickhnsw_inserts_total"])
	assert.Equal(t, 1.0, values["quickhnsw_insert_errors_total"])
	assert.Equal(t, 1.0, values["quickhnsw_searches_total"])
	assert.Equal(t, 2.0, values["quickhnsw_nodes"])

	assert.Contains(t, buf.String(), `"component":"hnsw"`)
	assert.Contains(t, buf.String(), `"message":"inserted"`)
}

func TestErrors_Alias(t *testing.T) {
	assert.True(t, errors.Is(ErrCorrupt, ErrFormat))
}

func BenchmarkInsert(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	vectors := generateTestVectors(rng, b.N, 64)
	index := newTestIndex(b, Config{Dimension: 64, MaxElements: b.N + 1, M: 16, EfConstruction: 100})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := index.Insert(ctx, vectors[i], uint64(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	index := newTestIndex(b, Config{Dimension: 64, MaxElements: 5000, M: 16, EfConstruction: 100})
	insertAll(b, index, generateTestVectors(rng, 5000, 64))
	queries := generateTestVectors(rng, 100, 64)
	ctx := context.Background()

	for _, ef := range []int{32, 128} {
		b.Run(fmt.Sprintf("ef%d", ef), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := index.Search(ctx, queries[i%len(queries)], 10, ef); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func TestIndex_Each(t *testing.T) {
	index := newTestIndex(t, Config{Dimension: 2, MaxElements: 5, M: 4})
	insertAll(t, index, [][]float32{{0, 1}, {2, 3}, {4, 5}})

	var labels []uint64
	var firsts []float32
	index.Each(func(label uint64, vector []float32) bool {
		labels = append(labels, label)
		firsts = append(firsts, vector[0])
		return label < 1
	})
	assert.Equal(t, []uint64{0, 1}, labels)
	assert.Equal(t, []float32{0, 2}, firsts)
}
