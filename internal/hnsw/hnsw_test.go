package hnsw

import (
	"math"
	"testing"

	"github.com/hupe1980/voyago/distance"
	"github.com/hupe1980/voyago/internal/queue"
	"github.com/hupe1980/voyago/internal/vectorstore"
	"github.com/hupe1980/voyago/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSeed(seed int64) func(o *Options) {
	return func(o *Options) { o.RandomSeed = &seed }
}

func buildGraph(t *testing.T, vecs [][]float32, optFns ...func(o *Options)) (*HNSW, *vectorstore.Store) {
	t.Helper()

	store, err := vectorstore.New(len(vecs[0]))
	require.NoError(t, err)

	h, err := New(store, append([]func(o *Options){withSeed(42)}, optFns...)...)
	require.NoError(t, err)

	for _, v := range vecs {
		slot, err := store.Append(v)
		require.NoError(t, err)
		require.NoError(t, h.Insert(slot))
	}
	return h, store
}

func toResults(items []queue.Item) []testutil.SearchResult {
	out := make([]testutil.SearchResult, len(items))
	for i, it := range items {
		out[i] = testutil.SearchResult{ID: uint64(it.Node), Distance: it.Distance}
	}
	return out
}

func TestNewValidatesParameters(t *testing.T) {
	store, err := vectorstore.New(4)
	require.NoError(t, err)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = New(store, func(o *Options) { o.M = 1 })
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = New(store, func(o *Options) { o.EFConstruction = 0 })
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = New(store, func(o *Options) { o.DistanceType = distance.Metric(99) })
	assert.ErrorIs(t, err, ErrInvalidParameters)

	h, err := New(store)
	require.NoError(t, err)
	assert.Equal(t, DefaultM, h.M())
	assert.Equal(t, DefaultEFConstruction, h.EFConstruction())
}

func TestEmptyGraph(t *testing.T) {
	store, err := vectorstore.New(3)
	require.NoError(t, err)
	h, err := New(store)
	require.NoError(t, err)

	res, err := h.Search([]float32{1, 2, 3}, 5, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	_, ok := h.EntryPoint()
	assert.False(t, ok)
	assert.Equal(t, -1, h.MaxLevel())
	assert.NoError(t, h.Validate())
}

func TestSearchInvalidK(t *testing.T) {
	h, _ := buildGraph(t, [][]float32{{1, 2}})

	_, err := h.Search([]float32{1, 2}, 0, SearchOptions{})
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = h.BruteSearch([]float32{1, 2}, -1)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestInsertRequiresDenseSlots(t *testing.T) {
	h, _ := buildGraph(t, [][]float32{{1, 2}})

	err := h.Insert(5)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestSelfMatch(t *testing.T) {
	vecs := testutil.NewRNG(1).UniformVectors(500, 16)
	h, _ := buildGraph(t, vecs)

	for i := 0; i < len(vecs); i += 25 {
		res, err := h.Search(vecs[i], 1, SearchOptions{EF: 64})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint32(i), res[0].Node)
		assert.Equal(t, float32(0), res[0].Distance)
	}
}

func TestRecall(t *testing.T) {
	const (
		n   = 2000
		dim = 32
		k   = 10
	)

	rng := testutil.NewRNG(7)
	vecs := rng.UniformVectors(n, dim)
	queries := rng.UniformVectors(50, dim)

	h, _ := buildGraph(t, vecs)

	var total float64
	for _, q := range queries {
		approx, err := h.Search(q, k, SearchOptions{EF: 128})
		require.NoError(t, err)
		truth := testutil.ExactTopK(q, vecs, k, distance.SquaredL2)
		total += testutil.ComputeRecall(truth, toResults(approx))
	}

	recall := total / float64(len(queries))
	assert.GreaterOrEqual(t, recall, 0.9, "recall@%d = %.3f", k, recall)
}

func TestResultsOrdered(t *testing.T) {
	vecs := testutil.NewRNG(3).UniformVectors(300, 8)
	h, _ := buildGraph(t, vecs)

	res, err := h.Search(vecs[0], 20, SearchOptions{EF: 50})
	require.NoError(t, err)
	require.Len(t, res, 20)

	for i := 1; i < len(res); i++ {
		assert.False(t, queue.Before(res[i], res[i-1]), "result %d out of order", i)
	}
}

func TestTieBreakBySlot(t *testing.T) {
	// Four identical vectors all tie with the query.
	vecs := [][]float32{{1, 1}, {1, 1}, {1, 1}, {1, 1}, {9, 9}}
	h, _ := buildGraph(t, vecs)

	res, err := h.Search([]float32{1, 1}, 3, SearchOptions{EF: 10})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{res[0].Node, res[1].Node, res[2].Node})
}

func TestSearchSkipsTombstones(t *testing.T) {
	vecs := testutil.NewRNG(11).UniformVectors(400, 8)
	h, store := buildGraph(t, vecs)

	for slot := uint32(0); slot < 400; slot += 2 {
		require.NoError(t, store.MarkDeleted(slot))
	}

	for i := 0; i < 20; i++ {
		res, err := h.Search(vecs[i], 10, SearchOptions{EF: 64})
		require.NoError(t, err)
		assert.NotEmpty(t, res)
		for _, r := range res {
			assert.False(t, store.IsDeleted(r.Node), "tombstoned slot %d returned", r.Node)
		}
	}
}

func TestAllDeleted(t *testing.T) {
	vecs := testutil.NewRNG(5).UniformVectors(10, 4)
	h, store := buildGraph(t, vecs)
	for slot := range uint32(10) {
		require.NoError(t, store.MarkDeleted(slot))
	}

	res, err := h.Search(vecs[0], 3, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDeletedEntryPointIsReplaced(t *testing.T) {
	vecs := testutil.NewRNG(9).UniformVectors(200, 8)
	h, store := buildGraph(t, vecs)

	ep, ok := h.EntryPoint()
	require.True(t, ok)
	require.NoError(t, store.MarkDeleted(ep))

	extra, err := store.Append(vecs[0])
	require.NoError(t, err)
	require.NoError(t, h.Insert(extra))

	newEP, ok := h.EntryPoint()
	require.True(t, ok)
	assert.False(t, store.IsDeleted(newEP))
	assert.NoError(t, h.Validate())
}

func TestDescentPrefersLiveOnTies(t *testing.T) {
	store, err := vectorstore.New(2)
	require.NoError(t, err)
	for _, v := range [][]float32{{10, 0}, {1, 0}, {-1, 0}} {
		_, err := store.Append(v)
		require.NoError(t, err)
	}
	h, err := New(store)
	require.NoError(t, err)
	require.NoError(t, h.Restore(0, 1, [][]uint32{{1, 2}, {1, 2}}))
	require.NoError(t, h.Restore(1, 1, [][]uint32{{0, 2}, {0, 2}}))
	require.NoError(t, h.Restore(2, 1, [][]uint32{{0, 1}, {0, 1}}))
	require.NoError(t, h.SetEntryPoint(0))
	require.NoError(t, h.Validate())

	q := []float32{0, 0}
	start := queue.Item{Node: 0, Distance: h.dist(q, 0)}

	got := h.greedyDescend(q, start, 1, 0)
	assert.Equal(t, uint32(1), got.Node, "lowest slot wins a tie between live nodes")

	require.NoError(t, store.MarkDeleted(1))
	got = h.greedyDescend(q, start, 1, 0)
	assert.Equal(t, uint32(2), got.Node)
	assert.Equal(t, float32(1), got.Distance)

	res, err := h.Search(q, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint32(2), res[0].Node)
	assert.Equal(t, uint32(0), res[1].Node)
}

func TestKeepPrunedFillsNeighborLists(t *testing.T) {
	vecs := testutil.NewRNG(17).ClusteredVectors(600, 8, 6, 0.05)
	plain, _ := buildGraph(t, vecs)
	kept, _ := buildGraph(t, vecs, func(o *Options) { o.KeepPruned = true })

	require.NoError(t, kept.Validate())
	assert.Greater(t, kept.Stats().Levels[0].Connections, plain.Stats().Levels[0].Connections)

	for i := 0; i < len(vecs); i += 30 {
		res, err := kept.Search(vecs[i], 1, SearchOptions{EF: 64})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint32(i), res[0].Node)
	}
}

func TestNeighborCaps(t *testing.T) {
	vecs := testutil.NewRNG(13).UniformVectors(1000, 8)
	h, _ := buildGraph(t, vecs, func(o *Options) { o.M = 6 })

	require.NoError(t, h.Validate())

	for slot := range uint32(h.Len()) {
		level, err := h.Level(slot)
		require.NoError(t, err)
		for layer := 0; layer <= level; layer++ {
			conns, err := h.Neighbors(slot, layer)
			require.NoError(t, err)
			if layer == 0 {
				assert.LessOrEqual(t, len(conns), 12)
			} else {
				assert.LessOrEqual(t, len(conns), 6)
			}
			assert.NotContains(t, conns, slot)
		}
	}
}

func TestLevelDistribution(t *testing.T) {
	const n = 5000
	vecs := testutil.NewRNG(17).UniformVectors(n, 2)
	h, _ := buildGraph(t, vecs, func(o *Options) { o.EFConstruction = 16 })

	st := h.Stats()
	require.GreaterOrEqual(t, len(st.Levels), 2)
	assert.Equal(t, n, st.Levels[0].Nodes)

	ratio := float64(st.Levels[1].Nodes) / float64(n)
	assert.InDelta(t, 1/math.E, ratio, 0.05)
}

func TestMaxVisitedBudget(t *testing.T) {
	vecs := testutil.NewRNG(21).UniformVectors(500, 8)
	h, _ := buildGraph(t, vecs)

	res, err := h.Search(vecs[0], 10, SearchOptions{EF: 200, MaxVisited: 5})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res), 5)
}

func TestBruteSearchMatchesExact(t *testing.T) {
	vecs := testutil.NewRNG(23).UniformVectors(100, 4)
	h, _ := buildGraph(t, vecs)

	q := []float32{0.5, 0.5, 0.5, 0.5}
	got, err := h.BruteSearch(q, 5)
	require.NoError(t, err)

	want := testutil.ExactTopK(q, vecs, 5, distance.SquaredL2)
	assert.Equal(t, want, toResults(got))
}

func TestCosineGraph(t *testing.T) {
	vecs := testutil.NewRNG(29).UnitVectors(300, 16)
	h, _ := buildGraph(t, vecs, func(o *Options) { o.DistanceType = distance.Cosine })

	res, err := h.Search(vecs[42], 1, SearchOptions{EF: 64})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint32(42), res[0].Node)
	assert.InDelta(t, 0, res[0].Distance, 1e-5)
}

func TestRestoreAndValidate(t *testing.T) {
	vecs := testutil.NewRNG(31).UniformVectors(150, 8)
	h, store := buildGraph(t, vecs)

	clone, err := New(store, withSeed(1))
	require.NoError(t, err)

	for slot := range uint32(h.Len()) {
		level, err := h.Level(slot)
		require.NoError(t, err)
		conns := make([][]uint32, level+1)
		for l := range conns {
			conns[l], err = h.Neighbors(slot, l)
			require.NoError(t, err)
		}
		require.NoError(t, clone.Restore(slot, level, conns))
	}
	ep, _ := h.EntryPoint()
	require.NoError(t, clone.SetEntryPoint(ep))
	require.NoError(t, clone.Validate())

	q := vecs[10]
	a, err := h.Search(q, 5, SearchOptions{EF: 32})
	require.NoError(t, err)
	b, err := clone.Search(q, 5, SearchOptions{EF: 32})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRestoreRejectsCorruptInput(t *testing.T) {
	store, err := vectorstore.New(2)
	require.NoError(t, err)
	h, err := New(store)
	require.NoError(t, err)

	assert.ErrorIs(t, h.Restore(1, 0, [][]uint32{nil}), ErrCorruptGraph)
	assert.ErrorIs(t, h.Restore(0, 2, [][]uint32{nil}), ErrCorruptGraph)

	require.NoError(t, h.Restore(0, 0, [][]uint32{{7}}))
	require.NoError(t, h.SetEntryPoint(0))
	assert.ErrorIs(t, h.Validate(), ErrCorruptGraph)

	assert.ErrorIs(t, h.SetEntryPoint(3), ErrCorruptGraph)
}

func TestNeighborsErrors(t *testing.T) {
	h, _ := buildGraph(t, [][]float32{{1}, {2}})

	_, err := h.Neighbors(9, 0)
	var nf *ErrNodeNotFound
	assert.ErrorAs(t, err, &nf)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = h.Neighbors(0, 40)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}
