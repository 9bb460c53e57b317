package voyago

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/voyago/distance"
	"github.com/hupe1980/voyago/internal/hnsw"
	"github.com/hupe1980/voyago/internal/idmap"
	"github.com/hupe1980/voyago/internal/vectorstore"
	"github.com/hupe1980/voyago/persistence"
)

// Result is a single query match.
type Result struct {
	ID       uint64
	Distance float32
}

// BatchInsertResult reports the outcome of InsertBatch per input position.
// IDs[i] is only meaningful when Errors[i] is nil.
type BatchInsertResult struct {
	IDs    []uint64
	Errors []error
}

// Failed returns the number of items that were not inserted.
func (r BatchInsertResult) Failed() int {
	n := 0
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// Index is an in-memory approximate nearest neighbor index.
//
// Queries take a shared lock and run in parallel; inserts and deletes take an
// exclusive lock over the vector store, identifier map and graph together.
type Index struct {
	mu sync.RWMutex

	dim    int
	metric distance.Metric

	store *vectorstore.Store
	ids   *idmap.Map
	graph *hnsw.HNSW

	efSearch         int
	maxVisited       int
	compression      persistence.Compression
	queryParallelism int

	// Insert policy, carried across UnmarshalBinary.
	levelMultiplier float64
	seed            *int64
	keepPruned      bool

	metrics MetricsCollector
	logger  *Logger
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int, metric distance.Metric, optFns ...Option) (*Index, error) {
	if dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}
	if !metric.Valid() {
		return nil, &ErrInvalidMetric{Metric: metric}
	}

	opts := applyOptions(optFns)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	store, err := vectorstore.New(dimension)
	if err != nil {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}

	graph, err := newGraph(store, metric, opts.m, opts.efConstruction, opts)
	if err != nil {
		return nil, err
	}

	idx := newIndex(dimension, metric, store, graph, opts)
	opts.logger.WithDimension(dimension).Debug("index created",
		"metric", metric.String(),
		"m", opts.m,
		"ef_construction", opts.efConstruction,
	)
	return idx, nil
}

var _ hnsw.Vectors = (*vectorstore.Store)(nil)

func newGraph(store *vectorstore.Store, metric distance.Metric, m, efConstruction int, opts options) (*hnsw.HNSW, error) {
	return hnsw.New(store, func(o *hnsw.Options) {
		o.M = m
		o.EFConstruction = efConstruction
		o.LevelMultiplier = opts.levelMultiplier
		o.KeepPruned = opts.keepPruned
		o.DistanceType = metric
		o.RandomSeed = opts.seed
	})
}

func newIndex(dim int, metric distance.Metric, store *vectorstore.Store, graph *hnsw.HNSW, opts options) *Index {
	parallelism := opts.queryParallelism
	if parallelism < 1 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	return &Index{
		dim:              dim,
		metric:           metric,
		store:            store,
		ids:              idmap.New(store),
		graph:            graph,
		efSearch:         opts.efSearch,
		maxVisited:       opts.maxVisited,
		compression:      opts.compression,
		queryParallelism: parallelism,
		levelMultiplier:  opts.levelMultiplier,
		seed:             opts.seed,
		keepPruned:       opts.keepPruned,
		metrics:          opts.metricsCollector,
		logger:           opts.logger,
	}
}

// Dimension returns the configured vector length.
func (idx *Index) Dimension() int { return idx.dim }

// Metric returns the configured distance metric.
func (idx *Index) Metric() distance.Metric { return idx.metric }

// M returns the configured fan-out.
func (idx *Index) M() int { return idx.graph.M() }

// EFConstruction returns the insertion frontier size.
func (idx *Index) EFConstruction() int { return idx.graph.EFConstruction() }

// EF returns the default query frontier size.
func (idx *Index) EF() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.efSearch
}

// SetEF changes the default query frontier size.
func (idx *Index) SetEF(ef int) error {
	if ef < 1 {
		return &ErrInvalidParameter{Name: "ef", Value: ef}
	}
	idx.mu.Lock()
	idx.efSearch = ef
	idx.mu.Unlock()
	return nil
}

// prepare validates v and returns the form that is stored or searched.
// For Cosine the vector is normalized into a copy; the caller's slice is
// never retained or modified.
func (idx *Index) prepare(v []float32) ([]float32, error) {
	if len(v) != idx.dim {
		return nil, &ErrDimensionMismatch{Expected: idx.dim, Actual: len(v)}
	}
	if idx.metric.NormalizesInput() {
		if out, ok := distance.NormalizeL2Copy(v); ok {
			return out, nil
		}
		// Zero vectors have no direction and are kept as given.
		return slices.Clone(v), nil
	}
	return v, nil
}

// insertLocked stores v under id (or the next free ID when id is nil) and
// wires it into the graph. The caller must hold the write lock.
func (idx *Index) insertLocked(v []float32, id *uint64) (uint64, error) {
	vec, err := idx.prepare(v)
	if err != nil {
		return 0, err
	}

	assigned, slot, err := idx.ids.Assign(id, func() (uint32, error) {
		return idx.store.Append(vec)
	})
	if err != nil {
		return 0, translateError(err)
	}

	if err := idx.graph.Insert(slot); err != nil {
		return 0, translateError(fmt.Errorf("wire slot %d: %w", slot, err))
	}
	return assigned, nil
}

// Insert adds a vector under the smallest ID that is not live and returns it.
func (idx *Index) Insert(ctx context.Context, vector []float32) (uint64, error) {
	start := time.Now()

	idx.mu.Lock()
	id, err := idx.insertLocked(vector, nil)
	idx.mu.Unlock()

	idx.metrics.RecordInsert(time.Since(start), err)
	idx.logger.LogInsert(ctx, id, len(vector), err)
	return id, err
}

// InsertWithID adds a vector under an explicit ID. The ID must not be live;
// IDs of deleted entries may be reused.
func (idx *Index) InsertWithID(ctx context.Context, id uint64, vector []float32) error {
	start := time.Now()

	idx.mu.Lock()
	_, err := idx.insertLocked(vector, &id)
	idx.mu.Unlock()

	idx.metrics.RecordInsert(time.Since(start), err)
	idx.logger.LogInsert(ctx, id, len(vector), err)
	return err
}

// InsertBatch inserts vectors in order under one write lock. ids is either nil
// (auto-assign) or the same length as vectors.
//
// A failing item does not affect the others: items before and after it are
// still inserted, and its error is reported at its position.
func (idx *Index) InsertBatch(ctx context.Context, vectors [][]float32, ids []uint64) BatchInsertResult {
	start := time.Now()
	result := BatchInsertResult{
		IDs:    make([]uint64, len(vectors)),
		Errors: make([]error, len(vectors)),
	}

	if ids != nil && len(ids) != len(vectors) {
		err := fmt.Errorf("%w: %d ids for %d vectors", ErrBatchLength, len(ids), len(vectors))
		for i := range result.Errors {
			result.Errors[i] = err
		}
		idx.metrics.RecordBatchInsert(len(vectors), len(vectors), time.Since(start))
		idx.logger.LogBatchInsert(ctx, len(vectors), len(vectors))
		return result
	}

	idx.mu.Lock()
	for i, v := range vectors {
		if err := ctx.Err(); err != nil {
			result.Errors[i] = err
			continue
		}
		var want *uint64
		if ids != nil {
			want = &ids[i]
		}
		result.IDs[i], result.Errors[i] = idx.insertLocked(v, want)
	}
	idx.mu.Unlock()

	failed := result.Failed()
	idx.metrics.RecordBatchInsert(len(vectors), failed, time.Since(start))
	idx.logger.LogBatchInsert(ctx, len(vectors), failed)
	return result
}

// Delete tombstones id. The vector stays in the graph as a waypoint but is
// never returned again. Deleting an absent or already deleted ID returns
// ErrUnknownID.
func (idx *Index) Delete(ctx context.Context, id uint64) error {
	start := time.Now()

	idx.mu.Lock()
	err := translateError(idx.ids.Release(id))
	idx.mu.Unlock()

	idx.metrics.RecordDelete(time.Since(start), err)
	idx.logger.LogDelete(ctx, id, err)
	return err
}

// Contains reports whether id is live.
func (idx *Index) Contains(id uint64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ids.Contains(id)
}

// Size returns the number of live entries.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ids.Len()
}

// IDs returns the live IDs in ascending order.
func (idx *Index) IDs() []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ids.IDs()
}

// Vector returns a copy of the stored vector for id. For Cosine indexes this
// is the normalized form.
func (idx *Index) Vector(id uint64) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	slot, err := idx.ids.Resolve(id)
	if err != nil {
		return nil, translateError(err)
	}
	v, err := idx.store.Get(slot)
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

// Query returns up to k live entries closest to vector, ordered by ascending
// distance with ties broken by insertion order. An empty index yields an
// empty result.
func (idx *Index) Query(ctx context.Context, vector []float32, k int, optFns ...QueryOption) ([]Result, error) {
	start := time.Now()

	idx.mu.RLock()
	results, err := idx.queryLocked(ctx, vector, k, optFns)
	idx.mu.RUnlock()

	idx.metrics.RecordSearch(k, time.Since(start), err)
	idx.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

// QueryBatch runs Query for every vector in parallel under one shared lock.
// The i-th result belongs to the i-th query. The first failing query cancels
// the rest and its error is returned.
func (idx *Index) QueryBatch(ctx context.Context, vectors [][]float32, k int, optFns ...QueryOption) ([][]Result, error) {
	start := time.Now()
	out := make([][]Result, len(vectors))

	idx.mu.RLock()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.queryParallelism)
	for i, v := range vectors {
		g.Go(func() error {
			res, err := idx.queryLocked(gctx, v, k, optFns)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	err := g.Wait()
	idx.mu.RUnlock()

	found := 0
	for _, r := range out {
		found += len(r)
	}
	idx.metrics.RecordSearch(k, time.Since(start), err)
	idx.logger.WithCount(len(vectors)).LogSearch(ctx, k, found, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (idx *Index) queryLocked(ctx context.Context, vector []float32, k int, optFns []QueryOption) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	q, err := idx.prepare(vector)
	if err != nil {
		return nil, err
	}

	qo := queryOptions{ef: idx.efSearch, maxVisited: idx.maxVisited}
	for _, fn := range optFns {
		if fn != nil {
			fn(&qo)
		}
	}

	items, err := idx.graph.Search(q, k, hnsw.SearchOptions{EF: qo.ef, MaxVisited: qo.maxVisited})
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]Result, 0, len(items))
	for _, it := range items {
		id, err := idx.ids.ExternalID(it.Node)
		if err != nil {
			return nil, translateError(err)
		}
		results = append(results, Result{ID: id, Distance: it.Distance})
	}
	return results, nil
}
