package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/voyago/distance"
	"github.com/hupe1980/voyago/internal/queue"
	"github.com/hupe1980/voyago/internal/visited"
)

const (
	// layerNormalizationBase is the base constant for exponential layer probability distribution.
	// With a multiplier of 1.0 roughly 1/e of the nodes reach each successive layer.
	layerNormalizationBase = 1.0

	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// maxLevelCap bounds the level draw so a pathological RNG value cannot
	// allocate thousands of empty layers.
	maxLevelCap = 32

	// DefaultM is the default number of bidirectional links.
	DefaultM = 12

	// DefaultEFConstruction is the default size of the dynamic candidate list during insertion.
	DefaultEFConstruction = 200
)

// Options represents the options for configuring HNSW.
type Options struct {
	M               int
	EFConstruction  int
	LevelMultiplier float64
	// KeepPruned tops neighbor lists back up to capacity with candidates the
	// relative neighborhood rule rejected.
	KeepPruned      bool
	DistanceType    distance.Metric
	RandomSeed      *int64
}

// DefaultOptions contains the default options for HNSW.
var DefaultOptions = Options{
	M:               DefaultM,
	EFConstruction:  DefaultEFConstruction,
	LevelMultiplier: layerNormalizationBase,
	DistanceType:    distance.Euclidean,
}

type node struct {
	level int
	// conns holds one neighbor list per layer, ordered by distance to the node.
	conns [][]uint32
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	// Hot path: Atomic fields
	entryPointAtomic atomic.Int64 // -1 while the graph is empty
	maxLevelAtomic   atomic.Int32

	nodes []*node

	// Components
	vectors      Vectors
	distanceFunc distance.Func
	rng          *rand.Rand

	// Configuration
	maxConnectionsPerLayer int
	maxConnectionsLayer0   int
	layerMultiplier        float64
	opts                   Options

	// Resources
	minQueuePool *sync.Pool
	maxQueuePool *sync.Pool
	visitedPool  *sync.Pool
}

// New creates a new HNSW graph reading vectors from vectors.
func New(vectors Vectors, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if vectors == nil {
		return nil, fmt.Errorf("%w: nil vector source", ErrInvalidParameters)
	}
	if opts.M < minimumM {
		return nil, fmt.Errorf("%w: M must be at least %d, got %d", ErrInvalidParameters, minimumM, opts.M)
	}
	if opts.EFConstruction < 1 {
		return nil, fmt.Errorf("%w: efConstruction must be positive, got %d", ErrInvalidParameters, opts.EFConstruction)
	}
	if opts.LevelMultiplier <= 0 {
		opts.LevelMultiplier = layerNormalizationBase
	}

	distFunc, err := distance.Provider(opts.DistanceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	var seed int64
	if opts.RandomSeed != nil {
		seed = *opts.RandomSeed
	} else {
		seed = time.Now().UnixNano()
	}

	h := &HNSW{
		vectors:                vectors,
		distanceFunc:           distFunc,
		rng:                    rand.New(rand.NewSource(seed)), // nolint gosec
		maxConnectionsPerLayer: opts.M,
		maxConnectionsLayer0:   mmax0Multiplier * opts.M,
		layerMultiplier:        opts.LevelMultiplier,
		opts:                   opts,
	}
	h.entryPointAtomic.Store(-1)
	h.maxLevelAtomic.Store(-1)
	h.initPools()

	return h, nil
}

func (h *HNSW) initPools() {
	ef := h.opts.EFConstruction
	h.minQueuePool = &sync.Pool{
		New: func() any { return queue.NewMin(ef) },
	}
	h.maxQueuePool = &sync.Pool{
		New: func() any { return queue.NewMax(ef) },
	}
	h.visitedPool = &sync.Pool{
		New: func() any { return visited.New(1024) },
	}
}

// Len returns the number of nodes, tombstoned ones included.
func (h *HNSW) Len() int { return len(h.nodes) }

// M returns the configured fan-out.
func (h *HNSW) M() int { return h.maxConnectionsPerLayer }

// EFConstruction returns the insertion frontier size.
func (h *HNSW) EFConstruction() int { return h.opts.EFConstruction }

// EntryPoint returns the global entry point, or false if the graph is empty.
func (h *HNSW) EntryPoint() (uint32, bool) {
	ep := h.entryPointAtomic.Load()
	if ep < 0 {
		return 0, false
	}
	return uint32(ep), true
}

// MaxLevel returns the highest populated layer, or -1 if the graph is empty.
func (h *HNSW) MaxLevel() int { return int(h.maxLevelAtomic.Load()) }

// Level returns the top layer of slot.
func (h *HNSW) Level(slot uint32) (int, error) {
	if int(slot) >= len(h.nodes) {
		return 0, &ErrNodeNotFound{Slot: slot}
	}
	return h.nodes[slot].level, nil
}

// Neighbors returns the neighbor list of slot at layer.
// The returned slice must not be modified.
func (h *HNSW) Neighbors(slot uint32, layer int) ([]uint32, error) {
	if int(slot) >= len(h.nodes) {
		return nil, &ErrNodeNotFound{Slot: slot}
	}
	n := h.nodes[slot]
	if layer < 0 || layer > n.level {
		return nil, fmt.Errorf("%w: slot %d has no layer %d", ErrInvalidSlot, slot, layer)
	}
	return n.conns[layer], nil
}

func (h *HNSW) randomLevel() int {
	r := h.rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	level := int(math.Floor(-math.Log(r) * h.layerMultiplier))
	return min(level, maxLevelCap)
}

func (h *HNSW) capFor(layer int) int {
	if layer == 0 {
		return h.maxConnectionsLayer0
	}
	return h.maxConnectionsPerLayer
}

func (h *HNSW) dist(q []float32, slot uint32) float32 {
	return h.distanceFunc(q, h.vectors.At(slot))
}

func (h *HNSW) between(a, b uint32) float32 {
	return h.distanceFunc(h.vectors.At(a), h.vectors.At(b))
}

// Insert wires slot into the graph. Slots must be inserted densely in the
// order the vector store assigned them.
func (h *HNSW) Insert(slot uint32) error {
	if int(slot) != len(h.nodes) {
		return fmt.Errorf("%w: expected slot %d, got %d", ErrInvalidSlot, len(h.nodes), slot)
	}

	level := h.randomLevel()
	n := &node{level: level, conns: make([][]uint32, level+1)}
	h.nodes = append(h.nodes, n)

	if h.entryPointAtomic.Load() < 0 {
		h.entryPointAtomic.Store(int64(slot))
		h.maxLevelAtomic.Store(int32(level))
		return nil
	}

	h.ensureLiveEntryPoint(slot)

	vec := h.vectors.At(slot)
	epID, _ := h.EntryPoint()
	maxLevel := h.MaxLevel()

	// 1. Greedy search from top to node.Layer + 1
	curr := h.greedyDescend(vec, queue.Item{Node: epID, Distance: h.dist(vec, epID)}, maxLevel, level)

	// 2. Search and link from node.Layer down to 0
	for layer := min(level, maxLevel); layer >= 0; layer-- {
		candidates := h.searchLayer(vec, curr, layer, h.opts.EFConstruction, false, 0)
		if len(candidates) == 0 {
			continue
		}
		curr = candidates[0]

		selected := SelectNeighbors(candidates, h.maxConnectionsPerLayer, h.between, h.opts.KeepPruned)

		conns := make([]uint32, len(selected))
		for i, s := range selected {
			conns[i] = s.Node
		}
		n.conns[layer] = conns

		for _, s := range selected {
			h.addConnection(s.Node, slot, s.Distance, layer)
		}
	}

	if level > maxLevel {
		h.maxLevelAtomic.Store(int32(level))
		h.entryPointAtomic.Store(int64(slot))
	}

	return nil
}

// ensureLiveEntryPoint replaces a tombstoned entry point with the tallest live
// node, if any exists. exclude is the node currently being inserted.
func (h *HNSW) ensureLiveEntryPoint(exclude uint32) {
	ep, ok := h.EntryPoint()
	if !ok || !h.vectors.IsDeleted(ep) {
		return
	}

	best := int64(-1)
	bestLevel := -1
	for i, n := range h.nodes {
		s := uint32(i)
		if s == exclude || h.vectors.IsDeleted(s) {
			continue
		}
		if n.level > bestLevel {
			best = int64(i)
			bestLevel = n.level
		}
	}
	if best < 0 {
		// Every other node is tombstoned; the old entry point still routes.
		return
	}
	h.entryPointAtomic.Store(best)
	h.maxLevelAtomic.Store(int32(bestLevel))
}

// addConnection links target into source's neighbor list at layer, pruning
// the list back to capacity when it overflows.
func (h *HNSW) addConnection(source, target uint32, d float32, layer int) {
	src := h.nodes[source]
	if layer > src.level {
		return
	}
	conns := src.conns[layer]
	if slices.Contains(conns, target) {
		return
	}

	candidates := make([]queue.Item, 0, len(conns)+1)
	srcVec := h.vectors.At(source)
	for _, c := range conns {
		candidates = append(candidates, queue.Item{Node: c, Distance: h.dist(srcVec, c)})
	}
	candidates = append(candidates, queue.Item{Node: target, Distance: d})
	slices.SortFunc(candidates, compareItems)

	maxM := h.capFor(layer)
	selected := candidates
	if len(candidates) > maxM {
		selected = SelectNeighbors(candidates, maxM, h.between, h.opts.KeepPruned)
	}

	newConns := make([]uint32, len(selected))
	for i, s := range selected {
		newConns[i] = s.Node
	}
	src.conns[layer] = newConns
}

// greedyDescend walks from the top layer down to stopAbove+1, moving to the
// closest neighbor until no neighbor improves. Tombstoned nodes are still
// visited, but at equal distance a live node is preferred.
func (h *HNSW) greedyDescend(q []float32, curr queue.Item, fromLevel, stopAbove int) queue.Item {
	for layer := fromLevel; layer > stopAbove; layer-- {
		changed := true
		for changed {
			changed = false
			n := h.nodes[curr.Node]
			if layer > n.level {
				break
			}
			for _, next := range n.conns[layer] {
				cand := queue.Item{Node: next, Distance: h.dist(q, next)}
				if h.descendBefore(cand, curr) {
					curr = cand
					changed = true
				}
			}
		}
	}
	return curr
}

// descendBefore orders descent targets by distance, then live before
// tombstoned, then by slot.
func (h *HNSW) descendBefore(a, b queue.Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if da, db := h.vectors.IsDeleted(a.Node), h.vectors.IsDeleted(b.Node); da != db {
		return db
	}
	return a.Node < b.Node
}

// searchLayer runs a bounded best-first search on one layer and returns up to
// ef results ordered best first. When skipDeleted is set, tombstoned nodes are
// traversed but never returned. maxVisited of 0 means unbounded.
func (h *HNSW) searchLayer(q []float32, ep queue.Item, layer, ef int, skipDeleted bool, maxVisited int) []queue.Item {
	visited := h.visitedPool.Get().(*visited.VisitedSet)
	visited.Reset()
	defer h.visitedPool.Put(visited)

	candidates := h.minQueuePool.Get().(*queue.PriorityQueue) // MinHeap: stores best candidates to explore
	candidates.Reset()
	defer h.minQueuePool.Put(candidates)

	results := h.maxQueuePool.Get().(*queue.PriorityQueue) // MaxHeap: stores current top EF results
	results.Reset()
	defer h.maxQueuePool.Put(results)

	visited.Visit(ep.Node)
	candidates.PushItem(ep)
	if !skipDeleted || !h.vectors.IsDeleted(ep.Node) {
		results.PushItem(ep)
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()

		if results.Len() >= ef {
			worst, _ := results.TopItem()
			if queue.Before(worst, curr) {
				break
			}
		}

		n := h.nodes[curr.Node]
		if layer > n.level {
			continue
		}

		for _, next := range n.conns[layer] {
			if maxVisited > 0 && visited.Count() >= maxVisited {
				return results.Drain()
			}
			if !visited.Visit(next) {
				continue
			}

			item := queue.Item{Node: next, Distance: h.dist(q, next)}

			if results.Len() >= ef {
				worst, _ := results.TopItem()
				if !queue.Before(item, worst) {
					continue
				}
			}

			candidates.PushItem(item)
			if skipDeleted && h.vectors.IsDeleted(next) {
				continue
			}
			results.PushItem(item)
			if results.Len() > ef {
				_, _ = results.PopItem()
			}
		}
	}

	return results.Drain()
}

// Search returns up to k live slots closest to q, ordered by ascending
// distance with ties broken by ascending slot.
func (h *HNSW) Search(q []float32, k int, opts SearchOptions) ([]queue.Item, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	epID, ok := h.EntryPoint()
	if !ok {
		return nil, nil
	}

	ef := max(opts.EF, k)

	// 1. Greedy to layer 0
	curr := h.greedyDescend(q, queue.Item{Node: epID, Distance: h.dist(q, epID)}, h.MaxLevel(), 0)

	// 2. Best-first search of layer 0
	results := h.searchLayer(q, curr, 0, ef, true, opts.MaxVisited)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// BruteSearch scans every live slot and returns the exact k nearest. Tests
// use it as ground truth for the graph search.
func (h *HNSW) BruteSearch(q []float32, k int) ([]queue.Item, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	pq := queue.NewMax(k + 1)
	for i := range h.nodes {
		slot := uint32(i)
		if h.vectors.IsDeleted(slot) {
			continue
		}
		pq.PushItem(queue.Item{Node: slot, Distance: h.dist(q, slot)})
		if pq.Len() > k {
			_, _ = pq.PopItem()
		}
	}
	return pq.Drain(), nil
}

// Restore appends a node with a known level and edge lists. It is used when
// rebuilding a graph from a serialized form; call Validate once all nodes
// have been restored.
func (h *HNSW) Restore(slot uint32, level int, conns [][]uint32) error {
	if int(slot) != len(h.nodes) {
		return fmt.Errorf("%w: expected slot %d, got %d", ErrCorruptGraph, len(h.nodes), slot)
	}
	if level < 0 || level > maxLevelCap || len(conns) != level+1 {
		return fmt.Errorf("%w: slot %d has level %d with %d layers", ErrCorruptGraph, slot, level, len(conns))
	}
	h.nodes = append(h.nodes, &node{level: level, conns: conns})
	return nil
}

// SetEntryPoint installs the entry point of a restored graph.
func (h *HNSW) SetEntryPoint(slot uint32) error {
	if int(slot) >= len(h.nodes) {
		return fmt.Errorf("%w: entry point %d out of range", ErrCorruptGraph, slot)
	}
	h.entryPointAtomic.Store(int64(slot))
	h.maxLevelAtomic.Store(int32(h.nodes[slot].level))
	return nil
}

// Validate checks the layer invariant: every edge at a layer points at an
// existing node that participates in that layer.
func (h *HNSW) Validate() error {
	for i, n := range h.nodes {
		for layer, conns := range n.conns {
			if len(conns) > h.capFor(layer) {
				return fmt.Errorf("%w: slot %d layer %d has %d edges", ErrCorruptGraph, i, layer, len(conns))
			}
			for _, c := range conns {
				if int(c) >= len(h.nodes) {
					return fmt.Errorf("%w: slot %d references missing slot %d", ErrCorruptGraph, i, c)
				}
				if h.nodes[c].level < layer {
					return fmt.Errorf("%w: slot %d references slot %d above its level", ErrCorruptGraph, i, c)
				}
			}
		}
	}
	if _, ok := h.EntryPoint(); len(h.nodes) > 0 && !ok {
		return fmt.Errorf("%w: missing entry point", ErrCorruptGraph)
	}
	return nil
}
