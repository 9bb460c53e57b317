package voyago

import (
	"log/slog"

	"github.com/hupe1980/voyago/internal/hnsw"
	"github.com/hupe1980/voyago/persistence"
)

const (
	// DefaultM is the default fan-out per node and layer.
	DefaultM = hnsw.DefaultM

	// DefaultEFConstruction is the default insertion frontier size.
	DefaultEFConstruction = hnsw.DefaultEFConstruction

	// DefaultEFSearch is the default query frontier size.
	DefaultEFSearch = 64
)

type options struct {
	m                 int
	efConstruction    int
	efSearch          int
	maxVisited        int
	levelMultiplier   float64
	seed              *int64
	keepPruned        bool
	compression       persistence.Compression
	expectedDimension int
	queryParallelism  int
	metricsCollector  MetricsCollector
	logger            *Logger
}

// Option configures New and the load functions.
//
// WithM and WithEFConstruction only apply to New; a loaded index keeps the
// values it was serialized with. Insert policy options (WithLevelMultiplier,
// WithRandomSeed, WithKeepPrunedConnections) apply to loads as well.
type Option func(*options)

// WithM sets the number of edges a node keeps per layer above 0.
// Layer 0 keeps up to 2*M.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction sets the candidate frontier used while inserting.
// Higher values build a better graph at the cost of insert speed.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithEFSearch sets the default query frontier. The effective frontier of a
// query is max(ef, k).
func WithEFSearch(ef int) Option {
	return func(o *options) {
		o.efSearch = ef
	}
}

// WithMaxVisited caps the number of nodes a query evaluates on the bottom
// layer. 0 means unbounded.
func WithMaxVisited(n int) Option {
	return func(o *options) {
		o.maxVisited = n
	}
}

// WithRandomSeed makes layer assignment reproducible.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// WithLevelMultiplier scales the exponential layer draw. With the default of
// 1.0 about 1/e of the nodes reach each successive layer.
func WithLevelMultiplier(ml float64) Option {
	return func(o *options) {
		o.levelMultiplier = ml
	}
}

// WithKeepPrunedConnections fills neighbor lists back up to capacity with
// candidates the neighbor selection heuristic rejected. Denser lists improve
// recall on clustered data at the cost of memory and insert time.
func WithKeepPrunedConnections(keep bool) Option {
	return func(o *options) {
		o.keepPruned = keep
	}
}

// WithCompression selects the compression applied to serialized blobs.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithExpectedDimension makes the load functions reject blobs of any other
// dimensionality.
func WithExpectedDimension(dim int) Option {
	return func(o *options) {
		o.expectedDimension = dim
	}
}

// WithQueryParallelism bounds the goroutines QueryBatch uses.
// Values below 1 mean GOMAXPROCS.
func WithQueryParallelism(n int) Option {
	return func(o *options) {
		o.queryParallelism = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &voyago.BasicMetricsCollector{}
//	idx, _ := voyago.New(128, distance.Cosine, voyago.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := voyago.NewJSONLogger(slog.LevelInfo)
//	idx, _ := voyago.New(128, distance.Euclidean, voyago.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		m:                DefaultM,
		efConstruction:   DefaultEFConstruction,
		efSearch:         DefaultEFSearch,
		levelMultiplier:  1.0,
		compression:      persistence.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

func (o *options) validate() error {
	switch {
	case o.m < 2:
		return &ErrInvalidParameter{Name: "M", Value: o.m}
	case o.efConstruction < 1:
		return &ErrInvalidParameter{Name: "efConstruction", Value: o.efConstruction}
	case o.efSearch < 1:
		return &ErrInvalidParameter{Name: "efSearch", Value: o.efSearch}
	case o.maxVisited < 0:
		return &ErrInvalidParameter{Name: "maxVisited", Value: o.maxVisited}
	case !o.compression.Valid():
		return &ErrInvalidParameter{Name: "compression", Value: int(o.compression)}
	}
	return nil
}

type queryOptions struct {
	ef         int
	maxVisited int
}

// QueryOption overrides index defaults for a single query.
type QueryOption func(*queryOptions)

// WithEF overrides the query frontier. Values below k are raised to k.
func WithEF(ef int) QueryOption {
	return func(o *queryOptions) {
		o.ef = ef
	}
}

// WithVisitedBudget overrides the visited-node budget. 0 means unbounded.
func WithVisitedBudget(n int) QueryOption {
	return func(o *queryOptions) {
		o.maxVisited = n
	}
}
