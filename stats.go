package voyago

// LevelStats describes one graph layer.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections float64
}

// Stats is a point-in-time summary of an index.
type Stats struct {
	Dimension      int
	Metric         string
	M              int
	EFConstruction int
	EFSearch       int

	Live    int // entries returned by queries
	Deleted int // tombstoned entries still held in the graph
	Slots   int // Live + Deleted

	MaxLevel   int
	EntryPoint int64 // -1 when empty
	Levels     []LevelStats
}

// Stats returns a summary of the index and its graph.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	gs := idx.graph.Stats()
	st := Stats{
		Dimension:      idx.dim,
		Metric:         idx.metric.String(),
		M:              idx.graph.M(),
		EFConstruction: idx.graph.EFConstruction(),
		EFSearch:       idx.efSearch,
		Live:           idx.ids.Len(),
		Deleted:        idx.store.Deleted(),
		Slots:          idx.store.Len(),
		MaxLevel:       gs.MaxLevel,
		EntryPoint:     gs.EntryPoint,
	}
	if len(gs.Levels) > 0 {
		st.Levels = make([]LevelStats, len(gs.Levels))
		for i, l := range gs.Levels {
			st.Levels[i] = LevelStats(l)
		}
	}
	return st
}
