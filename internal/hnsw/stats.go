package hnsw

// Stats returns per-layer population and edge counts.
func (h *HNSW) Stats() Stats {
	maxLevel := h.MaxLevel()
	st := Stats{
		Nodes:      len(h.nodes),
		MaxLevel:   maxLevel,
		EntryPoint: h.entryPointAtomic.Load(),
	}
	if maxLevel < 0 {
		return st
	}

	top := maxLevel
	for _, n := range h.nodes {
		top = max(top, n.level)
	}

	levels := make([]LevelStats, top+1)
	for l := range levels {
		levels[l].Level = l
	}
	for _, n := range h.nodes {
		for l := 0; l <= n.level; l++ {
			levels[l].Nodes++
			levels[l].Connections += len(n.conns[l])
		}
	}
	for l := range levels {
		if levels[l].Nodes > 0 {
			levels[l].AvgConnections = float64(levels[l].Connections) / float64(levels[l].Nodes)
		}
	}
	st.Levels = levels
	return st
}
