package hnsw

// Stats summarizes the shape of the graph
type Stats struct {
	Count          int
	Capacity       int
	Dimension      int
	M              int
	M0             int
	EfConstruction int
	QuantBits      int
	CodeSize       int

	MaxLevel    int
	EntryLabel  uint64
	HasEntry    bool
	LevelCounts []int // Nodes present on each layer, index = layer

	AvgDegree0  float64 // Mean layer-0 out-degree
	MemoryBytes int64
}

// Stats returns a snapshot of the index shape
func (h *Index) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		Count:          len(h.nodes),
		Capacity:       h.config.MaxElements,
		Dimension:      h.config.Dimension,
		M:              h.config.M,
		M0:             h.m0,
		EfConstruction: h.config.EfConstruction,
		QuantBits:      h.config.QuantBits,
		CodeSize:       h.quantizer.CodeSize(),
		MaxLevel:       h.maxLevel,
		MemoryBytes:    h.memoryUsageLocked(),
	}

	if len(h.nodes) == 0 {
		return s
	}

	s.HasEntry = true
	s.EntryLabel = h.nodes[h.entryPoint].Label
	s.LevelCounts = make([]int, h.maxLevel+1)

	var degree0 int
	for i := range h.nodes {
		node := &h.nodes[i]
		for l := 0; l <= node.Level && l < len(s.LevelCounts); l++ {
			s.LevelCounts[l]++
		}
		degree0 += len(node.Links[0])
	}
	s.AvgDegree0 = float64(degree0) / float64(len(h.nodes))

	return s
}

// MemoryUsage returns approximate memory usage in bytes
func (h *Index) MemoryUsage() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.memoryUsageLocked()
}

func (h *Index) memoryUsageLocked() int64 {
	usage := int64(cap(h.vectors)) * 4
	for i := range h.nodes {
		node := &h.nodes[i]
		usage += int64(len(node.Code))
		for _, links := range node.Links {
			usage += int64(cap(links)) * 4
		}
		// Node header and slice headers (approximate)
		usage += 64
	}
	return usage + h.quantizer.MemoryUsage()
}

// Each calls fn with the label and stored vector of every node in insertion
// order until fn returns false. The vector must not be retained or modified.
// Each holds the read lock; fn must not call back into the index.
func (h *Index) Each(fn func(label uint64, vector []float32) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := range h.nodes {
		if !fn(h.nodes[i].Label, h.vector(uint32(i))) {
			return
		}
	}
}
