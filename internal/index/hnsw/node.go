package hnsw

// Node represents a single node in the HNSW graph.
// A node's position in Index.nodes is also the position of its vector in the
// flat vector array. Level and Code are fixed at creation.
type Node struct {
	Label uint64     // User-provided label
	Level int        // Highest layer this node exists in
	Code  []byte     // Inline quantized vector
	Links [][]uint32 // Neighbor ids per layer, 0..Level
}

func newNode(label uint64, level, codeSize, m, m0 int) Node {
	links := make([][]uint32, level+1)
	for l := range links {
		links[l] = make([]uint32, 0, layerCapacity(l, m, m0))
	}
	return Node{
		Label: label,
		Level: level,
		Code:  make([]byte, codeSize),
		Links: links,
	}
}

// layerCapacity returns the neighbor bound of a layer: M0 at layer 0, M above.
func layerCapacity(layer, m, m0 int) int {
	if layer == 0 {
		return m0
	}
	return m
}

func (h *Index) capacityAt(layer int) int {
	return layerCapacity(layer, h.config.M, h.m0)
}

// vector returns the full-precision vector of node id. The slice aliases
// index storage.
func (h *Index) vector(id uint32) []float32 {
	dim := h.config.Dimension
	start := int(id) * dim
	return h.vectors[start : start+dim : start+dim]
}
