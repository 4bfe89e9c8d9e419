package knn

// node is a single vertex of the HNSW graph: one indexed point and its
// neighbor lists, one per layer the node lives on.
type node struct {
	// id is the position of the point in the set passed to Build.
	id uint32
	// vector holds the point in full precision. Nil when the index stores
	// half precision.
	vector []float64
	// vectorF16 holds the point as raw float16 bits.
	vectorF16 []uint16
	// connections[l] lists the neighbor ids at layer l; connections[0] is
	// the base layer.
	connections [][]uint32
}
