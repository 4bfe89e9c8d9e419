package types

// Candidate is a neighbor found by a nearest-neighbor index: the position of
// the point inside the set the index was built over and its distance to the
// query.
type Candidate struct {
	Id       uint32
	Distance float64
}

// IndexInfo describes a neighbor index for logs and API responses.
type IndexInfo struct {
	Kind   string `json:"kind"`
	Metric string `json:"metric"`
	Dims   int    `json:"dims"`
	Size   int    `json:"size"`
}

// FieldInfo is the public description of a registered receptive field.
type FieldInfo struct {
	Name          string    `json:"name"`
	CellSize      []float64 `json:"cell_size"`
	BoundingRadii []float64 `json:"bounding_radii"`
	NumCells      int       `json:"num_cells"`
	Fitted        bool      `json:"fitted"`
	Generation    uint64    `json:"generation"`
	Points        int       `json:"points"`
	NonEmptyCells int       `json:"non_empty_cells"`
	MaxOccupancy  int       `json:"max_occupancy"`
	NeighborIndex string    `json:"neighbor_index"`
}
