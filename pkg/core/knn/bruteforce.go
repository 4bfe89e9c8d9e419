package knn

import (
	"fmt"

	"github.com/sanonone/rfield/pkg/core/distance"
	"github.com/sanonone/rfield/pkg/core/types"
)

// BruteForce stores all vectors and calculates the distance to every one of
// them during a search. It is exact for every supported metric and the
// cheapest option for coarse grids, where only a handful of cells exist.
type BruteForce struct {
	metric  distance.DistanceMetric
	distFn  distance.DistanceFunc
	vectors [][]float64
	dims    int
}

// NewBruteForce creates an empty BruteForce index for metric.
func NewBruteForce(metric distance.DistanceMetric) (*BruteForce, error) {
	fn, err := distance.GetFunc(metric)
	if err != nil {
		return nil, err
	}
	return &BruteForce{metric: metric, distFn: fn}, nil
}

// Build replaces the indexed set.
func (idx *BruteForce) Build(points [][]float64) error {
	dims, err := checkDims(points)
	if err != nil {
		return err
	}
	idx.dims = dims
	idx.vectors = make([][]float64, len(points))
	for i, p := range points {
		idx.vectors[i] = append([]float64(nil), p...)
	}
	return nil
}

// Search finds the k nearest vectors to the query vector.
func (idx *BruteForce) Search(query []float64, k int) ([]types.Candidate, error) {
	if len(idx.vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != idx.dims {
		return nil, fmt.Errorf("%w: query has %d components, want %d", ErrDimensionMismatch, len(query), idx.dims)
	}

	results := make([]types.Candidate, 0, len(idx.vectors))
	for i, vec := range idx.vectors {
		dist, err := idx.distFn(query, vec)
		if err != nil {
			return nil, err
		}
		results = append(results, types.Candidate{Id: uint32(i), Distance: dist})
	}

	sortCandidates(results)

	if k < 0 {
		k = 0
	}
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Len returns the number of indexed points.
func (idx *BruteForce) Len() int { return len(idx.vectors) }

// Info describes the index.
func (idx *BruteForce) Info() types.IndexInfo {
	return types.IndexInfo{Kind: string(KindBruteForce), Metric: string(idx.metric), Dims: idx.dims, Size: len(idx.vectors)}
}
