// Package knn provides the k-nearest-neighbor indexes used to fill empty
// receptive-field cells from their populated neighbors.
//
// Every implementation answers the same question over a fixed point set:
// which k points are closest to a query. The receptive field only depends on
// the Index interface, so the structure can be swapped per field: an exact
// kd-tree (the default), an exhaustive scan for tiny grids, or an approximate
// HNSW graph for very fine grids in many dimensions.
package knn

import (
	"errors"
	"fmt"

	"github.com/sanonone/rfield/pkg/core/distance"
	"github.com/sanonone/rfield/pkg/core/types"
)

// Kind names an Index implementation in configuration.
type Kind string

const (
	KindKDTree     Kind = "kdtree"
	KindBruteForce Kind = "bruteforce"
	KindHNSW       Kind = "hnsw"
)

var (
	// ErrEmptyIndex is returned by Search on an index built over no points.
	ErrEmptyIndex = errors.New("knn: index is empty")
	// ErrDimensionMismatch is returned when a point or query does not share
	// the dimensionality of the indexed set.
	ErrDimensionMismatch = errors.New("knn: dimension mismatch")
)

// Index defines the operations a neighbor index must support.
type Index interface {
	// Build replaces the indexed set. Candidate ids returned by Search are
	// positions in points.
	Build(points [][]float64) error
	// Search returns up to k candidates ordered by increasing distance.
	// Fewer than k are returned when the index holds fewer points.
	Search(query []float64, k int) ([]types.Candidate, error)
	// Len returns the number of indexed points.
	Len() int
	// Info describes the index.
	Info() types.IndexInfo
}

// Factory creates a fresh, empty Index. Receptive fields call it once per
// interpolation so indexes never outlive the centroids they were built on.
type Factory func() (Index, error)

// Config selects and parameterizes an Index implementation.
type Config struct {
	Kind   Kind                    `yaml:"kind" json:"kind"`
	Metric distance.DistanceMetric `yaml:"metric" json:"metric"`
	HNSW   HNSWConfig              `yaml:"hnsw" json:"hnsw"`
}

// DefaultConfig returns an exact kd-tree over squared Euclidean distance.
func DefaultConfig() Config {
	return Config{
		Kind:   KindKDTree,
		Metric: distance.Euclidean,
		HNSW:   DefaultHNSWConfig(),
	}
}

// NewFactory validates cfg and returns a Factory for it.
func NewFactory(cfg Config) (Factory, error) {
	metric, err := distance.ParseMetric(string(cfg.Metric))
	if err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindKDTree, "":
		if metric != distance.Euclidean {
			return nil, fmt.Errorf("knn: kdtree only supports the '%s' metric", distance.Euclidean)
		}
		return func() (Index, error) { return NewKDTree(), nil }, nil
	case KindBruteForce:
		if _, err := distance.GetFunc(metric); err != nil {
			return nil, err
		}
		return func() (Index, error) { return NewBruteForce(metric) }, nil
	case KindHNSW:
		hc := cfg.HNSW
		hc.Metric = metric
		if _, err := NewHNSW(hc); err != nil {
			return nil, err
		}
		return func() (Index, error) { return NewHNSW(hc) }, nil
	default:
		return nil, fmt.Errorf("knn: unknown index kind '%s'", cfg.Kind)
	}
}

// checkDims verifies that every point has the same, non-zero dimensionality
// and returns it.
func checkDims(points [][]float64) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	dims := len(points[0])
	if dims == 0 {
		return 0, fmt.Errorf("%w: zero-dimensional points", ErrDimensionMismatch)
	}
	for i, p := range points {
		if len(p) != dims {
			return 0, fmt.Errorf("%w: point %d has %d components, want %d", ErrDimensionMismatch, i, len(p), dims)
		}
	}
	return dims, nil
}
