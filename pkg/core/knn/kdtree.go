package knn

import (
	"fmt"
	"sort"

	"github.com/sanonone/rfield/pkg/core/types"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// KDTree is an exact neighbor index backed by gonum's kd-tree. Distances are
// squared Euclidean.
type KDTree struct {
	tree *kdtree.Tree
	dims int
	size int
}

// NewKDTree returns an empty KDTree.
func NewKDTree() *KDTree {
	return &KDTree{}
}

// Build indexes points. The slice is copied into tree-owned storage, since
// the kd-tree reorders its input while partitioning.
func (t *KDTree) Build(points [][]float64) error {
	dims, err := checkDims(points)
	if err != nil {
		return err
	}
	set := make(cellPoints, len(points))
	for i, p := range points {
		set[i] = cellPoint{coords: append([]float64(nil), p...), id: uint32(i)}
	}
	t.dims = dims
	t.size = len(set)
	t.tree = nil
	if len(set) > 0 {
		t.tree = kdtree.New(set, false)
	}
	return nil
}

// Search returns the k nearest indexed points to query.
func (t *KDTree) Search(query []float64, k int) ([]types.Candidate, error) {
	if t.tree == nil || t.size == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != t.dims {
		return nil, fmt.Errorf("%w: query has %d components, want %d", ErrDimensionMismatch, len(query), t.dims)
	}
	if k <= 0 {
		return []types.Candidate{}, nil
	}
	if k > t.size {
		k = t.size
	}

	keeper := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keeper, cellPoint{coords: query})

	results := make([]types.Candidate, 0, k)
	for _, item := range keeper.Heap {
		// The keeper is seeded with a nil sentinel at infinite distance.
		if item.Comparable == nil {
			continue
		}
		p := item.Comparable.(cellPoint)
		results = append(results, types.Candidate{Id: p.id, Distance: item.Dist})
	}
	sortCandidates(results)
	return results, nil
}

// Len returns the number of indexed points.
func (t *KDTree) Len() int { return t.size }

// Info describes the index.
func (t *KDTree) Info() types.IndexInfo {
	return types.IndexInfo{Kind: string(KindKDTree), Metric: "euclidean", Dims: t.dims, Size: t.size}
}

// cellPoint is a kdtree.Comparable carrying the position of the point in the
// set the tree was built from.
type cellPoint struct {
	coords []float64
	id     uint32
}

// Compare implements the kdtree.Comparable interface.
func (p cellPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(cellPoint)
	return p.coords[d] - q.coords[d]
}

// Dims returns the number of dimensions.
func (p cellPoint) Dims() int { return len(p.coords) }

// Distance returns the squared Euclidean distance.
func (p cellPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(cellPoint)
	var sum float64
	for i := range p.coords {
		d := p.coords[i] - q.coords[i]
		sum += d * d
	}
	return sum
}

// cellPoints is a collection of cellPoint that satisfies kdtree.Interface.
type cellPoints []cellPoint

func (p cellPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p cellPoints) Len() int                              { return len(p) }
func (p cellPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method. Median of medians keeps the
// tree shape independent of any random source.
func (p cellPoints) Pivot(d kdtree.Dim) int {
	plane := cellPlane{cellPoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfMedians(plane))
}

// cellPlane implements sort.Interface and kdtree.SortSlicer along one axis.
type cellPlane struct {
	cellPoints
	kdtree.Dim
}

func (p cellPlane) Less(i, j int) bool {
	return p.cellPoints[i].coords[p.Dim] < p.cellPoints[j].coords[p.Dim]
}

func (p cellPlane) Slice(start, end int) kdtree.SortSlicer {
	return cellPlane{cellPoints: p.cellPoints[start:end], Dim: p.Dim}
}

func (p cellPlane) Swap(i, j int) {
	p.cellPoints[i], p.cellPoints[j] = p.cellPoints[j], p.cellPoints[i]
}

// sortCandidates orders by distance, breaking ties by id so results do not
// depend on traversal order.
func sortCandidates(c []types.Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Distance != c[j].Distance {
			return c[i].Distance < c[j].Distance
		}
		return c[i].Id < c[j].Id
	})
}
