package knn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sanonone/rfield/pkg/core/distance"
	"github.com/sanonone/rfield/pkg/core/types"
)

// HNSW is an approximate neighbor index built on a Hierarchical Navigable
// Small World graph. It trades exactness for sub-linear queries, which only
// pays off on fine grids with thousands of populated cells.
//
// An HNSW index is rebuilt from scratch by every Build and is not safe for
// concurrent use.
type HNSW struct {
	cfg   HNSWConfig
	mMax0 int
	rng   *rand.Rand

	distFn    distance.DistanceFunc
	distF16Fn distance.DistanceFuncF16

	nodes        []*node
	entrypointID uint32
	maxLevel     int
	dims         int

	visited *BitSet
}

// NewHNSW creates an empty HNSW index.
func NewHNSW(cfg HNSWConfig) (*HNSW, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	h := &HNSW{
		cfg:      cfg,
		mMax0:    cfg.M * 2, // A common heuristic is to double m for layer 0
		maxLevel: -1,
		visited:  NewBitSet(256),
	}

	var err error
	switch cfg.Precision {
	case distance.Float64:
		h.distFn, err = distance.GetFunc(cfg.Metric)
	case distance.Float16:
		h.distF16Fn, err = distance.GetFloat16Func(cfg.Metric)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Build replaces the graph with one over points. Insertion follows the order
// of points and level assignment uses the configured seed, so equal inputs
// give equal graphs.
func (h *HNSW) Build(points [][]float64) error {
	dims, err := checkDims(points)
	if err != nil {
		return err
	}
	h.rng = rand.New(rand.NewSource(h.cfg.Seed))
	h.nodes = make([]*node, 0, len(points))
	h.maxLevel = -1
	h.entrypointID = 0
	h.dims = dims
	h.visited = NewBitSet(uint32(len(points)))

	for i, p := range points {
		h.add(uint32(i), p)
	}
	return nil
}

// Search returns up to k approximate nearest neighbors of query.
func (h *HNSW) Search(query []float64, k int) ([]types.Candidate, error) {
	if h.maxLevel == -1 {
		return nil, ErrEmptyIndex
	}
	if len(query) != h.dims {
		return nil, fmt.Errorf("%w: query has %d components, want %d", ErrDimensionMismatch, len(query), h.dims)
	}
	if k <= 0 {
		return []types.Candidate{}, nil
	}

	q := h.prepare(query)

	// 1) Iterative top-down search
	current := h.entrypointID
	for l := h.maxLevel; l > 0; l-- {
		nearest := h.searchLayer(q, current, 1, l, 1)
		if len(nearest) == 0 {
			return nil, fmt.Errorf("knn: hnsw search failed at level %d", l)
		}
		current = nearest[0].Id
	}

	// 2) Base layer search
	ef := h.cfg.EfSearch
	if ef < k {
		ef = k
	}
	results := h.searchLayer(q, current, k, 0, ef)
	sortCandidates(results)
	return results, nil
}

// Len returns the number of indexed points.
func (h *HNSW) Len() int { return len(h.nodes) }

// Info describes the index.
func (h *HNSW) Info() types.IndexInfo {
	return types.IndexInfo{Kind: string(KindHNSW), Metric: string(h.cfg.Metric), Dims: h.dims, Size: len(h.nodes)}
}

// query is a prepared search vector in the storage precision of the index.
type query struct {
	f64 []float64
	f16 []uint16
}

func (h *HNSW) prepare(v []float64) query {
	if h.cfg.Precision == distance.Float16 {
		return query{f16: distance.ToFloat16(v)}
	}
	return query{f64: v}
}

func (h *HNSW) distanceTo(q query, n *node) float64 {
	var d float64
	if q.f16 != nil {
		d, _ = h.distF16Fn(q.f16, n.vectorF16)
	} else {
		d, _ = h.distFn(q.f64, n.vector)
	}
	return d
}

func (h *HNSW) distanceBetween(a, b *node) float64 {
	if a.vectorF16 != nil {
		d, _ := h.distF16Fn(a.vectorF16, b.vectorF16)
		return d
	}
	d, _ := h.distFn(a.vector, b.vector)
	return d
}

// add inserts one point with the given id; ids are dense and increasing.
func (h *HNSW) add(id uint32, vector []float64) {
	n := &node{id: id}
	if h.cfg.Precision == distance.Float16 {
		n.vectorF16 = distance.ToFloat16(vector)
	} else {
		n.vector = append([]float64(nil), vector...)
	}
	h.nodes = append(h.nodes, n)

	level := h.randomLevel()
	n.connections = make([][]uint32, level+1)

	if h.maxLevel == -1 {
		h.entrypointID = id
		h.maxLevel = level
		return
	}

	q := query{f64: n.vector, f16: n.vectorF16}

	current := h.entrypointID
	for l := h.maxLevel; l > level; l-- {
		if nearest := h.searchLayer(q, current, 1, l, 1); len(nearest) > 0 {
			current = nearest[0].Id
		}
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		neighbors := h.searchLayer(q, current, h.cfg.EfConstruction, l, h.cfg.EfConstruction)
		sortCandidates(neighbors)

		maxConns := h.cfg.M
		if l == 0 {
			maxConns = h.mMax0
		}

		selected := h.selectNeighbors(neighbors, maxConns)
		n.connections[l] = make([]uint32, len(selected))
		for i, c := range selected {
			n.connections[l][i] = c.Id
		}

		// Bidirectional links, pruning the farthest neighbor when full.
		for _, c := range selected {
			other := h.nodes[c.Id]
			if l >= len(other.connections) {
				continue
			}
			conns := other.connections[l]
			if len(conns) < maxConns {
				other.connections[l] = append(conns, id)
				continue
			}
			worst, worstDist := -1, -1.0
			for i, nID := range conns {
				if d := h.distanceBetween(other, h.nodes[nID]); d > worstDist {
					worst, worstDist = i, d
				}
			}
			if worst != -1 && h.distanceBetween(other, n) < worstDist {
				conns[worst] = id
			}
		}
		if len(neighbors) > 0 {
			current = neighbors[0].Id
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entrypointID = id
	}
}

// searchLayer performs a greedy best-first search on one layer and returns
// up to k candidates in no particular order.
func (h *HNSW) searchLayer(q query, entrypointID uint32, k int, level int, ef int) []types.Candidate {
	if ef < k {
		ef = k
	}
	h.visited.Clear()

	candidates := make(minHeap, 0, ef)
	results := make(maxHeap, 0, ef+1)

	ep := types.Candidate{Id: entrypointID, Distance: h.distanceTo(q, h.nodes[entrypointID])}
	candidates.push(ep)
	results.push(ep)
	h.visited.Add(entrypointID)

	for candidates.Len() > 0 {
		current := candidates.pop()

		// Nothing closer can be reached through a candidate farther than
		// the worst kept result.
		if results.Len() >= ef && current.Distance > results.peek().Distance {
			break
		}

		currentNode := h.nodes[current.Id]
		if level >= len(currentNode.connections) {
			continue
		}

		for _, neighborID := range currentNode.connections[level] {
			if h.visited.Has(neighborID) {
				continue
			}
			h.visited.Add(neighborID)

			d := h.distanceTo(q, h.nodes[neighborID])
			worstDist := math.MaxFloat64
			if results.Len() > 0 {
				worstDist = results.peek().Distance
			}
			if results.Len() < ef || d < worstDist {
				c := types.Candidate{Id: neighborID, Distance: d}
				candidates.push(c)
				results.push(c)
				if results.Len() > ef {
					results.pop()
				}
			}
		}
	}

	for results.Len() > k {
		results.pop()
	}
	return []types.Candidate(results)
}

// randomLevel draws a level from an exponentially decaying distribution,
// never more than one above the current top layer.
func (h *HNSW) randomLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 && level < h.maxLevel+1 {
		level++
	}
	return level
}

// selectNeighbors implements the neighbor selection heuristic from the HNSW
// paper: a candidate is kept only if it is closer to the new node than to any
// neighbor already kept. Discarded candidates refill the list when the
// heuristic leaves it short. candidates must be sorted by distance.
func (h *HNSW) selectNeighbors(candidates []types.Candidate, m int) []types.Candidate {
	if len(candidates) <= m {
		return candidates
	}

	results := make([]types.Candidate, 0, m)
	discarded := make([]types.Candidate, 0, m)

	for _, e := range candidates {
		if len(results) >= m {
			break
		}
		good := true
		for _, r := range results {
			if h.distanceBetween(h.nodes[e.Id], h.nodes[r.Id]) < e.Distance {
				good = false
				break
			}
		}
		if good {
			results = append(results, e)
		} else {
			discarded = append(discarded, e)
		}
	}

	for _, c := range discarded {
		if len(results) >= m {
			break
		}
		results = append(results, c)
	}
	return results
}
