package knn

import (
	"fmt"

	"github.com/sanonone/rfield/pkg/core/distance"
)

// HNSWConfig holds the graph parameters of an HNSW index.
type HNSWConfig struct {
	// M is the max number of connections per node per layer. Default 16.
	M int `yaml:"m" json:"m"`
	// EfConstruction is the size of the dynamic candidate list while
	// inserting. Default 200.
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	// EfSearch is the size of the candidate list while searching. It is
	// raised to k when smaller. Default 64.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
	// Seed makes level assignment reproducible.
	Seed int64 `yaml:"seed" json:"seed"`
	// Metric is set from the enclosing Config when built through NewFactory.
	Metric distance.DistanceMetric `yaml:"-" json:"-"`
	// Precision is float64 or float16.
	Precision distance.PrecisionType `yaml:"precision" json:"precision"`
}

// DefaultHNSWConfig returns the graph parameters used when none are configured.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		Seed:           42,
		Metric:         distance.Euclidean,
		Precision:      distance.Float64,
	}
}

func (c HNSWConfig) withDefaults() HNSWConfig {
	d := DefaultHNSWConfig()
	if c.M <= 0 {
		c.M = d.M
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = d.EfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = d.EfSearch
	}
	if c.Metric == "" {
		c.Metric = d.Metric
	}
	if c.Precision == "" {
		c.Precision = d.Precision
	}
	return c
}

func (c HNSWConfig) validate() error {
	switch c.Precision {
	case distance.Float64:
	case distance.Float16:
		if c.Metric != distance.Euclidean {
			return fmt.Errorf("knn: precision '%s' only supports the '%s' metric", c.Precision, distance.Euclidean)
		}
	default:
		return fmt.Errorf("knn: unsupported hnsw precision: %s", c.Precision)
	}
	if c.M < 2 {
		return fmt.Errorf("knn: hnsw m must be at least 2, got %d", c.M)
	}
	return nil
}
