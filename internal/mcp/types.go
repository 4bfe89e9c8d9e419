package mcp

import "github.com/sanonone/rfield/pkg/core/types"

// --- Tool Arguments ---

type CreateFieldArgs struct {
	Name          string    `json:"name" jsonschema:"Unique name of the receptive field"`
	CellSize      []float64 `json:"cell_size" jsonschema:"Cell edge per axis in the normalized frame, each in (0, 2]"`
	BoundingRadii []float64 `json:"bounding_radii" jsonschema:"Half extent per axis of the region mapped onto [-1, 1]"`
	Index         string    `json:"index,omitempty" jsonschema:"Neighbor index used to interpolate empty cells: kdtree (default), bruteforce or hnsw"`
	Metric        string    `json:"metric,omitempty" jsonschema:"Distance metric of the neighbor index. Defaults to euclidean"`
}

type FitFieldArgs struct {
	Name   string      `json:"name" jsonschema:"Name of the field to fit"`
	Points [][]float64 `json:"points" jsonschema:"Point cloud, one row of coordinates per point"`
	Center []float64   `json:"center,omitempty" jsonschema:"Center of the field. Defaults to the midpoint of the bounding box of the points"`
}

type CentroidsArgs struct {
	Name        string `json:"name" jsonschema:"Name of a fitted field"`
	Interpolate bool   `json:"interpolate,omitempty" jsonschema:"Fill empty cells from their nearest populated neighbors"`
	Denormalize bool   `json:"denormalize,omitempty" jsonschema:"Return centroids in the frame of the input points instead of the normalized frame"`
}

type PropagateArgs struct {
	Name       string      `json:"name" jsonschema:"Name of a fitted field"`
	Generation uint64      `json:"generation,omitempty" jsonschema:"Fit generation the values were computed for. 0 targets the current fit"`
	Values     [][]float64 `json:"values" jsonschema:"One row per non-empty cell in ascending cell order"`
	Unsafe     bool        `json:"unsafe,omitempty" jsonschema:"Allow fewer rows than non-empty cells, leaving uncovered points null"`
}

type ListFieldsArgs struct{}

// --- Tool Results ---

type FieldResult struct {
	Field types.FieldInfo `json:"field"`
}

type CentroidsResult struct {
	Generation   uint64      `json:"generation"`
	Centroids    [][]float64 `json:"centroids"`
	Empty        []bool      `json:"empty"`
	Interpolated []bool      `json:"interpolated"`
}

type PropagateResult struct {
	Values [][]float64 `json:"values"`
}

type ListFieldsResult struct {
	Fields []types.FieldInfo `json:"fields"`
}
