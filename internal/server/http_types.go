package server

import (
	"github.com/sanonone/rfield/pkg/core/types"
	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/pipeline"
)

// FieldCreateRequest defines the body for field creation. The field
// configuration is inlined.
type FieldCreateRequest struct {
	Name string `json:"name"`
	engine.FieldConfig
}

// FieldListResponse lists the registered fields in name order.
type FieldListResponse struct {
	Fields []types.FieldInfo `json:"fields"`
}

// FitRequest defines the body for fitting a field. Center defaults to the
// midpoint of the bounding box of the points.
type FitRequest struct {
	Points [][]float64 `json:"points"`
	Center []float64   `json:"center,omitempty"`
}

type CentroidsRequest struct {
	Interpolate bool `json:"interpolate"`
}

// CentroidsResponse holds one row per cell in ascending cell order, in the
// normalized frame. Rows of empty cells that were not interpolated are null.
type CentroidsResponse struct {
	Name         string      `json:"name"`
	Generation   uint64      `json:"generation"`
	Centroids    [][]float64 `json:"centroids"`
	Empty        []bool      `json:"empty"`
	Interpolated []bool      `json:"interpolated"`
}

// GenerationHeader carries the fit generation of exported centroids.
const GenerationHeader = "X-Rfield-Generation"

// CentroidsExportRequest selects the precision of the exported centroids:
// float64 (default), float32, float16 or int8.
type CentroidsExportRequest struct {
	Interpolate bool   `json:"interpolate"`
	Precision   string `json:"precision,omitempty"`
}

// PropagateRequest carries one value row per non-empty cell. Generation 0
// targets the current fit; any other value must match it. Safe defaults to
// true.
type PropagateRequest struct {
	Generation uint64      `json:"generation,omitempty"`
	Values     [][]float64 `json:"values"`
	Safe       *bool       `json:"safe,omitempty"`
}

// PropagateResponse holds one row per point. Rows of points whose cell got no
// value are null.
type PropagateResponse struct {
	Name   string      `json:"name"`
	Values [][]float64 `json:"values"`
}

// PipelineRunRequest runs the given spec, or the server default when nil.
type PipelineRunRequest struct {
	Spec *pipeline.Spec `json:"spec,omitempty"`
}

type TaskResponse struct {
	TaskID string `json:"task_id"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
