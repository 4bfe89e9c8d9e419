package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/rfield/pkg/core/distance"
	"github.com/sanonone/rfield/pkg/core/knn"
	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/field"
)

// Service implements the tool handlers over an engine.
type Service struct {
	engine *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{engine: eng}
}

// --- Tool Handlers ---

func (s *Service) CreateField(ctx context.Context, req *mcp.CallToolRequest, args CreateFieldArgs) (*mcp.CallToolResult, FieldResult, error) {
	neighbors := knn.DefaultConfig()
	if args.Index != "" {
		neighbors.Kind = knn.Kind(args.Index)
	}
	if args.Metric != "" {
		neighbors.Metric = distance.DistanceMetric(args.Metric)
	}
	info, err := s.engine.Create(args.Name, engine.FieldConfig{
		CellSize:      args.CellSize,
		BoundingRadii: args.BoundingRadii,
		Neighbors:     neighbors,
	})
	if err != nil {
		return nil, FieldResult{}, err
	}
	return nil, FieldResult{Field: info}, nil
}

func (s *Service) FitField(ctx context.Context, req *mcp.CallToolRequest, args FitFieldArgs) (*mcp.CallToolResult, FieldResult, error) {
	points, err := engine.DenseFromRows(args.Points)
	if err != nil {
		return nil, FieldResult{}, fmt.Errorf("points: %w", err)
	}
	info, err := s.engine.Fit(args.Name, points, args.Center)
	if err != nil {
		return nil, FieldResult{}, err
	}
	return nil, FieldResult{Field: info}, nil
}

func (s *Service) Centroids(ctx context.Context, req *mcp.CallToolRequest, args CentroidsArgs) (*mcp.CallToolResult, CentroidsResult, error) {
	c, gen, err := s.engine.Centroids(args.Name, args.Interpolate)
	if err != nil {
		return nil, CentroidsResult{}, err
	}
	m := c.Matrix
	if args.Denormalize {
		rf, err := s.engine.Field(args.Name)
		if err != nil {
			return nil, CentroidsResult{}, err
		}
		f := rf.Fitting()
		if f == nil || f.Generation != gen {
			return nil, CentroidsResult{}, fmt.Errorf("%w: '%s' was refitted", engine.ErrStaleFit, args.Name)
		}
		if m, err = field.Denormalize(c.Matrix, f.Center, rf.BoundingRadii()); err != nil {
			return nil, CentroidsResult{}, err
		}
	}
	return nil, CentroidsResult{
		Generation:   gen,
		Centroids:    engine.RowsFromDense(m),
		Empty:        c.Empty,
		Interpolated: c.Interpolated,
	}, nil
}

func (s *Service) Propagate(ctx context.Context, req *mcp.CallToolRequest, args PropagateArgs) (*mcp.CallToolResult, PropagateResult, error) {
	values, err := engine.DenseFromRows(args.Values)
	if err != nil {
		return nil, PropagateResult{}, fmt.Errorf("values: %w", err)
	}
	out, err := s.engine.Propagate(args.Name, args.Generation, values, !args.Unsafe)
	if err != nil {
		return nil, PropagateResult{}, err
	}
	return nil, PropagateResult{Values: engine.RowsFromDense(out)}, nil
}

func (s *Service) ListFields(ctx context.Context, req *mcp.CallToolRequest, args ListFieldsArgs) (*mcp.CallToolResult, ListFieldsResult, error) {
	return nil, ListFieldsResult{Fields: s.engine.List()}, nil
}
