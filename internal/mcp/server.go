// Package mcp exposes the engine as Model Context Protocol tools.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/rfield/pkg/engine"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

func NewMCPServer(eng *engine.Engine) *mcp.Server {
	service := NewService(eng)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "rfield",
		Version: Version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "create_field",
		Description: "Create a receptive field: a regular grid over a normalized region that maps an irregular point cloud to a fixed number of cells.",
	}, service.CreateField)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "fit_field",
		Description: "Assign every point of a point cloud to a cell of the field. Replaces any previous fit.",
	}, service.FitField)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "field_centroids",
		Description: "Compute the centroid of every cell of the last fit, optionally interpolating empty cells.",
	}, service.Centroids)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "propagate_values",
		Description: "Map one value row per non-empty cell back onto every point of the last fit.",
	}, service.Propagate)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_fields",
		Description: "List the registered receptive fields.",
	}, service.ListFields)

	return s
}
