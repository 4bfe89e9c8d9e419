package client

import (
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanonone/rfield/internal/server"
	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/pipeline"
)

func newTestClient(t *testing.T, token string) *Client {
	t.Helper()
	eng, err := engine.Open(engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := server.NewServer(eng, server.Options{AuthToken: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = eng.Close()
	})
	return NewFromURL(ts.URL, token)
}

func TestClientFieldCycle(t *testing.T) {
	c := newTestClient(t, "secret")

	if err := c.Healthz(); err != nil {
		t.Fatalf("Healthz failed: %v", err)
	}

	info, err := c.CreateField("tile", engine.FieldConfig{CellSize: []float64{1, 1}, BoundingRadii: []float64{1, 1}})
	if err != nil {
		t.Fatalf("CreateField failed: %v", err)
	}
	if info.NumCells != 4 {
		t.Errorf("expected 4 cells, got %d", info.NumCells)
	}

	fields, err := c.ListFields()
	if err != nil || len(fields) != 1 {
		t.Fatalf("ListFields: %v %v", fields, err)
	}

	points := [][]float64{{-0.5, -0.5}, {0.5, 0.5}, {0.9, 0.9}}
	if _, err := c.Fit("tile", points, []float64{0, 0}); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	cents, err := c.Centroids("tile", true)
	if err != nil {
		t.Fatalf("Centroids failed: %v", err)
	}
	if len(cents.Centroids) != 4 || !cents.Interpolated[1] {
		t.Errorf("unexpected centroids: %+v", cents)
	}

	exported, gen, err := c.ExportCentroids("tile", "int8", true)
	if err != nil {
		t.Fatalf("ExportCentroids failed: %v", err)
	}
	if gen != cents.Generation || !exported.Interpolated[1] {
		t.Errorf("unexpected export: generation %d, interpolated %v", gen, exported.Interpolated)
	}
	if got := exported.Matrix.At(3, 1); math.Abs(got-0.7) > 1e-2 {
		t.Errorf("exported centroid = %v, want 0.7", got)
	}
	if _, _, err := c.ExportCentroids("tile", "int4", false); err == nil {
		t.Error("expected an error for an unknown precision")
	}

	values, err := c.Propagate("tile", cents.Generation, [][]float64{{1}, {2}}, true)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if values[0][0] != 1 || values[2][0] != 2 {
		t.Errorf("unexpected values: %v", values)
	}

	if err := c.DeleteField("tile"); err != nil {
		t.Fatalf("DeleteField failed: %v", err)
	}
	_, err = c.GetField("tile")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected a 404 APIError, got %v", err)
	}
}

func TestClientUnauthorized(t *testing.T) {
	c := newTestClient(t, "wrong")
	_, err := c.ListFields()
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected a 401 APIError, got %v", err)
	}
}

func TestClientPipelineTask(t *testing.T) {
	c := newTestClient(t, "secret")

	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(in, []byte("x,y\n0,0\n1,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	task, err := c.RunPipeline(&pipeline.Spec{
		Inputs: []string{in},
		Stages: []pipeline.StageSpec{
			{Kind: pipeline.KindReceptiveField, CellSize: []float64{2, 2}},
			{Kind: pipeline.KindCentroids},
		},
	})
	if err != nil {
		t.Fatalf("RunPipeline failed: %v", err)
	}
	if err := task.Wait(10*time.Millisecond, 10*time.Second); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if _, err := c.RunPipeline(nil); err == nil {
		t.Errorf("expected an error without a configured pipeline")
	}
}
