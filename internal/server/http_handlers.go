package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sanonone/rfield/pkg/core/distance"
	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/persistence"
	"github.com/sanonone/rfield/pkg/pipeline"
)

// maxBodyBytes bounds request bodies; point clouds are sent inline.
const maxBodyBytes = 256 << 20

// registerHTTPHandlers sets up the routes of the REST API.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /fields", s.handleFieldCreate)
	mux.HandleFunc("GET /fields", s.handleFieldList)
	mux.HandleFunc("GET /fields/{name}", s.handleFieldGet)
	mux.HandleFunc("DELETE /fields/{name}", s.handleFieldDelete)
	mux.HandleFunc("POST /fields/{name}/fit", s.handleFieldFit)
	mux.HandleFunc("POST /fields/{name}/centroids", s.handleFieldCentroids)
	mux.HandleFunc("POST /fields/{name}/centroids/export", s.handleCentroidsExport)
	mux.HandleFunc("POST /fields/{name}/propagate", s.handleFieldPropagate)

	mux.HandleFunc("POST /pipeline/run", s.handlePipelineRun)
	mux.HandleFunc("GET /tasks/{id}", s.handleTaskStatus)

	mux.HandleFunc("POST /system/save", s.handleSave)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// --- Field handlers ---

func (s *Server) handleFieldCreate(w http.ResponseWriter, r *http.Request) {
	var req FieldCreateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	info, err := s.Engine.Create(req.Name, req.FieldConfig)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusCreated, info)
}

func (s *Server) handleFieldList(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, FieldListResponse{Fields: s.Engine.List()})
}

func (s *Server) handleFieldGet(w http.ResponseWriter, r *http.Request) {
	info, err := s.Engine.Get(r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, info)
}

func (s *Server) handleFieldDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.PathValue("name")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

func (s *Server) handleFieldFit(w http.ResponseWriter, r *http.Request) {
	var req FitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	points, err := engine.DenseFromRows(req.Points)
	if err != nil {
		s.writeEngineError(w, fmt.Errorf("points: %w", err))
		return
	}
	info, err := s.Engine.Fit(r.PathValue("name"), points, req.Center)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, info)
}

func (s *Server) handleFieldCentroids(w http.ResponseWriter, r *http.Request) {
	var req CentroidsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	name := r.PathValue("name")
	c, gen, err := s.Engine.Centroids(name, req.Interpolate)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, CentroidsResponse{
		Name:         name,
		Generation:   gen,
		Centroids:    engine.RowsFromDense(c.Matrix),
		Empty:        c.Empty,
		Interpolated: c.Interpolated,
	})
}

// handleCentroidsExport streams the centroids as one binary frame in the
// requested precision. The fit generation is sent in a header.
func (s *Server) handleCentroidsExport(w http.ResponseWriter, r *http.Request) {
	var req CentroidsExportRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	precision, err := distance.ParsePrecision(req.Precision)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, gen, err := s.Engine.Centroids(r.PathValue("name"), req.Interpolate)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := persistence.WriteCentroids(&buf, c, precision); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(GenerationHeader, strconv.FormatUint(gen, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleFieldPropagate(w http.ResponseWriter, r *http.Request) {
	var req PropagateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	values, err := engine.DenseFromRows(req.Values)
	if err != nil {
		s.writeEngineError(w, fmt.Errorf("values: %w", err))
		return
	}
	safe := req.Safe == nil || *req.Safe
	name := r.PathValue("name")
	out, err := s.Engine.Propagate(name, req.Generation, values, safe)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, PropagateResponse{Name: name, Values: engine.RowsFromDense(out)})
}

// --- Pipeline and task handlers ---

func (s *Server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	var req PipelineRunRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	spec := req.Spec
	if spec == nil {
		spec = s.opts.Pipeline
	}
	if spec == nil {
		s.writeHTTPError(w, http.StatusBadRequest, "no pipeline spec given and none configured")
		return
	}
	p, err := pipeline.New(*spec)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	task := s.taskManager.NewTask("pipeline")
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		s.runPipeline(task, p)
	}()
	s.writeHTTPResponse(w, http.StatusAccepted, TaskResponse{TaskID: task.ID()})
}

func (s *Server) runPipeline(task *Task, p *pipeline.Pipeline) {
	task.SetStatus(TaskStatusRunning)
	spec := p.Spec()
	for i, in := range spec.Inputs {
		task.SetProgress(fmt.Sprintf("case %d/%d: %s", i+1, len(spec.Inputs), in))
		out := ""
		if len(spec.Outputs) > 0 {
			out = spec.Outputs[i]
		}
		if _, err := p.RunCase(s.ctx, in, out); err != nil {
			slog.Error("[SERVER] Pipeline task failed", "task", task.ID(), "input", in, "error", err)
			task.SetError(err)
			return
		}
	}
	task.SetProgress(fmt.Sprintf("%d cases processed", len(spec.Inputs)))
	task.SetStatus(TaskStatusCompleted)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.View())
}

// --- System handlers ---

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.SaveSnapshot(); err != nil {
		s.writeHTTPError(w, http.StatusInternalServerError, fmt.Sprintf("snapshot failed: %v", err))
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "saved"})
}

// --- Helpers ---

// decodeBody decodes a JSON body into dst. An empty body leaves dst at its
// zero value. It writes the error response and returns false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeHTTPError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// writeEngineError maps engine, field and pipeline errors to status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrFieldNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrFieldExists), errors.Is(err, engine.ErrStaleFit):
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrPipeline), engine.IsClientError(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("[SERVER] Request failed", "error", err)
	}
	s.writeHTTPError(w, status, err.Error())
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("[SERVER] Failed to encode response", "error", err)
	}
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, ErrorResponse{Error: message})
}
