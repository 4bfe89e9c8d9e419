// Package client provides a Go client for the rfield HTTP API.
//
// It covers field management (Create, List, Get, Delete), the fit /
// centroids / propagate cycle, pipeline runs with task polling and
// snapshots. Matrices travel as rows; rows of empty cells or uncovered points
// come back as nil.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sanonone/rfield/pkg/core/types"
	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/field"
	"github.com/sanonone/rfield/pkg/persistence"
	"github.com/sanonone/rfield/pkg/pipeline"
)

// --- Custom Errors ---

// APIError represents an error returned by the rfield API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- JSON Structs ---

// Centroids holds one row per cell in ascending cell order.
type Centroids struct {
	Name         string      `json:"name"`
	Generation   uint64      `json:"generation"`
	Centroids    [][]float64 `json:"centroids"`
	Empty        []bool      `json:"empty"`
	Interpolated []bool      `json:"interpolated"`
}

// Task represents an asynchronous operation on the rfield server.
type Task struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	ProgressMessage string `json:"progress_message,omitempty"`
	Error           string `json:"error,omitempty"`

	client *Client // Reference to the client for polling.
}

// --- Client ---

// Client is the Go client for interacting with rfield.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a client for the server at host:port. authToken may be empty.
func New(host string, port int, authToken string) *Client {
	return NewFromURL(fmt.Sprintf("http://%s:%d", host, port), authToken)
}

// NewFromURL creates a client for the server at baseURL.
func NewFromURL(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// jsonRequest executes a request and decodes the JSON response into out,
// unless out is nil.
func (c *Client) jsonRequest(method, endpoint string, payload, out any) error {
	respBody, _, err := c.rawRequest(method, endpoint, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("invalid JSON response for %s %s: %w", method, endpoint, err)
	}
	return nil
}

// rawRequest sends payload as JSON and returns the undecoded response body
// with its headers.
func (c *Client) rawRequest(method, endpoint string, payload any) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, resp.Header, nil
}

// --- Field Methods ---

// CreateField registers a new field.
func (c *Client) CreateField(name string, cfg engine.FieldConfig) (*types.FieldInfo, error) {
	payload := struct {
		Name string `json:"name"`
		engine.FieldConfig
	}{name, cfg}
	var info types.FieldInfo
	if err := c.jsonRequest(http.MethodPost, "/fields", payload, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListFields returns every field in name order.
func (c *Client) ListFields() ([]types.FieldInfo, error) {
	var resp struct {
		Fields []types.FieldInfo `json:"fields"`
	}
	if err := c.jsonRequest(http.MethodGet, "/fields", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// GetField describes one field.
func (c *Client) GetField(name string) (*types.FieldInfo, error) {
	var info types.FieldInfo
	if err := c.jsonRequest(http.MethodGet, "/fields/"+url.PathEscape(name), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteField removes a field.
func (c *Client) DeleteField(name string) error {
	return c.jsonRequest(http.MethodDelete, "/fields/"+url.PathEscape(name), nil, nil)
}

// Fit fits the field to points. A nil center lets the server use the
// midpoint of the bounding box.
func (c *Client) Fit(name string, points [][]float64, center []float64) (*types.FieldInfo, error) {
	payload := map[string]any{"points": points}
	if center != nil {
		payload["center"] = center
	}
	var info types.FieldInfo
	if err := c.jsonRequest(http.MethodPost, "/fields/"+url.PathEscape(name)+"/fit", payload, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Centroids computes the centroids of the last fit.
func (c *Client) Centroids(name string, interpolate bool) (*Centroids, error) {
	var out Centroids
	payload := map[string]bool{"interpolate": interpolate}
	if err := c.jsonRequest(http.MethodPost, "/fields/"+url.PathEscape(name)+"/centroids", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportCentroids downloads the centroids of the last fit as a binary frame
// in the given precision ("float64", "float32", "float16" or "int8") and
// decodes them. It also returns the generation of the fit.
func (c *Client) ExportCentroids(name, precision string, interpolate bool) (*field.Centroids, uint64, error) {
	payload := map[string]any{"interpolate": interpolate, "precision": precision}
	body, header, err := c.rawRequest(http.MethodPost, "/fields/"+url.PathEscape(name)+"/centroids/export", payload)
	if err != nil {
		return nil, 0, err
	}
	centroids, _, err := persistence.ReadCentroids(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("invalid centroid frame: %w", err)
	}
	gen, err := strconv.ParseUint(header.Get("X-Rfield-Generation"), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("missing fit generation: %w", err)
	}
	return centroids, gen, nil
}

// Propagate maps one value row per non-empty cell back onto the points.
// generation 0 targets the current fit.
func (c *Client) Propagate(name string, generation uint64, values [][]float64, safe bool) ([][]float64, error) {
	payload := map[string]any{"generation": generation, "values": values, "safe": safe}
	var out struct {
		Values [][]float64 `json:"values"`
	}
	if err := c.jsonRequest(http.MethodPost, "/fields/"+url.PathEscape(name)+"/propagate", payload, &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// --- Pipeline and Task Methods ---

// RunPipeline starts a pipeline run. A nil spec runs the pipeline configured
// on the server.
func (c *Client) RunPipeline(spec *pipeline.Spec) (*Task, error) {
	payload := map[string]any{}
	if spec != nil {
		payload["spec"] = spec
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := c.jsonRequest(http.MethodPost, "/pipeline/run", payload, &resp); err != nil {
		return nil, err
	}
	return &Task{ID: resp.TaskID, Status: "started", client: c}, nil
}

// GetTaskStatus retrieves the status of a long-running task.
func (c *Client) GetTaskStatus(taskID string) (*Task, error) {
	var task Task
	if err := c.jsonRequest(http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	task.client = c
	return &task, nil
}

// Refresh updates the task's status by querying the server.
func (t *Task) Refresh() error {
	if t.client == nil {
		return fmt.Errorf("client is not associated with the task")
	}
	updatedTask, err := t.client.GetTaskStatus(t.ID)
	if err != nil {
		return err
	}
	t.Status = updatedTask.Status
	t.ProgressMessage = updatedTask.ProgressMessage
	t.Error = updatedTask.Error
	return nil
}

// Wait blocks until the task is completed, checking its status at regular intervals.
func (t *Task) Wait(interval, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return fmt.Errorf("timeout exceeded while waiting for task %s", t.ID)
		case <-ticker.C:
			if err := t.Refresh(); err != nil {
				return err
			}
			switch t.Status {
			case "completed":
				return nil
			case "failed":
				return fmt.Errorf("task %s failed with error: %s", t.ID, t.Error)
			case "running", "started":
			default:
				return fmt.Errorf("unknown task status: %s", t.Status)
			}
		}
	}
}

// --- Administration Methods ---

// Save writes a snapshot on the server.
func (c *Client) Save() error {
	return c.jsonRequest(http.MethodPost, "/system/save", nil, nil)
}

// Healthz reports whether the server answers.
func (c *Client) Healthz() error {
	return c.jsonRequest(http.MethodGet, "/healthz", nil, nil)
}
