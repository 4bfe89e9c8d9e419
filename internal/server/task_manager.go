package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus defines the possible states of a task.
type TaskStatus string

const (
	TaskStatusStarted   TaskStatus = "started"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task represents a long-running operation, such as a pipeline run.
type Task struct {
	mu sync.RWMutex

	id        string
	kind      string
	status    TaskStatus
	progress  string
	err       string
	createdAt time.Time
	updatedAt time.Time
}

// TaskView is the JSON representation of a Task at one point in time.
type TaskView struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Status          TaskStatus `json:"status"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TaskManager tracks all asynchronous tasks. Finished tasks are kept for
// retention so their outcome can still be polled.
type TaskManager struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	retention time.Duration
}

// NewTaskManager creates a new task manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks:     make(map[string]*Task),
		retention: time.Hour,
	}
}

// NewTask creates a new task, registers it, and returns it.
func (tm *TaskManager) NewTask(kind string) *Task {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.pruneLocked(time.Now())

	now := time.Now()
	task := &Task{
		id:        uuid.New().String(),
		kind:      kind,
		status:    TaskStatusStarted,
		createdAt: now,
		updatedAt: now,
	}
	tm.tasks[task.id] = task
	return task
}

// GetTask safely retrieves a task by its ID.
func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, found := tm.tasks[id]
	return task, found
}

// pruneLocked drops finished tasks older than the retention window.
func (tm *TaskManager) pruneLocked(now time.Time) {
	for id, t := range tm.tasks {
		v := t.View()
		if (v.Status == TaskStatusCompleted || v.Status == TaskStatusFailed) && now.Sub(v.UpdatedAt) > tm.retention {
			delete(tm.tasks, id)
		}
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// View returns a consistent copy of the task state.
func (t *Task) View() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskView{
		ID:              t.id,
		Kind:            t.kind,
		Status:          t.status,
		ProgressMessage: t.progress,
		Error:           t.err,
		CreatedAt:       t.createdAt,
		UpdatedAt:       t.updatedAt,
	}
}

// SetStatus updates the status of the task.
func (t *Task) SetStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.updatedAt = time.Now()
}

// SetError marks the task as failed and records the error message.
func (t *Task) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskStatusFailed
	t.err = err.Error()
	t.updatedAt = time.Now()
}

// SetProgress updates the progress message for the task.
func (t *Task) SetProgress(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = message
	t.updatedAt = time.Now()
}
