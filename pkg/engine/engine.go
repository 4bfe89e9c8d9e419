// Package engine provides a named registry of receptive fields with
// snapshot persistence. It is the embedded interface used by the HTTP and
// MCP servers and can be used directly within Go applications.
//
// Basic usage:
//
//	eng, err := engine.Open(engine.DefaultOptions("./data"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	_, err = eng.Create("tile", engine.FieldConfig{
//	    CellSize:      []float64{0.5, 0.5, 0.5},
//	    BoundingRadii: []float64{5, 5, 5},
//	})
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sanonone/rfield/pkg/metrics"
	"github.com/tidwall/btree"
)

var (
	// ErrFieldNotFound is returned for operations on an unknown field name.
	ErrFieldNotFound = errors.New("field not found")
	// ErrFieldExists is returned by Create when the name is taken.
	ErrFieldExists = errors.New("field already exists")
	// ErrStaleFit is returned when values are propagated against a fitting
	// that has since been replaced.
	ErrStaleFit = errors.New("stale fit generation")
)

// Options configures the behavior of the Engine, including persistence paths
// and automatic saving.
type Options struct {
	// DataDir is the directory where the snapshot file is stored. It is
	// created automatically if it does not exist. Empty disables persistence.
	DataDir string

	// SnapshotFilename is the name of the snapshot file (default: "rfield.snap").
	SnapshotFilename string

	// AutoSaveInterval defines how much time must pass since the last save
	// before a new snapshot is triggered (if AutoSaveThreshold is also met).
	// Set to 0 to disable auto-saving.
	AutoSaveInterval time.Duration

	// AutoSaveThreshold defines how many write operations must occur
	// before a new snapshot is triggered (if AutoSaveInterval is also met).
	AutoSaveThreshold int64

	// ParallelThreshold is passed to every field; see field.WithParallelThreshold.
	ParallelThreshold int
}

// DefaultOptions returns a standard configuration suitable for most use cases.
//
// Defaults:
//   - DataDir: provided path
//   - SnapshotFilename: "rfield.snap"
//   - AutoSave: Every 60s if at least 100 changes occurred
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:           dataDir,
		SnapshotFilename:  "rfield.snap",
		AutoSaveInterval:  60 * time.Second,
		AutoSaveThreshold: 100,
		ParallelThreshold: 1 << 16,
	}
}

// Engine is a thread-safe registry of named receptive fields.
//
// Use Open() to initialize an Engine and Close() to shut it down gracefully.
type Engine struct {
	opts     Options
	snapPath string

	// mu guards the registry itself; every entry has its own lock for
	// fitting and reading.
	mu     sync.RWMutex
	fields *btree.BTreeG[*entry]

	// dirtyCounter tracks the number of write operations since the last save.
	dirtyCounter atomic.Int64
	lastSaveTime time.Time

	// adminMu serializes saves.
	adminMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open initializes a new Engine instance using the provided options.
//
// It creates DataDir if missing, loads the latest snapshot if available and
// starts the auto-save goroutine. It blocks until every field is restored.
func Open(opts Options) (*Engine, error) {
	if opts.SnapshotFilename == "" {
		opts.SnapshotFilename = "rfield.snap"
	}

	e := &Engine{
		opts: opts,
		fields: btree.NewBTreeG[*entry](func(a, b *entry) bool {
			return a.name < b.name
		}),
		lastSaveTime: time.Now(),
		closed:       make(chan struct{}),
	}

	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		e.snapPath = filepath.Join(opts.DataDir, opts.SnapshotFilename)
		if err := e.loadSnapshot(); err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
	}

	if e.snapPath != "" && opts.AutoSaveInterval > 0 {
		e.wg.Add(1)
		go e.backgroundTasks()
	}

	slog.Info("[ENGINE] Opened", "data_dir", opts.DataDir, "fields", e.fields.Len())
	return e, nil
}

// Close stops background tasks and writes a final snapshot when there are
// unsaved changes.
func (e *Engine) Close() error {
	var err error

	// Executes the block only once, even if called 100 times
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()

		if e.snapPath != "" && e.dirtyCounter.Load() > 0 {
			err = e.SaveSnapshot()
		}
	})

	return err
}

// backgroundTasks handles automatic saving.
func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkMaintenance()
		}
	}
}

// checkMaintenance evaluates if a snapshot is needed.
func (e *Engine) checkMaintenance() {
	dirty := e.dirtyCounter.Load()
	if dirty == 0 || dirty < e.opts.AutoSaveThreshold {
		return
	}

	e.adminMu.Lock()
	due := time.Since(e.lastSaveTime) >= e.opts.AutoSaveInterval
	e.adminMu.Unlock()
	if !due {
		return
	}

	if err := e.SaveSnapshot(); err != nil {
		// Log error but continue (background task)
		slog.Error("[ENGINE] Background snapshot failed", "error", err)
	}
}

func (e *Engine) markDirty() {
	e.dirtyCounter.Add(1)
}

// updateFieldsGauge publishes n, the registry size read under e.mu.
func updateFieldsGauge(n int) {
	metrics.FieldsTotal.Set(float64(n))
}
