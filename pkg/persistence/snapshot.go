package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotWriter writes a snapshot to a temporary file next to its final
// path. Commit renames it into place, so readers only ever see complete
// snapshots.
type SnapshotWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewSnapshotWriter starts a snapshot that will replace path on Commit.
func NewSnapshotWriter(path string) (*SnapshotWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	return &SnapshotWriter{
		file: file,
		buf:  bufio.NewWriter(file), // 4kb buf (default)
		path: path,
	}, nil
}

// WriteField appends one field record.
func (s *SnapshotWriter) WriteField(rec *FieldRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteFieldState(s.buf, rec)
}

// Commit flushes, syncs and atomically renames the snapshot into place.
func (s *SnapshotWriter) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Drain the buffer and sync to disk
	if err := s.buf.Flush(); err != nil {
		s.discard()
		return err
	}
	if err := s.file.Sync(); err != nil {
		s.discard()
		return err
	}
	if err := s.file.Close(); err != nil {
		_ = os.Remove(s.file.Name())
		return err
	}
	// 2. Swap the new file in
	if err := os.Rename(s.file.Name(), s.path); err != nil {
		_ = os.Remove(s.file.Name())
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// Abort drops the temporary file and leaves the previous snapshot untouched.
func (s *SnapshotWriter) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discard()
}

func (s *SnapshotWriter) discard() {
	_ = s.file.Close()
	_ = os.Remove(s.file.Name())
}

// Path returns the final path of the snapshot.
func (s *SnapshotWriter) Path() string {
	return s.path
}

// ReadSnapshot loads every field record of the snapshot at path. A missing
// file yields no records. A truncated or corrupted tail is logged and
// skipped, keeping the records read before it.
func ReadSnapshot(path string) ([]*FieldRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var records []*FieldRecord
	offset := 0
	for {
		op, payload, n, err := ReadFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("[PERSISTENCE] Snapshot tail is corrupted, stopping", "path", path, "offset", offset, "error", err)
			break
		}
		offset += n
		if op != OpCodeFieldState {
			slog.Warn("[PERSISTENCE] Skipping unknown frame", "op", op, "offset", offset)
			continue
		}
		rec, err := DecodeFieldState(payload)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}
