package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/sanonone/rfield/pkg/core/knn"
	"github.com/sanonone/rfield/pkg/field"
)

// FieldRecord is the persisted form of one named receptive field. State is
// nil for fields that were never fitted. Points holds the fitted cloud row
// by row, so centroids can be computed again after a restart.
type FieldRecord struct {
	Name          string
	CellSize      []float64
	BoundingRadii []float64
	Neighbors     knn.Config
	State         *field.State
	Points        []float64
	SavedAt       time.Time
}

// EncodeFieldState serializes rec as the payload of an OpCodeFieldState frame.
func EncodeFieldState(rec *FieldRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encoding field '%s': %w", rec.Name, err)
	}
	return buf.Bytes(), nil
}

// DecodeFieldState is the inverse of EncodeFieldState.
func DecodeFieldState(payload []byte) (*FieldRecord, error) {
	var rec FieldRecord
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding field record: %w", err)
	}
	return &rec, nil
}

// WriteFieldState writes rec as one frame.
func WriteFieldState(w io.Writer, rec *FieldRecord) error {
	payload, err := EncodeFieldState(rec)
	if err != nil {
		return err
	}
	return NewFrameWriter(w).WriteFrame(OpCodeFieldState, payload)
}

// ReadFieldState reads one OpCodeFieldState frame.
func ReadFieldState(r io.Reader) (*FieldRecord, error) {
	payload, err := readFrameOf(r, OpCodeFieldState)
	if err != nil {
		return nil, err
	}
	return DecodeFieldState(payload)
}
