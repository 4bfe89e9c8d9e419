package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// PointCloud is a table of points: one row per point, the coordinates in the
// leading columns followed by any per-point features.
type PointCloud struct {
	Columns []string
	Data    *mat.Dense
}

// Len returns the number of points.
func (pc *PointCloud) Len() int {
	r, _ := pc.Data.Dims()
	return r
}

// Coordinates returns a view of the first n columns.
func (pc *PointCloud) Coordinates(n int) (mat.Matrix, error) {
	r, c := pc.Data.Dims()
	if n <= 0 || n > c {
		return nil, fmt.Errorf("point cloud has %d columns, need %d coordinates", c, n)
	}
	return pc.Data.Slice(0, r, 0, n), nil
}

// AddColumns appends the columns of values, which must have one row per point.
func (pc *PointCloud) AddColumns(names []string, values mat.Matrix) error {
	r, c := pc.Data.Dims()
	vr, vc := values.Dims()
	if vr != r || vc != len(names) {
		return fmt.Errorf("cannot add a %dx%d block with %d names to a cloud of %d points", vr, vc, len(names), r)
	}
	data := mat.NewDense(r, c+vc, nil)
	data.Slice(0, r, 0, c).(*mat.Dense).Copy(pc.Data)
	data.Slice(0, r, c, c+vc).(*mat.Dense).Copy(values)
	pc.Data = data
	pc.Columns = append(slices.Clone(pc.Columns), names...)
	return nil
}

// ReadCSV reads a point cloud with a header row naming the columns.
func ReadCSV(r io.Reader) (*PointCloud, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty point cloud")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := slices.Clone(header)

	var values []float64
	rows := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rows+1, err)
		}
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column '%s': %w", rows+1, columns[i], err)
			}
			values = append(values, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, fmt.Errorf("point cloud has no points")
	}
	return &PointCloud{Columns: columns, Data: mat.NewDense(rows, len(columns), values)}, nil
}

// WriteCSV writes pc with a header row.
func WriteCSV(w io.Writer, pc *PointCloud) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(pc.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	r, c := pc.Data.Dims()
	record := make([]string, c)
	for i := 0; i < r; i++ {
		for k := 0; k < c; k++ {
			record[k] = strconv.FormatFloat(pc.Data.At(i, k), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadCSV reads the point cloud stored at path.
func LoadCSV(path string) (*PointCloud, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	pc, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pc, nil
}

// SaveCSV writes pc to path.
func SaveCSV(path string, pc *PointCloud) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	if err := WriteCSV(file, pc); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
