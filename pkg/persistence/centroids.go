package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sanonone/rfield/pkg/core/distance"
	"github.com/sanonone/rfield/pkg/field"
	"gonum.org/v1/gonum/mat"
)

// centroid payload: [precision(1)][rows(4)][cols(4)][absMax(8)][empty bits][interpolated bits][values]
const centroidHeaderSize = 17

var precisionCodes = []distance.PrecisionType{distance.Float64, distance.Float32, distance.Float16, distance.Int8}

var errCorruptCentroids = errors.New("corrupt centroid payload")

func precisionCode(p distance.PrecisionType) (byte, error) {
	for i, q := range precisionCodes {
		if q == p {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported centroid precision: %s", p)
}

// EncodeCentroids serializes c with its values stored in precision. Int8
// quantizes with a Quantizer trained on c; empty rows that were not
// interpolated decode back to NaN at every precision.
func EncodeCentroids(c *field.Centroids, precision distance.PrecisionType) ([]byte, error) {
	code, err := precisionCode(precision)
	if err != nil {
		return nil, err
	}
	rows, cols := c.Matrix.Dims()
	maskLen := (rows + 7) / 8
	payload := make([]byte, centroidHeaderSize+2*maskLen, centroidHeaderSize+2*maskLen+rows*cols*precision.BytesPerValue())

	payload[0] = code
	binary.LittleEndian.PutUint32(payload[1:5], uint32(rows))
	binary.LittleEndian.PutUint32(payload[5:9], uint32(cols))

	empty := payload[centroidHeaderSize : centroidHeaderSize+maskLen]
	interp := payload[centroidHeaderSize+maskLen:]
	for i := 0; i < rows; i++ {
		if c.Empty[i] {
			empty[i/8] |= 1 << (i % 8)
		}
		if c.Interpolated[i] {
			interp[i/8] |= 1 << (i % 8)
		}
	}

	var q distance.Quantizer
	if precision == distance.Int8 {
		all := make([][]float64, rows)
		for i := range all {
			all[i] = c.Matrix.RawRowView(i)
		}
		q.Train(all)
		binary.LittleEndian.PutUint64(payload[9:17], math.Float64bits(q.AbsMax))
	}

	for i := 0; i < rows; i++ {
		row := c.Matrix.RawRowView(i)
		switch precision {
		case distance.Float64:
			for _, v := range row {
				payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(v))
			}
		case distance.Float32:
			for _, v := range distance.ToFloat32(row) {
				payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
			}
		case distance.Float16:
			for _, v := range distance.ToFloat16(row) {
				payload = binary.LittleEndian.AppendUint16(payload, v)
			}
		case distance.Int8:
			for _, v := range q.Quantize(row) {
				payload = append(payload, byte(v))
			}
		}
	}
	return payload, nil
}

// DecodeCentroids is the inverse of EncodeCentroids, up to the precision the
// values were stored with.
func DecodeCentroids(payload []byte) (*field.Centroids, distance.PrecisionType, error) {
	if len(payload) < centroidHeaderSize {
		return nil, "", errCorruptCentroids
	}
	if int(payload[0]) >= len(precisionCodes) {
		return nil, "", fmt.Errorf("%w: precision code %d", errCorruptCentroids, payload[0])
	}
	precision := precisionCodes[payload[0]]
	rows := int(binary.LittleEndian.Uint32(payload[1:5]))
	cols := int(binary.LittleEndian.Uint32(payload[5:9]))
	q := distance.Quantizer{AbsMax: math.Float64frombits(binary.LittleEndian.Uint64(payload[9:17]))}

	maskLen := (rows + 7) / 8
	want := centroidHeaderSize + 2*maskLen + rows*cols*precision.BytesPerValue()
	if rows == 0 || cols == 0 || len(payload) != want {
		return nil, "", fmt.Errorf("%w: %d bytes for a %dx%d %s matrix", errCorruptCentroids, len(payload), rows, cols, precision)
	}

	c := &field.Centroids{
		Matrix:       mat.NewDense(rows, cols, nil),
		Empty:        make([]bool, rows),
		Interpolated: make([]bool, rows),
	}
	empty := payload[centroidHeaderSize : centroidHeaderSize+maskLen]
	interp := payload[centroidHeaderSize+maskLen : centroidHeaderSize+2*maskLen]
	values := payload[centroidHeaderSize+2*maskLen:]

	width := cols * precision.BytesPerValue()
	for i := 0; i < rows; i++ {
		c.Empty[i] = empty[i/8]&(1<<(i%8)) != 0
		c.Interpolated[i] = interp[i/8]&(1<<(i%8)) != 0

		raw := values[i*width : (i+1)*width]
		dst := c.Matrix.RawRowView(i)
		switch precision {
		case distance.Float64:
			for k := range dst {
				dst[k] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*k:]))
			}
		case distance.Float32:
			f32 := make([]float32, cols)
			for k := range f32 {
				f32[k] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*k:]))
			}
			copy(dst, distance.FromFloat32(f32))
		case distance.Float16:
			bits := make([]uint16, cols)
			for k := range bits {
				bits[k] = binary.LittleEndian.Uint16(raw[2*k:])
			}
			copy(dst, distance.FromFloat16(bits))
		case distance.Int8:
			qv := make([]int8, cols)
			for k := range qv {
				qv[k] = int8(raw[k])
			}
			copy(dst, q.Dequantize(qv))
			if c.Empty[i] && !c.Interpolated[i] {
				for k := range dst {
					dst[k] = math.NaN()
				}
			}
		}
	}
	return c, precision, nil
}

// WriteCentroids writes c as one OpCodeCentroids frame.
func WriteCentroids(w io.Writer, c *field.Centroids, precision distance.PrecisionType) error {
	payload, err := EncodeCentroids(c, precision)
	if err != nil {
		return err
	}
	return NewFrameWriter(w).WriteFrame(OpCodeCentroids, payload)
}

// ReadCentroids reads one OpCodeCentroids frame.
func ReadCentroids(r io.Reader) (*field.Centroids, distance.PrecisionType, error) {
	payload, err := readFrameOf(r, OpCodeCentroids)
	if err != nil {
		return nil, "", err
	}
	return DecodeCentroids(payload)
}
