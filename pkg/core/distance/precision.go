package distance

import (
	"fmt"

	"github.com/x448/float16"
)

// ParsePrecision converts a configuration string into a PrecisionType.
// The empty string selects Float64.
func ParsePrecision(s string) (PrecisionType, error) {
	switch p := PrecisionType(s); p {
	case Float64, Float32, Float16, Int8:
		return p, nil
	case "":
		return Float64, nil
	default:
		return "", fmt.Errorf("unsupported precision: %s", s)
	}
}

// BytesPerValue returns the storage width of one component.
func (p PrecisionType) BytesPerValue() int {
	switch p {
	case Float64:
		return 8
	case Float32:
		return 4
	case Float16:
		return 2
	case Int8:
		return 1
	default:
		return 0
	}
}

// ToFloat16 converts a vector to half precision, returning the raw bits.
// NaN survives the conversion, which keeps empty-cell markers intact.
func ToFloat16(v []float64) []uint16 {
	out := make([]uint16, len(v))
	for i, x := range v {
		out[i] = float16.Fromfloat32(float32(x)).Bits()
	}
	return out
}

// FromFloat16 converts raw half-precision bits back to float64.
func FromFloat16(v []uint16) []float64 {
	out := make([]float64, len(v))
	for i, b := range v {
		out[i] = float64(float16.Frombits(b).Float32())
	}
	return out
}

// ToFloat32 narrows a vector to single precision.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// FromFloat32 widens a single-precision vector.
func FromFloat32(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func squaredEuclideanF16(v1, v2 []uint16) (float64, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("float16: %w", ErrLengthMismatch)
	}
	var sum float64
	for i := range v1 {
		f1 := float16.Frombits(v1[i]).Float32()
		f2 := float16.Frombits(v2[i]).Float32()
		diff := float64(f1 - f2)
		sum += diff * diff
	}
	return sum, nil
}
