// Package distance provides the distance kernels used by the neighbor indexes
// and the precision codecs used when centroids leave the engine.
//
// The package uses runtime CPU detection to dispatch to the most optimized
// implementation available: pure Go for short vectors and CPUs without wide
// SIMD, Gonum BLAS otherwise.
package distance

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

// blasMinLength is the vector length from which the BLAS kernels beat the
// plain loops. Point coordinates are short, feature vectors are not.
const blasMinLength = 16

func init() {
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		float64Funcs[Euclidean] = squaredEuclideanDispatch
		float64Funcs[Cosine] = cosineDispatch
		slog.Debug("[DISTANCE] compute engine selected", "euclidean", "gonum/blas", "cosine", "gonum/blas", "cpu", cpuid.CPU.BrandName)
		return
	}
	slog.Debug("[DISTANCE] compute engine selected", "euclidean", "pure go", "cosine", "pure go", "cpu", cpuid.CPU.BrandName)
}

// DistanceMetric defines the type of distance calculation to perform.
type DistanceMetric string

// PrecisionType defines the data type used when vectors are stored or exported.
type PrecisionType string

const (
	// Euclidean represents the squared Euclidean distance metric.
	Euclidean DistanceMetric = "euclidean"
	// Manhattan represents the L1 distance metric.
	Manhattan DistanceMetric = "manhattan"
	// Cosine represents the cosine distance metric (1 - cosine similarity).
	Cosine DistanceMetric = "cosine"

	// Float64 keeps full precision.
	Float64 PrecisionType = "float64"
	// Float32 represents single-precision floating-point numbers.
	Float32 PrecisionType = "float32"
	// Float16 represents half-precision floating-point numbers.
	Float16 PrecisionType = "float16"
	// Int8 represents 8-bit signed integers produced by a trained Quantizer.
	Int8 PrecisionType = "int8"
)

// ErrLengthMismatch is returned when two vectors do not share a dimension.
var ErrLengthMismatch = errors.New("vectors must have the same length")

// DistanceFunc computes the distance between two float64 vectors.
type DistanceFunc func(v1, v2 []float64) (float64, error)

// DistanceFuncF16 computes the distance between two half-precision vectors
// stored as raw uint16 bits.
type DistanceFuncF16 func(v1, v2 []uint16) (float64, error)

// diffWorkspace is a pool of float64 slices used to avoid allocations in the
// BLAS path, where the difference vector has to be materialized.
var diffWorkspace = sync.Pool{
	New: func() interface{} {
		s := make([]float64, 64)
		return &s
	},
}

// --- REFERENCE IMPLEMENTATIONS (PURE GO) ---

func squaredEuclideanGo(v1, v2 []float64) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	for i := range v1 {
		diff := v1[i] - v2[i]
		sum += diff * diff
	}
	return sum, nil
}

func manhattanGo(v1, v2 []float64) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	for i := range v1 {
		d := v1[i] - v2[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum, nil
}

func cosineGo(v1, v2 []float64) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	var dot, n1, n2 float64
	for i := range v1 {
		dot += v1[i] * v2[i]
		n1 += v1[i] * v1[i]
		n2 += v2[i] * v2[i]
	}
	return cosineFromParts(dot, n1, n2), nil
}

func cosineFromParts(dot, n1, n2 float64) float64 {
	if n1 == 0 || n2 == 0 {
		return 1.0
	}
	return 1.0 - dot/math.Sqrt(n1*n2)
}

// --- Gonum-based Implementations ---

var gonumEngine = gonum.Implementation{}

func squaredEuclideanGonum(v1, v2 []float64) (float64, error) {
	n := len(v1)
	if n != len(v2) {
		return 0, ErrLengthMismatch
	}

	diffPtr := diffWorkspace.Get().(*[]float64)
	defer diffWorkspace.Put(diffPtr)

	if cap(*diffPtr) < n {
		*diffPtr = make([]float64, n)
	}
	diff := (*diffPtr)[:n]

	copy(diff, v1)
	gonumEngine.Daxpy(n, -1, v2, 1, diff, 1)
	return gonumEngine.Ddot(n, diff, 1, diff, 1), nil
}

func cosineGonum(v1, v2 []float64) (float64, error) {
	n := len(v1)
	if n != len(v2) {
		return 0, ErrLengthMismatch
	}
	dot := gonumEngine.Ddot(n, v1, 1, v2, 1)
	n1 := gonumEngine.Ddot(n, v1, 1, v1, 1)
	n2 := gonumEngine.Ddot(n, v2, 1, v2, 1)
	return cosineFromParts(dot, n1, n2), nil
}

// squaredEuclideanDispatch keeps short vectors on the loop, where the BLAS
// call overhead dominates.
func squaredEuclideanDispatch(v1, v2 []float64) (float64, error) {
	if len(v1) < blasMinLength {
		return squaredEuclideanGo(v1, v2)
	}
	return squaredEuclideanGonum(v1, v2)
}

func cosineDispatch(v1, v2 []float64) (float64, error) {
	if len(v1) < blasMinLength {
		return cosineGo(v1, v2)
	}
	return cosineGonum(v1, v2)
}

// --- Function Catalogs and Dispatchers ---

var float64Funcs = map[DistanceMetric]DistanceFunc{
	Euclidean: squaredEuclideanGo,
	Manhattan: manhattanGo,
	Cosine:    cosineGo,
}

var float16Funcs = map[DistanceMetric]DistanceFuncF16{
	Euclidean: squaredEuclideanF16,
}

// GetFunc returns the distance function for a metric. It returns an error if
// the metric is not supported.
func GetFunc(metric DistanceMetric) (DistanceFunc, error) {
	fn, ok := float64Funcs[metric]
	if !ok {
		return nil, fmt.Errorf("metric '%s' not supported", metric)
	}
	return fn, nil
}

// GetFloat16Func returns the distance function for a metric over
// half-precision vectors.
func GetFloat16Func(metric DistanceMetric) (DistanceFuncF16, error) {
	fn, ok := float16Funcs[metric]
	if !ok {
		return nil, fmt.Errorf("metric '%s' not supported for float16 precision", metric)
	}
	return fn, nil
}

// ParseMetric converts a configuration string into a DistanceMetric.
func ParseMetric(s string) (DistanceMetric, error) {
	switch m := DistanceMetric(s); m {
	case Euclidean, Manhattan, Cosine:
		return m, nil
	case "":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown distance metric '%s'", s)
	}
}
