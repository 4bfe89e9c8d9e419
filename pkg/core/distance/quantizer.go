// Package distance provides functions for calculating vector distances.
//
// This file implements a symmetric scalar quantizer, which converts float64
// vectors into an int8 representation for compact centroid exports. The
// quantizer is trained on a sample of vectors so the range is robust against
// outliers.
package distance

import (
	"log/slog"
	"math"
	"sort"
)

// maxTrainingValues bounds the number of components sorted during training.
const maxTrainingValues = 1 << 20

// Quantizer holds the parameters for symmetric scalar quantization.
// It learns the optimal range from a training dataset to map float64 values
// to the int8 space [-127, 127].
type Quantizer struct {
	AbsMax float64
}

// Train calculates the quantization parameters using the 99.9th percentile
// of absolute values instead of the maximum, so extreme values do not
// flatten the rest of the range. NaN components are ignored.
func (q *Quantizer) Train(vectors [][]float64) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return
	}

	stride := 1
	if total := len(vectors) * len(vectors[0]); total > maxTrainingValues {
		stride = total/maxTrainingValues + 1
	}

	allAbsValues := make([]float64, 0, len(vectors)*len(vectors[0])/stride+1)
	seen := 0
	for _, vec := range vectors {
		for _, val := range vec {
			if math.IsNaN(val) {
				continue
			}
			if seen%stride == 0 {
				allAbsValues = append(allAbsValues, math.Abs(val))
			}
			seen++
		}
	}
	if len(allAbsValues) == 0 {
		return
	}

	sort.Float64s(allAbsValues)

	quantileIndex := int(float64(len(allAbsValues)) * 0.999)
	if quantileIndex >= len(allAbsValues) {
		quantileIndex = len(allAbsValues) - 1
	}
	if quantileIndex < 0 {
		quantileIndex = 0
	}

	q.AbsMax = allAbsValues[quantileIndex]

	slog.Debug("[QUANTIZER] training complete", "abs_max", q.AbsMax, "samples", len(allAbsValues))
}

// Quantize converts a float64 vector into its int8 representation.
// NaN maps to 0; callers that need to keep empty markers carry a mask.
func (q *Quantizer) Quantize(vector []float64) []int8 {
	quantized := make([]int8, len(vector))
	if q.AbsMax == 0 {
		return quantized
	}

	for i, val := range vector {
		if math.IsNaN(val) {
			continue
		}
		scaled := (val / q.AbsMax) * 127.0

		if scaled > 127.0 {
			scaled = 127.0
		} else if scaled < -127.0 {
			scaled = -127.0
		}

		quantized[i] = int8(math.Round(scaled))
	}
	return quantized
}

// Dequantize converts an int8 vector back to its approximate float64
// representation.
func (q *Quantizer) Dequantize(vector []int8) []float64 {
	dequantized := make([]float64, len(vector))
	if q.AbsMax == 0 {
		return dequantized
	}

	for i, val := range vector {
		dequantized[i] = (float64(val) / 127.0) * q.AbsMax
	}
	return dequantized
}
