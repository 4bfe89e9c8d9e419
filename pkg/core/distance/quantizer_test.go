package distance

import (
	"math"
	"math/rand"
	"testing"
)

func TestQuantizerTrainingSampling(t *testing.T) {
	const NumVectors = 60000
	const Dimensions = 32

	vectors := make([][]float64, NumVectors)
	for i := 0; i < NumVectors; i++ {
		vec := make([]float64, Dimensions)
		for j := 0; j < Dimensions; j++ {
			vec[j] = rand.Float64() * 10.0
		}
		vectors[i] = vec
	}

	q := &Quantizer{}
	q.Train(vectors)

	if q.AbsMax <= 0 || q.AbsMax > 10 {
		t.Errorf("Expected AbsMax in (0, 10], got %f", q.AbsMax)
	}
}

func TestQuantizerRoundTrip(t *testing.T) {
	q := &Quantizer{}
	q.Train([][]float64{{-1, 0.5, 1}, {0.25, -0.75, math.NaN()}})

	in := []float64{-1, -0.5, 0, 0.5, 1}
	out := q.Dequantize(q.Quantize(in))
	for i := range in {
		if math.Abs(in[i]-out[i]) > q.AbsMax/127 {
			t.Errorf("index %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestQuantizerClipsOutliers(t *testing.T) {
	q := &Quantizer{AbsMax: 1}
	got := q.Quantize([]float64{5, -5, math.NaN()})
	if got[0] != 127 || got[1] != -127 || got[2] != 0 {
		t.Errorf("unexpected quantization %v", got)
	}
	if z := (&Quantizer{}).Quantize([]float64{3}); z[0] != 0 {
		t.Errorf("untrained quantizer should return zeros, got %v", z)
	}
}
