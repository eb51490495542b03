package band

import (
	"math"
)

// welford accumulates a running mean and sum of squared deviations.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) update(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// sampleStdDev uses the n-1 denominator. Callers guarantee count >= 2.
func (w *welford) sampleStdDev() float64 {
	variance := w.m2 / float64(w.count-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
