// Package band turns a daily close series into the normal range of daily returns.
package band

import (
	"errors"
	"fmt"
	"math"

	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/samber/lo"
)

// MinObservations is the smallest number of valid returns a band can be built from.
const MinObservations = 2

// DefaultK is the band multiplier, roughly 95% coverage under a normal approximation.
const DefaultK = 2.0

// ErrInsufficientHistory is returned when fewer than MinObservations valid returns exist.
var ErrInsufficientHistory = errors.New("insufficient history")

// Stats summarizes a return series.
type Stats struct {
	Mean         float64
	StdDev       float64
	Observations int
}

// Returns computes successive fractional returns and drops non-finite values,
// which come from zero or missing closes.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	raw := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		raw = append(raw, (closes[i]-closes[i-1])/closes[i-1])
	}
	return lo.Filter(raw, func(r float64, _ int) bool {
		return !math.IsNaN(r) && !math.IsInf(r, 0)
	})
}

// Estimate returns the mean and sample standard deviation of daily returns.
// The result depends only on the input, element by element, so repeated calls
// on the same series are bit-identical.
func Estimate(closes []float64) (Stats, error) {
	returns := Returns(closes)
	if len(returns) < MinObservations {
		return Stats{}, fmt.Errorf("%w: %d valid returns from %d closes, need %d",
			ErrInsufficientHistory, len(returns), len(closes), MinObservations)
	}

	var w welford
	for _, r := range returns {
		w.update(r)
	}

	return Stats{
		Mean:         w.mean,
		StdDev:       w.sampleStdDev(),
		Observations: w.count,
	}, nil
}

// NewBand freezes stats into a band with multiplier k and the given shape.
func NewBand(stats Stats, k float64, shape models.Shape) models.Band {
	return models.Band{
		Mean:         stats.Mean,
		StdDev:       stats.StdDev,
		K:            k,
		Shape:        shape,
		Observations: stats.Observations,
	}
}

// FromBars is Estimate followed by NewBand.
func FromBars(bars []models.Bar, k float64, shape models.Shape) (models.Band, error) {
	stats, err := Estimate(models.Closes(bars))
	if err != nil {
		return models.Band{}, err
	}
	return NewBand(stats, k, shape), nil
}
