package band

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoPass is the textbook sample mean/stddev used as a reference.
func twoPass(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func TestReturns(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   []float64
	}{
		{name: "empty", closes: nil, want: nil},
		{name: "single close", closes: []float64{100}, want: nil},
		{name: "simple", closes: []float64{100, 110, 99}, want: []float64{0.1, -0.1}},
		{name: "zero close dropped", closes: []float64{100, 0, 50}, want: []float64{-1}},
		{name: "missing close dropped", closes: []float64{100, math.NaN(), 105, 105}, want: []float64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Returns(tt.closes)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	closes := []float64{100, 102, 99.96, 101, 100.5, 103}
	stats, err := Estimate(closes)
	require.NoError(t, err)

	wantMean, wantStd := twoPass(Returns(closes))
	assert.InDelta(t, wantMean, stats.Mean, 1e-12)
	assert.InDelta(t, wantStd, stats.StdDev, 1e-12)
	assert.Equal(t, 5, stats.Observations)
}

func TestEstimate_InsufficientHistory(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
	}{
		{"no closes", nil},
		{"two closes give one return", []float64{100, 101}},
		{"invalid returns do not count", []float64{100, 0, 0, 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Estimate(tt.closes)
			assert.True(t, errors.Is(err, ErrInsufficientHistory), "got %v", err)
		})
	}
}

func TestEstimate_SpreadNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 3 + rng.Intn(300)
		closes := make([]float64, n)
		price := 100.0
		for i := range closes {
			price *= 1 + rng.NormFloat64()*0.02
			closes[i] = price
		}
		stats, err := Estimate(closes)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.StdDev, 0.0)
	}

	flat, err := Estimate([]float64{50, 50, 50, 50})
	require.NoError(t, err)
	assert.Equal(t, 0.0, flat.StdDev)
	assert.Equal(t, 0.0, flat.Mean)
}

func TestEstimate_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	closes := make([]float64, 1250)
	price := 10000.0
	for i := range closes {
		price *= 1 + rng.NormFloat64()*0.015
		closes[i] = price
	}

	first, err := Estimate(closes)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Estimate(closes)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(first.Mean), math.Float64bits(again.Mean))
		assert.Equal(t, math.Float64bits(first.StdDev), math.Float64bits(again.StdDev))
	}
}

func TestFromBars(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []models.Bar{
		{Date: start, Close: 100},
		{Date: start.AddDate(0, 0, 1), Close: 102},
		{Date: start.AddDate(0, 0, 2), Close: 99.96},
	}

	b, err := FromBars(bars, DefaultK, models.ShapeSymmetric)
	require.NoError(t, err)
	assert.Equal(t, models.ShapeSymmetric, b.Shape)
	assert.Equal(t, DefaultK, b.K)
	assert.Equal(t, 2, b.Observations)
	assert.InDelta(t, 0.0, b.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.0008), b.StdDev, 1e-12)

	_, err = FromBars(bars[:2], DefaultK, models.ShapeAsymmetric)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}
