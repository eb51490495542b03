package models

import (
	"fmt"
	"math"
)

// Shape selects how a band is centered.
type Shape string

const (
	// ShapeAsymmetric centers the band on the historical mean return.
	ShapeAsymmetric Shape = "asymmetric"
	// ShapeSymmetric assumes a zero mean and alerts on the magnitude of the move.
	ShapeSymmetric Shape = "symmetric"
)

// ParseShape validates a configured shape name.
func ParseShape(s string) (Shape, error) {
	switch Shape(s) {
	case ShapeAsymmetric, ShapeSymmetric:
		return Shape(s), nil
	default:
		return "", fmt.Errorf("unknown band shape %q", s)
	}
}

// Side is the direction of a breakout.
type Side int

const (
	SideNone Side = iota
	// SideBuy means the price fell below the lower bound.
	SideBuy
	// SideSell means the price rose above the upper bound.
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "none"
	}
}

// Band is the normal range of daily returns for one instrument. It is built once
// at session start and never modified.
type Band struct {
	Mean         float64
	StdDev       float64
	K            float64
	Shape        Shape
	Observations int
}

// Center is the mean for asymmetric bands and zero for symmetric ones.
func (b Band) Center() float64 {
	if b.Shape == ShapeSymmetric {
		return 0
	}
	return b.Mean
}

// Width is K standard deviations.
func (b Band) Width() float64 {
	return b.K * b.StdDev
}

func (b Band) Lower() float64 {
	return b.Center() - b.Width()
}

func (b Band) Upper() float64 {
	return b.Center() + b.Width()
}

// Threshold returns the fractional bound that a breakout on side s crossed.
func (b Band) Threshold(s Side) float64 {
	if s == SideSell {
		return b.Upper()
	}
	return b.Lower()
}

// Classify compares a deviation against the band. Values on a bound stay inside.
func (b Band) Classify(deviation float64) Side {
	if math.IsNaN(deviation) {
		return SideNone
	}
	if b.Shape == ShapeSymmetric {
		if math.Abs(deviation) <= b.Width() {
			return SideNone
		}
		if deviation < 0 {
			return SideBuy
		}
		return SideSell
	}
	switch {
	case deviation < b.Lower():
		return SideBuy
	case deviation > b.Upper():
		return SideSell
	default:
		return SideNone
	}
}
