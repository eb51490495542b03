// Package models defines the core domain entities: instruments, bands, ticks and alerts.
package models

import (
	"errors"
	"math"
	"time"
)

// ErrDataUnavailable means a price series or tick is missing or too short to use.
var ErrDataUnavailable = errors.New("data unavailable")

// Instrument is one watched security. Name is the display name and the unique key
// of the run; Symbol is the identifier understood by the price source.
type Instrument struct {
	Name   string `mapstructure:"name" json:"name"`
	Symbol string `mapstructure:"symbol" json:"symbol"`
}

// Validate checks instrument field constraints.
func (i *Instrument) Validate() error {
	if i.Name == "" {
		return errors.New("instrument name must not be empty")
	}
	if i.Symbol == "" {
		return errors.New("instrument symbol must not be empty")
	}
	return nil
}

// Bar is a single historical daily close.
type Bar struct {
	Date  time.Time
	Close float64
}

// Closes extracts the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Tick is one live observation: the prior session's close and the latest intraday price.
type Tick struct {
	PreviousClose float64
	CurrentPrice  float64
}

// Validate rejects ticks that cannot produce a meaningful deviation.
func (t Tick) Validate() error {
	if math.IsNaN(t.PreviousClose) || math.IsInf(t.PreviousClose, 0) || t.PreviousClose <= 0 {
		return errors.New("previous close must be a positive finite number")
	}
	if math.IsNaN(t.CurrentPrice) || math.IsInf(t.CurrentPrice, 0) || t.CurrentPrice <= 0 {
		return errors.New("current price must be a positive finite number")
	}
	return nil
}

// Deviation is the fractional change of the current price from the previous close.
func (t Tick) Deviation() float64 {
	return (t.CurrentPrice - t.PreviousClose) / t.PreviousClose
}
