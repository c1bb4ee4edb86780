// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package position defines the coordinate model and the interface every position source
// implements.
package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Typical accuracy radii in meters for sources that only know the administrative area.
const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4
)

var (
	// ErrNoFix is returned when a source is reachable but cannot produce a position.
	ErrNoFix = errors.New("no position fix available")

	// ErrInvalidCoordinates is returned for coordinates outside of the WGS84 range.
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// Coordinates represents a single position fix.
type Coordinates struct {
	Lat float64
	Lon float64
	// Acc is the accuracy radius in meters, 0 if unknown.
	Acc float64
}

// Valid checks if the coordinate is valid according to the EPSG:4326 ranges
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180 &&
		!math.IsNaN(c.Lat) && !math.IsNaN(c.Lon)
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lon)
}

// Accuracy is the accuracy a caller requests from a position source.
type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyBalanced
	AccuracyHigh
)

// ParseAccuracy maps the configuration value to an Accuracy.
func ParseAccuracy(val string) (Accuracy, error) {
	switch strings.ToLower(val) {
	case "low":
		return AccuracyLow, nil
	case "balanced":
		return AccuracyBalanced, nil
	case "high":
		return AccuracyHigh, nil
	default:
		return AccuracyLow, fmt.Errorf("unsupported accuracy: %q", val)
	}
}

func (a Accuracy) String() string {
	switch a {
	case AccuracyLow:
		return "low"
	case AccuracyBalanced:
		return "balanced"
	case AccuracyHigh:
		return "high"
	default:
		return fmt.Sprintf("accuracy(%d)", int(a))
	}
}

// Acquirer is a source that produces a single position fix on request.
type Acquirer interface {
	Name() string
	CurrentPosition(ctx context.Context, accuracy Accuracy) (Coordinates, error)
}

// Truncate cuts x to the given number of decimal places.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
