// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/waybar-location/internal/position"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	name                  = "gpsd"
)

// GeolocationGPSDProvider requests a single fix from a running gpsd instance.
type GeolocationGPSDProvider struct {
	name    string
	addr    string
	timeout time.Duration
}

// tpvReport extends the gpsd TPV report with the estimated horizontal error.
type tpvReport struct {
	gpsd.TPVReport
	Eph float64 `json:"eph"`
}

// NewGeolocationGPSDProvider returns a provider for the gpsd instance at addr (host:port). A fix
// that does not arrive within timeout fails the lookup.
func NewGeolocationGPSDProvider(addr string, timeout time.Duration) *GeolocationGPSDProvider {
	return &GeolocationGPSDProvider{
		name:    name,
		addr:    addr,
		timeout: timeout,
	}
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// CurrentPosition connects to gpsd, enables watch mode and returns the first TPV report that has
// the required fix mode. High accuracy requires a 3D fix, everything else is satisfied by 2D.
func (p *GeolocationGPSDProvider) CurrentPosition(ctx context.Context, accuracy position.Accuracy) (position.Coordinates, error) {
	minMode := gpsd.Mode2D
	if accuracy == position.AccuracyHigh {
		minMode = gpsd.Mode3D
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Unblock the scanner once the context is done
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err = fmt.Fprint(conn, `?WATCH={"enable":true,"json":true}`+"\n"); err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to send WATCH command to gpsd: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var report tpvReport
		if err = json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" || report.Mode < minMode {
			continue
		}

		coord := position.Coordinates{
			Lat: position.Truncate(report.Lat, position.TruncPrecision),
			Lon: position.Truncate(report.Lon, position.TruncPrecision),
			Acc: horizontalAccuracyMeters(report),
		}
		if !coord.Valid() {
			return position.Coordinates{}, position.ErrInvalidCoordinates
		}
		return coord, nil
	}

	if ctx.Err() != nil {
		return position.Coordinates{}, fmt.Errorf("no gpsd fix received in time: %w", ctx.Err())
	}
	if err = scanner.Err(); err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to read gpsd response: %w", err)
	}
	return position.Coordinates{}, position.ErrNoFix
}

func horizontalAccuracyMeters(tpv tpvReport) float64 {
	switch {
	case tpv.Eph > 0:
		return tpv.Eph
	case tpv.Epx > 0 && tpv.Epy > 0:
		return math.Hypot(tpv.Epx, tpv.Epy)
	default:
		return horizontalAccuracyFallback(tpv.Mode)
	}
}

func horizontalAccuracyFallback(mode gpsd.Mode) float64 {
	switch mode {
	case gpsd.Mode3D:
		return fallbackAccuracy3DFix
	case gpsd.Mode2D:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
