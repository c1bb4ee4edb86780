// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wneessen/waybar-location/internal/position"
)

const (
	name = "geolocation_file"
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a fixed position from a file. The first non-comment line of the
// form "lat,lon" wins. The file is read again on every request, so edits take effect on the next
// retry.
type GeolocationFileProvider struct {
	name     string
	path     string
	locateFn func() (position.Coordinates, error)
}

// NewGeolocationFileProvider initializes a GeolocationFileProvider for the given file path.
func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name: name,
		path: path,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// CurrentPosition returns the coordinates stored in the geolocation file. The requested accuracy
// is ignored, the file is always as accurate as the user made it.
func (p *GeolocationFileProvider) CurrentPosition(ctx context.Context, _ position.Accuracy) (position.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return position.Coordinates{}, err
	}
	coord, err := p.locateFn()
	if err != nil {
		return position.Coordinates{}, err
	}
	if !coord.Valid() {
		return position.Coordinates{}, fmt.Errorf("geolocation file %q: %w", p.path, position.ErrInvalidCoordinates)
	}
	return coord, nil
}

// readFile reads geolocation data from the file at the configured path.
func (p *GeolocationFileProvider) readFile() (position.Coordinates, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		coords := strings.Split(line, ",")
		if len(coords) != 2 {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			continue
		}
		return position.Coordinates{Lat: lat, Lon: lon, Acc: position.AccuracyZip}, nil
	}
	return position.Coordinates{}, ErrNoCoordinates
}
