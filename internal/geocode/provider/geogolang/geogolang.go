// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geogolang adapts the geocoders of github.com/codingsince1985/geo-golang.
package geogolang

import (
	"context"
	"errors"
	"fmt"

	geo "github.com/codingsince1985/geo-golang"
	"github.com/codingsince1985/geo-golang/arcgis"
	"github.com/codingsince1985/geo-golang/mapbox"

	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/position"
)

const (
	NameMapbox = "mapbox"
	NameArcGIS = "arcgis"
)

var ErrMissingToken = errors.New("mapbox requires an access token")

// GeoGolang wraps a geo-golang geocoder. The library does not take a context, so lookups run in
// their own goroutine and are abandoned when the context is done.
type GeoGolang struct {
	name  string
	coder geo.Geocoder
}

type reverseResult struct {
	address *geo.Address
	err     error
}

// New wraps an arbitrary geo-golang geocoder under the given name.
func New(name string, coder geo.Geocoder) *GeoGolang {
	return &GeoGolang{name: name, coder: coder}
}

// NewMapbox returns a geocoder backed by the Mapbox geocoding API.
func NewMapbox(token string) (*GeoGolang, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return New(NameMapbox, mapbox.Geocoder(token)), nil
}

// NewArcGIS returns a geocoder backed by the ArcGIS world geocoding service. The token is optional.
func NewArcGIS(token string) *GeoGolang {
	return New(NameArcGIS, arcgis.Geocoder(token))
}

func (g *GeoGolang) Name() string {
	return g.name
}

// Reverse returns the single address the provider knows for the coordinates. A nil address means
// no candidates.
func (g *GeoGolang) Reverse(ctx context.Context, coords position.Coordinates) ([]geocode.Address, error) {
	resultChan := make(chan reverseResult, 1)
	go func() {
		address, err := g.coder.ReverseGeocode(coords.Lat, coords.Lon)
		resultChan <- reverseResult{address: address, err: err}
	}()

	var result reverseResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-resultChan:
	}
	if result.err != nil {
		return nil, fmt.Errorf("failed to reverse geocode coordinates via %s: %w", g.name, result.err)
	}
	if result.address == nil {
		return nil, nil
	}

	return []geocode.Address{toAddress(*result.address, coords)}, nil
}

func toAddress(address geo.Address, coords position.Coordinates) geocode.Address {
	return geocode.Address{
		HouseNumber: address.HouseNumber,
		Street:      address.Street,
		City:        address.City,
		Postcode:    address.Postcode,
		Country:     address.Country,
		DisplayName: address.FormattedAddress,
		State:       address.State,
		Suburb:      address.Suburb,
		Latitude:    coords.Lat,
		Longitude:   coords.Lon,
	}
}
