// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/wneessen/waybar-location/internal/position"

	apphttp "github.com/wneessen/waybar-location/internal/http"
)

const (
	apiEndpoint   = "https://geoapi.info/api/geo"
	lookupTimeout = time.Second * 5
	name          = "geoapi"
)

// GeolocationGeoAPIProvider is an alternative IP based source backed by geoapi.info.
type GeolocationGeoAPIProvider struct {
	name     string
	http     *apphttp.Client
	endpoint string
}

type APIResult struct {
	IP       string `json:"ip"`
	Location struct {
		CountryCode string `json:"country,omitempty"`
		Country     string `json:"countryName,omitempty"`
		Region      string `json:"region,omitempty"`
		City        string `json:"city,omitempty"`
		ZipCode     string `json:"postalCode,omitempty"`
		TimeZone    string `json:"timezone"`
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func NewGeolocationGeoAPIProvider(http *apphttp.Client) (*GeolocationGeoAPIProvider, error) {
	if http == nil {
		return nil, errors.New("http client is required")
	}
	return &GeolocationGeoAPIProvider{
		name:     name,
		http:     http,
		endpoint: apiEndpoint,
	}, nil
}

func (p *GeolocationGeoAPIProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoAPIProvider) CurrentPosition(ctx context.Context, _ position.Accuracy) (position.Coordinates, error) {
	ctxHttp, cancelHttp := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHttp()

	result := new(APIResult)
	code, err := p.http.Get(ctxHttp, p.endpoint, result, nil, nil)
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if code != http.StatusOK {
		return position.Coordinates{}, fmt.Errorf("geolocation API returned non-positive response code: %d", code)
	}
	if result.Location.Coordinates.Latitude == "" || result.Location.Coordinates.Longitude == "" {
		return position.Coordinates{}, position.ErrNoFix
	}

	acc := float64(position.AccuracyUnknown)
	if result.Location.CountryCode != "" {
		acc = position.AccuracyCountry
	}
	if result.Location.Region != "" {
		acc = position.AccuracyRegion
	}
	if result.Location.City != "" {
		acc = position.AccuracyCity
	}
	if result.Location.ZipCode != "" {
		acc = position.AccuracyZip
	}

	lat, err := strconv.ParseFloat(result.Location.Coordinates.Latitude, 64)
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to parse latitude from API response: %w", err)
	}
	lon, err := strconv.ParseFloat(result.Location.Coordinates.Longitude, 64)
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to parse longitude from API response: %w", err)
	}

	return position.Coordinates{
		Lat: position.Truncate(lat, position.TruncPrecision),
		Lon: position.Truncate(lon, position.TruncPrecision),
		Acc: acc,
	}, nil
}
