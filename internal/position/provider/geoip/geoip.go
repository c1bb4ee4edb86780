// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wneessen/waybar-location/internal/position"

	apphttp "github.com/wneessen/waybar-location/internal/http"
)

const (
	apiEndpoint   = "https://reallyfreegeoip.org/json/"
	lookupTimeout = time.Second * 5
	name          = "geoip"
)

// GeolocationGeoIPProvider locates the host by the public IP address of the network connection.
type GeolocationGeoIPProvider struct {
	name     string
	http     *apphttp.Client
	endpoint string
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MetroCode   int     `json:"metro_code"`
}

func NewGeolocationGeoIPProvider(http *apphttp.Client) (*GeolocationGeoIPProvider, error) {
	if http == nil {
		return nil, errors.New("http client is required")
	}
	return &GeolocationGeoIPProvider{
		name:     name,
		http:     http,
		endpoint: apiEndpoint,
	}, nil
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

// CurrentPosition looks up the position of the public IP. The accuracy radius reflects the most
// detailed administrative area the API knows about.
func (p *GeolocationGeoIPProvider) CurrentPosition(ctx context.Context, _ position.Accuracy) (position.Coordinates, error) {
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
	if result.CountryCode == "" && result.Latitude == 0 && result.Longitude == 0 {
		return position.Coordinates{}, position.ErrNoFix
	}

	acc := float64(position.AccuracyUnknown)
	if result.CountryCode != "" {
		acc = position.AccuracyCountry
	}
	if result.RegionCode != "" {
		acc = position.AccuracyRegion
	}
	if result.City != "" {
		acc = position.AccuracyCity
	}
	if result.ZipCode != "" {
		acc = position.AccuracyZip
	}

	return position.Coordinates{
		Lat: position.Truncate(result.Latitude, position.TruncPrecision),
		Lon: position.Truncate(result.Longitude, position.TruncPrecision),
		Acc: acc,
	}, nil
}
