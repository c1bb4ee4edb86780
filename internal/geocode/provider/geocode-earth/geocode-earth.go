// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/position"

	apphttp "github.com/wneessen/waybar-location/internal/http"
)

const (
	APIEndpoint = "https://api.geocode.earth/v1/reverse"
	APITimeout  = time.Second * 10
	name        = "geocode-earth"
)

var ErrMissingAPIKey = errors.New("geocode.earth requires an API key")

type GeocodeEarth struct {
	apikey   string
	http     *apphttp.Client
	lang     language.Tag
	endpoint string
}

type Response struct {
	Features []Feature `json:"features"`
	Type     string    `json:"type"`
}

type Feature struct {
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
	Type       string     `json:"type"`
}

// Geometry is a GeoJSON point, coordinates are ordered longitude, latitude.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

type Properties struct {
	DisplayName   string `json:"label"`
	City          string `json:"locality"`
	County        string `json:"county"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
	HouseNumber   string `json:"housenumber"`
	Neighbourhood string `json:"neighbourhood"`
	Postcode      string `json:"postalcode"`
	Road          string `json:"street"`
	State         string `json:"region"`
	StateCode     string `json:"region_a"`
}

func New(client *apphttp.Client, lang language.Tag, apikey string) (*GeocodeEarth, error) {
	if apikey == "" {
		return nil, ErrMissingAPIKey
	}
	return &GeocodeEarth{
		apikey:   apikey,
		lang:     lang,
		http:     client,
		endpoint: APIEndpoint,
	}, nil
}

func (g *GeocodeEarth) Name() string {
	return name
}

// Reverse returns every feature geocode.earth finds near the coordinates, nearest first.
func (g *GeocodeEarth) Reverse(ctx context.Context, coords position.Coordinates) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("api_key", g.apikey)
	query.Set("point.lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("point.lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("lang", g.lang.String())

	code, err := g.http.GetWithTimeout(ctx, g.endpoint, &response, query, nil, APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from geocode.earth API: %w", err)
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("received non-positive response code from geocode.earth API: %d", code)
	}

	addresses := make([]geocode.Address, 0, len(response.Features))
	for _, feature := range response.Features {
		result := feature.Properties
		address := geocode.Address{
			Latitude:    coords.Lat,
			Longitude:   coords.Lon,
			DisplayName: result.DisplayName,
			Country:     result.Country,
			State:       result.State,
			Postcode:    result.Postcode,
			City:        result.City,
			Suburb:      result.Neighbourhood,
			Street:      result.Road,
			HouseNumber: result.HouseNumber,
		}
		if len(feature.Geometry.Coordinates) == 2 {
			address.Longitude = feature.Geometry.Coordinates[0]
			address.Latitude = feature.Geometry.Coordinates[1]
		}
		addresses = append(addresses, address)
	}

	return addresses, nil
}
