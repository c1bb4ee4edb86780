// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package opencage

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
	APIEndpoint = "https://api.opencagedata.com/geocode/v1/json"
	APITimeout  = time.Second * 10
	name        = "opencage"
)

var ErrMissingAPIKey = errors.New("OpenCage requires an API key")

type OpenCage struct {
	apikey   string
	http     *apphttp.Client
	lang     language.Tag
	endpoint string
}

type Response struct {
	Results      []Result `json:"results"`
	Status       Status   `json:"status"`
	TotalResults int      `json:"total_results"`
}

type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Result struct {
	Components  Components `json:"components"`
	DisplayName string     `json:"formatted"`
	Geometry    Geometry   `json:"geometry"`
}

type Components struct {
	NomalizedCity string `json:"_normalized_city"`
	City          string `json:"city"`
	CityDistrict  string `json:"city_district"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
	HouseNumber   string `json:"house_number"`
	Municipality  string `json:"municipality"`
	Postcode      string `json:"postcode"`
	Road          string `json:"road"`
	State         string `json:"state"`
	StateCode     string `json:"state_code"`
	Suburb        string `json:"suburb"`
	Town          string `json:"town"`
	Village       string `json:"village"`
}

type Geometry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

func New(client *apphttp.Client, lang language.Tag, apikey string) (*OpenCage, error) {
	if apikey == "" {
		return nil, ErrMissingAPIKey
	}
	return &OpenCage{
		apikey:   apikey,
		lang:     lang,
		http:     client,
		endpoint: APIEndpoint,
	}, nil
}

func (o *OpenCage) Name() string {
	return name
}

// Reverse returns every result OpenCage knows for the coordinates, best match first.
func (o *OpenCage) Reverse(ctx context.Context, coords position.Coordinates) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("key", o.apikey)
	query.Set("q", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
	query.Set("no_annotations", "1")
	query.Set("no_record", "1")
	query.Set("language", o.lang.String())

	code, err := o.http.GetWithTimeout(ctx, o.endpoint, &response, query, nil, APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from OpenCage API: %w", err)
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("received non-positive response code from OpenCage API: %d (%s)", code,
			response.Status.Message)
	}

	addresses := make([]geocode.Address, 0, len(response.Results))
	for _, res := range response.Results {
		result := res.Components
		address := geocode.Address{
			Latitude:    res.Geometry.Lat,
			Longitude:   res.Geometry.Lon,
			DisplayName: res.DisplayName,
			Country:     result.Country,
			State:       result.State,
			Postcode:    result.Postcode,
			City:        result.City,
			Suburb:      result.Suburb,
			Street:      result.Road,
			HouseNumber: result.HouseNumber,
		}
		if address.City == "" && result.Town != "" {
			address.City = result.Town
		}
		if address.City == "" && result.Village != "" {
			address.City = result.Village
		}
		if address.City == "" {
			address.City = result.NomalizedCity
		}
		addresses = append(addresses, address)
	}

	return addresses, nil
}
