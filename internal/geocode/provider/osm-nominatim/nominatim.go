// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/position"

	apphttp "github.com/wneessen/waybar-location/internal/http"
)

const (
	APISearchEndpoint  = "https://nominatim.openstreetmap.org/search"
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "osm-nominatim"
)

type Nominatim struct {
	http            *apphttp.Client
	lang            language.Tag
	reverseEndpoint string
	searchEndpoint  string
}

type ReverseResult struct {
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
	// Error is set instead of the address when nothing is found at the coordinates
	Error string `json:"error"`
}

type SearchResult struct {
	APILat      string `json:"lat"`
	APILon      string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type Address struct {
	HouseNumber  string `json:"house_number"`
	Road         string `json:"road"`
	Suburb       string `json:"suburb"`
	Municipality string `json:"municipality"`
	CityDistrict string `json:"city_district"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	State        string `json:"state"`
	ISO31662Lvl4 string `json:"ISO3166-2-lvl4"`
	Postcode     string `json:"postcode"`
	Country      string `json:"country"`
}

func New(client *apphttp.Client, lang language.Tag) *Nominatim {
	return &Nominatim{
		lang:            lang,
		http:            client,
		reverseEndpoint: APIReverseEndpoint,
		searchEndpoint:  APISearchEndpoint,
	}
}

func (n *Nominatim) Name() string {
	return name
}

// Reverse looks up the address at the given coordinates. Nominatim returns at most one result, a
// position without address (e.g. in the ocean) yields no candidates.
func (n *Nominatim) Reverse(ctx context.Context, coords position.Coordinates) ([]geocode.Address, error) {
	var result ReverseResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("accept-language", n.lang.String())

	code, err := n.http.GetWithTimeout(ctx, n.reverseEndpoint, &result, query, nil, APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("received non-positive response code from Nominatim API: %d", code)
	}
	if result.Error != "" {
		return nil, nil
	}

	address := geocode.Address{
		DisplayName: result.DisplayName,
		Country:     result.Address.Country,
		State:       result.Address.State,
		Postcode:    result.Address.Postcode,
		City:        result.Address.City,
		Suburb:      result.Address.Suburb,
		Street:      result.Address.Road,
		HouseNumber: result.Address.HouseNumber,
	}
	if address.City == "" && result.Address.Town != "" {
		address.City = result.Address.Town
	}
	if address.City == "" && result.Address.Village != "" {
		address.City = result.Address.Village
	}
	address.Latitude, err = strconv.ParseFloat(result.APILat, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	address.Longitude, err = strconv.ParseFloat(result.APILon, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return []geocode.Address{address}, nil
}

// Search forward geocodes a free-form place name and returns the coordinates of the best match.
func (n *Nominatim) Search(ctx context.Context, address string) (position.Coordinates, error) {
	var result []SearchResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("q", address)
	query.Set("limit", "1")
	query.Set("accept-language", n.lang.String())

	code, err := n.http.GetWithTimeout(ctx, n.searchEndpoint, &result, query, nil, APITimeout)
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to fetch address details from Nominatim API: %w", err)
	}
	if code != http.StatusOK {
		return position.Coordinates{}, fmt.Errorf("received non-positive response code from Nominatim API: %d", code)
	}
	if len(result) < 1 {
		return position.Coordinates{}, fmt.Errorf("no coordinates found for address %q: %w", address,
			position.ErrNoFix)
	}

	var coords position.Coordinates
	coords.Lat, err = strconv.ParseFloat(result[0].APILat, 64)
	if err != nil {
		return coords, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	coords.Lon, err = strconv.ParseFloat(result[0].APILon, 64)
	if err != nil {
		return coords, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return coords, nil
}
