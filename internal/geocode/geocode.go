// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geocode defines the address model and the interface for reverse geocoding providers.
package geocode

import (
	"context"
	"strings"

	"github.com/wneessen/waybar-location/internal/position"
)

// Placeholder is shown when a candidate address has none of the displayed fields set.
const Placeholder = "Address not available at the current level of detail."

// separator joins the non-empty address parts.
const separator = ", "

// Address is a single candidate returned by a reverse geocoding provider. Any field may be empty.
type Address struct {
	HouseNumber string
	Street      string
	City        string
	Postcode    string
	Country     string

	DisplayName string
	State       string
	Suburb      string
	Latitude    float64
	Longitude   float64
}

// Geocoder resolves coordinates to zero or more candidate addresses. An empty result without error
// means the provider had no address for the position.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords position.Coordinates) ([]Address, error)
}

// Format joins house number, street, city, postcode and country with ", ", skipping empty parts.
// The second return value is false if no part was set.
func (a Address) Format() (string, bool) {
	parts := make([]string, 0, 5)
	for _, part := range []string{a.HouseNumber, a.Street, a.City, a.Postcode, a.Country} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, separator), true
}

// FormatOrPlaceholder returns the formatted address, or Placeholder if the address is empty.
func (a Address) FormatOrPlaceholder() (text string, placeholder bool) {
	if formatted, ok := a.Format(); ok {
		return formatted, false
	}
	return Placeholder, true
}
