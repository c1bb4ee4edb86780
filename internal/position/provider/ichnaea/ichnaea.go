// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/waybar-location/internal/position"

	apphttp "github.com/wneessen/waybar-location/internal/http"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	name          = "ichnaea"
)

// GeolocationICHNAEAProvider locates the host through an ICHNAEA compatible service (beaconDB),
// using the access points visible to the local WiFi interfaces.
type GeolocationICHNAEAProvider struct {
	name     string
	http     *apphttp.Client
	endpoint string
	scanFn   func(ctx context.Context) ([]WirelessNetwork, error)
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

type request struct {
	ConsiderIP   bool              `json:"considerIp"`
	Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
}

func NewGeolocationICHNAEAProvider(http *apphttp.Client) (*GeolocationICHNAEAProvider, error) {
	if http == nil {
		return nil, errors.New("http client is required")
	}
	provider := &GeolocationICHNAEAProvider{
		name:     name,
		http:     http,
		endpoint: apiEndpoint,
	}
	provider.scanFn = provider.wifiAccessPoints
	return provider, nil
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// CurrentPosition scans for WiFi access points and asks the ICHNAEA service for a position. The
// IP address is only considered as fallback when less than high accuracy is requested.
func (p *GeolocationICHNAEAProvider) CurrentPosition(ctx context.Context, accuracy position.Accuracy) (position.Coordinates, error) {
	// A failing scan is not fatal, the service can still fall back to the IP address
	wifiList, err := p.scanFn(ctx)
	if err != nil {
		wifiList = nil
	}
	if accuracy == position.AccuracyHigh && len(wifiList) == 0 {
		return position.Coordinates{}, fmt.Errorf("no WiFi access points available for high accuracy lookup: %w",
			position.ErrNoFix)
	}

	req := request{
		ConsiderIP:   accuracy != position.AccuracyHigh,
		Accesspoints: wifiList,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err = json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	ctxHttp, cancelHttp := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHttp()
	result := new(APIResult)
	code, err := p.http.Post(ctxHttp, p.endpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	// ICHNAEA answers with 404 if no position could be determined
	if code == http.StatusNotFound {
		return position.Coordinates{}, position.ErrNoFix
	}
	if code != http.StatusOK {
		return position.Coordinates{}, fmt.Errorf("geolocation API returned non-positive response code: %d", code)
	}

	return position.Coordinates{
		Lat: position.Truncate(result.Location.Latitude, position.TruncPrecision),
		Lon: position.Truncate(result.Location.Longitude, position.TruncPrecision),
		Acc: position.Truncate(result.Accuracy, position.TruncPrecision),
	}, nil
}

func (p *GeolocationICHNAEAProvider) wifiAccessPoints(ctx context.Context) ([]WirelessNetwork, error) {
	var checkIfaces []*wifi.Interface
	var list []WirelessNetwork

	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	defer func() {
		_ = wlan.Close()
	}()

	ifaces, err := wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		checkIfaces = append(checkIfaces, iface)
	}

	for _, iface := range checkIfaces {
		if ctx.Err() != nil {
			return list, ctx.Err()
		}
		aps, err := wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}
