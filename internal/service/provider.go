// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"

	"github.com/wneessen/waybar-location/internal/geocode"
	geocodeearth "github.com/wneessen/waybar-location/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/waybar-location/internal/geocode/provider/geogolang"
	"github.com/wneessen/waybar-location/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/waybar-location/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/waybar-location/internal/http"
	"github.com/wneessen/waybar-location/internal/permission"
	"github.com/wneessen/waybar-location/internal/position"
	"github.com/wneessen/waybar-location/internal/position/provider/cityname_file"
	"github.com/wneessen/waybar-location/internal/position/provider/geoapi"
	"github.com/wneessen/waybar-location/internal/position/provider/geoclue"
	"github.com/wneessen/waybar-location/internal/position/provider/geoip"
	"github.com/wneessen/waybar-location/internal/position/provider/geolocation_file"
	"github.com/wneessen/waybar-location/internal/position/provider/gpsd"
	"github.com/wneessen/waybar-location/internal/position/provider/ichnaea"
)

func (s *Service) selectGate() (permission.Gate, error) {
	switch s.config.Permission.Mode {
	case "prompt":
		return permission.NewPromptGate(s.notifier, s.t, s.logger), nil
	case "geoclue":
		return permission.NewAgentGate(s.config.Permission.Agent, s.logger), nil
	case "granted":
		return permission.NewStaticGate(permission.Granted), nil
	case "denied":
		return permission.NewStaticGate(permission.Denied), nil
	default:
		return nil, fmt.Errorf("unsupported permission mode: %s", s.config.Permission.Mode)
	}
}

func (s *Service) selectAcquirer(client *http.Client) (position.Acquirer, error) {
	conf := s.config.Location
	switch conf.Provider {
	case "geoclue":
		return geoclue.NewGeolocationGeoClueProvider(conf.DesktopID, conf.FixTimeout), nil
	case "gpsd":
		return gpsd.NewGeolocationGPSDProvider(conf.GPSDAddress, conf.FixTimeout), nil
	case "ichnaea":
		provider, err := ichnaea.NewGeolocationICHNAEAProvider(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create ICHNAEA provider: %w", err)
		}
		return provider, nil
	case "geoip":
		provider, err := geoip.NewGeolocationGeoIPProvider(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoIP provider: %w", err)
		}
		return provider, nil
	case "geoapi":
		provider, err := geoapi.NewGeolocationGeoAPIProvider(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoAPI provider: %w", err)
		}
		return provider, nil
	case "file":
		return geolocation_file.NewGeolocationFileProvider(conf.File), nil
	case "cityname":
		provider, err := cityname_file.NewCitynameFileProvider(conf.CitynameFile,
			nominatim.New(client, s.t.Language()))
		if err != nil {
			return nil, fmt.Errorf("failed to create cityname provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported location provider: %s", conf.Provider)
	}
}

func (s *Service) selectGeocoder(client *http.Client) (geocode.Geocoder, error) {
	var geocoder geocode.Geocoder
	var err error
	lang := s.t.Language()

	switch s.config.GeoCoder.Provider {
	case "nominatim":
		geocoder = nominatim.New(client, lang)
	case "opencage":
		geocoder, err = opencage.New(client, lang, s.config.GeoCoder.APIKey)
	case "geocode-earth":
		geocoder, err = geocodeearth.New(client, lang, s.config.GeoCoder.APIKey)
	case "mapbox":
		geocoder, err = geogolang.NewMapbox(s.config.GeoCoder.APIKey)
	case "arcgis":
		geocoder = geogolang.NewArcGIS(s.config.GeoCoder.APIKey)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", s.config.GeoCoder.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s geocoder: %w", s.config.GeoCoder.Provider, err)
	}
	return geocoder, nil
}
