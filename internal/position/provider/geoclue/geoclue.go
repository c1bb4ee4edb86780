// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-location/internal/position"
)

const (
	busName        = "org.freedesktop.GeoClue2"
	managerPath    = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerIface   = "org.freedesktop.GeoClue2.Manager"
	clientIface    = "org.freedesktop.GeoClue2.Client"
	locationIface  = "org.freedesktop.GeoClue2.Location"
	locationSignal = "LocationUpdated"

	signalBufferSize = 8
	name             = "geoclue"
)

// GeoClue2 accuracy levels as defined by the GClueAccuracyLevel enum.
const (
	levelCity   uint32 = 4
	levelStreet uint32 = 6
	levelExact  uint32 = 8
)

// GeolocationGeoClueProvider requests a single location update from the GeoClue2 service on the
// system bus.
type GeolocationGeoClueProvider struct {
	name      string
	desktopID string
	timeout   time.Duration
	connectFn func(ctx context.Context) (*dbus.Conn, error)
}

// NewGeolocationGeoClueProvider returns a GeoClue2 provider. The desktop ID is what GeoClue and its
// agent use to identify the application.
func NewGeolocationGeoClueProvider(desktopID string, timeout time.Duration) *GeolocationGeoClueProvider {
	return &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		timeout:   timeout,
		connectFn: func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSystemBus(dbus.WithContext(ctx))
		},
	}
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

// CurrentPosition registers a GeoClue2 client, starts it and waits for the first location. The
// client is stopped and deleted again before returning.
func (p *GeolocationGeoClueProvider) CurrentPosition(ctx context.Context, accuracy position.Accuracy) (coord position.Coordinates, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.connectFn(ctx)
	if err != nil {
		return coord, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	manager := conn.Object(busName, managerPath)
	var clientPath dbus.ObjectPath
	if err = manager.CallWithContext(ctx, managerIface+".GetClient", 0).Store(&clientPath); err != nil {
		return coord, fmt.Errorf("failed to get geoclue client: %w", err)
	}
	defer manager.CallWithContext(context.WithoutCancel(ctx), managerIface+".DeleteClient", 0, clientPath)

	client := conn.Object(busName, clientPath)
	if err = client.SetProperty(clientIface+".DesktopId", dbus.MakeVariant(p.desktopID)); err != nil {
		return coord, fmt.Errorf("failed to set desktop id: %w", err)
	}
	if err = client.SetProperty(clientIface+".RequestedAccuracyLevel",
		dbus.MakeVariant(accuracyLevel(accuracy))); err != nil {
		return coord, fmt.Errorf("failed to set requested accuracy level: %w", err)
	}

	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)
	if err = conn.AddMatchSignal(dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientIface),
		dbus.WithMatchMember(locationSignal),
	); err != nil {
		return coord, fmt.Errorf("failed to subscribe to location updates: %w", err)
	}

	if err = client.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
		return coord, fmt.Errorf("failed to start geoclue client: %w", err)
	}
	defer client.CallWithContext(context.WithoutCancel(ctx), clientIface+".Stop", 0)

	locationPath, err := awaitLocation(ctx, client, clientPath, sigCh)
	if err != nil {
		return coord, err
	}
	return readLocation(conn.Object(busName, locationPath))
}

// awaitLocation returns the location object of the client. A location that GeoClue already
// knows is used right away, otherwise the first LocationUpdated signal is awaited.
func awaitLocation(ctx context.Context, client dbus.BusObject, clientPath dbus.ObjectPath,
	sigCh <-chan *dbus.Signal,
) (dbus.ObjectPath, error) {
	if prop, err := client.GetProperty(clientIface + ".Location"); err == nil {
		if path, ok := prop.Value().(dbus.ObjectPath); ok && isLocationPath(path) {
			return path, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("no location received from geoclue: %w", ctx.Err())
		case sig, ok := <-sigCh:
			if !ok {
				return "", position.ErrNoFix
			}
			if path, ok := locationFromSignal(sig, clientPath); ok {
				return path, nil
			}
		}
	}
}

// locationFromSignal extracts the new location path from a LocationUpdated signal of the client.
func locationFromSignal(sig *dbus.Signal, clientPath dbus.ObjectPath) (dbus.ObjectPath, bool) {
	if sig == nil || sig.Path != clientPath || sig.Name != clientIface+"."+locationSignal {
		return "", false
	}
	if len(sig.Body) != 2 {
		return "", false
	}
	path, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok || !isLocationPath(path) {
		return "", false
	}
	return path, true
}

func isLocationPath(path dbus.ObjectPath) bool {
	return path.IsValid() && path != "/"
}

func readLocation(location dbus.BusObject) (position.Coordinates, error) {
	var values [3]float64
	for i, prop := range []string{"Latitude", "Longitude", "Accuracy"} {
		variant, err := location.GetProperty(locationIface + "." + prop)
		if err != nil {
			return position.Coordinates{}, fmt.Errorf("failed to get geo location %s: %w", prop, err)
		}
		value, ok := variant.Value().(float64)
		if !ok {
			return position.Coordinates{}, fmt.Errorf("unexpected type for geo location %s: %s", prop,
				variant.Signature())
		}
		values[i] = value
	}

	coord := position.Coordinates{Lat: values[0], Lon: values[1], Acc: values[2]}
	if !coord.Valid() {
		return position.Coordinates{}, position.ErrInvalidCoordinates
	}
	return coord, nil
}

// accuracyLevel maps the requested accuracy to the GeoClue2 accuracy level.
func accuracyLevel(accuracy position.Accuracy) uint32 {
	switch accuracy {
	case position.AccuracyHigh:
		return levelExact
	case position.AccuracyBalanced:
		return levelStreet
	default:
		return levelCity
	}
}
