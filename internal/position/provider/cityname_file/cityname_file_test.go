// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package cityname_file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wneessen/waybar-location/internal/position"
)

const (
	testFile = "../../../../testdata/cityname"
	testLat  = 40.7127
	testLon  = -74.006
)

type mockSearcher struct {
	queries []string
	fn      func(query string) (position.Coordinates, error)
}

func (m *mockSearcher) Search(_ context.Context, query string) (position.Coordinates, error) {
	m.queries = append(m.queries, query)
	return m.fn(query)
}

func TestNewCitynameFileProvider(t *testing.T) {
	t.Run("new cityname file provider succeeds", func(t *testing.T) {
		provider, err := NewCitynameFileProvider(testFile, &mockSearcher{})
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if !strings.EqualFold(provider.Name(), name) {
			t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
		}
	})
	t.Run("new cityname file provider without searcher fails", func(t *testing.T) {
		if _, err := NewCitynameFileProvider(testFile, nil); err == nil {
			t.Fatal("expected provider creation to fail")
		}
	})
}

func TestCitynameFileProvider_CurrentPosition(t *testing.T) {
	t.Run("first city name in file is resolved", func(t *testing.T) {
		searcher := &mockSearcher{fn: func(string) (position.Coordinates, error) {
			return position.Coordinates{Lat: testLat, Lon: testLon}, nil
		}}
		provider, err := NewCitynameFileProvider(testFile, searcher)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		coord, err := provider.CurrentPosition(t.Context(), position.AccuracyHigh)
		if err != nil {
			t.Fatalf("failed to get current position: %s", err)
		}
		if coord.Lat != testLat || coord.Lon != testLon {
			t.Errorf("expected %f/%f, got %f/%f", testLat, testLon, coord.Lat, coord.Lon)
		}
		if coord.Acc != position.AccuracyCity {
			t.Errorf("expected accuracy to be %d, got %f", position.AccuracyCity, coord.Acc)
		}
		if len(searcher.queries) != 1 || searcher.queries[0] != "New York City" {
			t.Errorf("expected a single query for New York City, got %v", searcher.queries)
		}
	})
	t.Run("unresolvable city name fails", func(t *testing.T) {
		searcher := &mockSearcher{fn: func(string) (position.Coordinates, error) {
			return position.Coordinates{}, errors.New("not found")
		}}
		provider, err := NewCitynameFileProvider(testFile, searcher)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		_, err = provider.CurrentPosition(t.Context(), position.AccuracyHigh)
		if !errors.Is(err, ErrNoCityName) {
			t.Errorf("expected error to be %s, got %s", ErrNoCityName, err)
		}
	})
	t.Run("file without city names fails", func(t *testing.T) {
		searcher := &mockSearcher{fn: func(string) (position.Coordinates, error) {
			t.Fatal("no search expected")
			return position.Coordinates{}, nil
		}}
		file := filepath.Join(t.TempDir(), "cityname")
		if err := os.WriteFile(file, []byte("# nothing here\n\n"), 0o600); err != nil {
			t.Fatalf("failed to write cityname file: %s", err)
		}
		provider, err := NewCitynameFileProvider(file, searcher)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		_, err = provider.CurrentPosition(t.Context(), position.AccuracyHigh)
		if !errors.Is(err, ErrNoCityName) {
			t.Errorf("expected error to be %s, got %s", ErrNoCityName, err)
		}
	})
	t.Run("missing file fails", func(t *testing.T) {
		provider, err := NewCitynameFileProvider("non-existent.txt", &mockSearcher{})
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if _, err = provider.CurrentPosition(t.Context(), position.AccuracyHigh); err == nil {
			t.Fatal("expected current position to fail for missing file")
		}
	})
}
