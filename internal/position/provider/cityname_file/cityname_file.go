// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package cityname_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wneessen/waybar-location/internal/position"
)

const (
	name = "cityname_file"
)

var ErrNoCityName = errors.New("no valid city name found in cityname file")

// Searcher resolves a free-form place name to coordinates.
type Searcher interface {
	Search(ctx context.Context, query string) (position.Coordinates, error)
}

// CitynameFileProvider reads a place name from a file and forward geocodes it. Every non-empty,
// non-comment line is tried in order until one resolves.
type CitynameFileProvider struct {
	name     string
	path     string
	searcher Searcher
}

// NewCitynameFileProvider initializes a CitynameFileProvider with a file path and the searcher
// used to resolve the city name.
func NewCitynameFileProvider(path string, searcher Searcher) (*CitynameFileProvider, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	return &CitynameFileProvider{
		name:     name,
		path:     path,
		searcher: searcher,
	}, nil
}

// Name returns the name of the CitynameFileProvider instance.
func (p *CitynameFileProvider) Name() string {
	return p.name
}

// CurrentPosition returns the position of the first city name in the file that can be resolved.
func (p *CitynameFileProvider) CurrentPosition(ctx context.Context, _ position.Accuracy) (position.Coordinates, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return position.Coordinates{}, fmt.Errorf("failed to read cityname file %q: %w", p.path, err)
	}

	var errs []error
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		coord, err := p.searcher.Search(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return position.Coordinates{}, err
			}
			errs = append(errs, fmt.Errorf("failed to look up %q: %w", line, err))
			continue
		}
		coord.Acc = position.AccuracyCity
		return coord, nil
	}
	if len(errs) > 0 {
		return position.Coordinates{}, errors.Join(append([]error{ErrNoCityName}, errs...)...)
	}
	return position.Coordinates{}, ErrNoCityName
}
