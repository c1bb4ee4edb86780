// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
)

var (
	// ErrRunInProgress is returned when a run is triggered while another run is still active.
	ErrRunInProgress = errors.New("a location run is already in progress")

	// ErrAcquisition matches every RunError of KindAcquisition.
	ErrAcquisition = errors.New("position acquisition failed")

	// ErrGeocoding matches every RunError of KindGeocoding.
	ErrGeocoding = errors.New("reverse geocoding failed")
)

// ErrorKind tags the stage a run failed in.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindAcquisition
	KindGeocoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindAcquisition:
		return "acquisition"
	case KindGeocoding:
		return "geocoding"
	default:
		return "none"
	}
}

// RunError wraps a provider failure with the kind of stage it occurred in.
type RunError struct {
	Kind ErrorKind
	Err  error
}

// Error returns the message of the underlying error unchanged.
func (e *RunError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is matches ErrAcquisition and ErrGeocoding by kind.
func (e *RunError) Is(target error) bool {
	switch target {
	case ErrAcquisition:
		return e.Kind == KindAcquisition
	case ErrGeocoding:
		return e.Kind == KindGeocoding
	default:
		return false
	}
}
