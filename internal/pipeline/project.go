// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"time"

	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/position"
	"github.com/wneessen/waybar-location/internal/vartype"
)

// Status messages. They double as message IDs for the translation catalogs.
const (
	MsgSearching            = "Searching for location..."
	MsgRequestingPermission = "Requesting location permission..."
	MsgPermissionDenied     = "Permission denied"
	MsgPermissionPrompt     = "The application needs access to your location to show the address."
	MsgAcquiring            = "Obtaining coordinates..."
	MsgAcquired             = "Coordinates obtained: Lat %.4f, Lon %.4f..."
	MsgResolving            = "Resolving address..."
	MsgResolutionFailed     = "Reverse geocoding failed"
	MsgError                = "Error: %s"
	msgAddress              = "%s"
)

// Msg is a status message as format string and arguments, so that presenters can translate the
// format before rendering.
type Msg struct {
	Format string
	Args   []any
}

// String renders the message in English.
func (m Msg) String() string {
	if len(m.Args) == 0 {
		return m.Format
	}
	return fmt.Sprintf(m.Format, m.Args...)
}

// View is the presentation-facing projection of a State.
type View struct {
	Stage        Stage
	Message      string
	Msg          Msg
	Busy         bool
	RetryEnabled bool
	Prompt       string
	Coordinates  vartype.Variable[position.Coordinates]
	Address      geocode.Address
	Placeholder  bool
	UpdatedAt    time.Time
}

// Project maps a State onto its View. Busy and RetryEnabled are always opposite.
func Project(state State) View {
	view := View{
		Stage:       state.Stage,
		Coordinates: state.Coordinates,
		UpdatedAt:   state.At,
	}

	switch state.Stage {
	case StageRequestingPermission:
		view.Msg = Msg{Format: MsgRequestingPermission}
	case StagePermissionDenied:
		view.Msg = Msg{Format: MsgPermissionDenied}
		view.Prompt = MsgPermissionPrompt
	case StageAcquiringPosition:
		view.Msg = Msg{Format: MsgAcquiring}
	case StagePositionAcquired:
		coords := state.Coordinates.Value()
		view.Msg = Msg{Format: MsgAcquired, Args: []any{coords.Lat, coords.Lon}}
	case StageResolvingAddress:
		view.Msg = Msg{Format: MsgResolving}
	case StageResolved:
		view.Address = state.Address
		view.Placeholder = state.Placeholder
		if state.Placeholder {
			view.Msg = Msg{Format: geocode.Placeholder}
			break
		}
		view.Msg = Msg{Format: msgAddress, Args: []any{state.Formatted}}
	case StageResolutionFailed:
		view.Msg = Msg{Format: MsgResolutionFailed}
	case StageError:
		reason := "unknown error"
		if state.Err != nil {
			reason = state.Err.Error()
		}
		view.Msg = Msg{Format: MsgError, Args: []any{reason}}
	default:
		view.Msg = Msg{Format: MsgSearching}
	}

	view.Message = view.Msg.String()
	view.Busy = !state.Stage.Terminal()
	view.RetryEnabled = !view.Busy
	return view
}
