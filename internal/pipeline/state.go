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

// Stage is the position of a run in the permission, position and address sequence.
type Stage int

const (
	StageIdle Stage = iota
	StageRequestingPermission
	StagePermissionDenied
	StageAcquiringPosition
	StagePositionAcquired
	StageResolvingAddress
	StageResolved
	StageResolutionFailed
	StageError
)

var stageNames = map[Stage]string{
	StageIdle:                 "idle",
	StageRequestingPermission: "requesting_permission",
	StagePermissionDenied:     "permission_denied",
	StageAcquiringPosition:    "acquiring_position",
	StagePositionAcquired:     "position_acquired",
	StageResolvingAddress:     "resolving_address",
	StageResolved:             "resolved",
	StageResolutionFailed:     "resolution_failed",
	StageError:                "error",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further transition follows without a new run. Idle and unknown
// stages count as terminal since they accept a run trigger.
func (s Stage) Terminal() bool {
	switch s {
	case StageRequestingPermission, StageAcquiringPosition, StagePositionAcquired, StageResolvingAddress:
		return false
	default:
		return true
	}
}

// State is the complete pipeline state. It is replaced on every transition and never mutated
// after it was published.
type State struct {
	Stage Stage
	// Run is the number of the run that produced the state. 0 is the initial Idle state.
	Run         uint64
	Coordinates vartype.Variable[position.Coordinates]
	Address     geocode.Address
	Formatted   string
	Placeholder bool
	Err         *RunError
	At          time.Time
}
