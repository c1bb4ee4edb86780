// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/waybar-location/internal/pipeline"
)

// CSS classes of the waybar module.
const (
	ClassBusy       = "busy"
	ClassIdle       = "idle"
	ClassResolved   = "resolved"
	ClassDenied     = "denied"
	ClassUnresolved = "unresolved"
	ClassError      = "error"
)

// StageClasses maps every terminal stage to its CSS class. Stages not listed are busy.
var StageClasses = map[pipeline.Stage]string{
	pipeline.StageIdle:             ClassIdle,
	pipeline.StagePermissionDenied: ClassDenied,
	pipeline.StageResolved:         ClassResolved,
	pipeline.StageResolutionFailed: ClassUnresolved,
	pipeline.StageError:            ClassError,
}

// ClassIcons maps CSS classes to the icon shown in front of the message.
var ClassIcons = map[string]string{
	ClassBusy:       "⏳",
	ClassIdle:       "🔍",
	ClassResolved:   "📍",
	ClassDenied:     "🚫",
	ClassUnresolved: "❓",
	ClassError:      "⚠️",
}

// i18nVars are the keys accepted by the loc template function.
var i18nVars = map[string]localize.MsgID{
	"title":       "My current address",
	"coordinates": "Coordinates",
	"updated":     "Last update",
	"required":    "Permission required",
}
