// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package permission decides whether the application may access the current location.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/notify"
)

const (
	DBusListNamesAddress = "org.freedesktop.DBus.ListNames"

	actionAllow = "allow"
	actionDeny  = "deny"
)

// Authorization is the outcome of a permission request.
type Authorization int

const (
	Denied Authorization = iota
	Granted
)

func (a Authorization) String() string {
	if a == Granted {
		return "granted"
	}
	return "denied"
}

// Gate asks for foreground location access. Failures of the underlying mechanism are reported as
// Denied.
type Gate interface {
	RequestForegroundAccess(ctx context.Context) Authorization
}

// StaticGate always returns the same decision.
type StaticGate struct {
	decision Authorization
}

func NewStaticGate(decision Authorization) *StaticGate {
	return &StaticGate{decision: decision}
}

func (g *StaticGate) RequestForegroundAccess(context.Context) Authorization {
	return g.decision
}

// Asker shows a question with a set of answers to the user and returns the chosen answer's key.
type Asker interface {
	Ask(ctx context.Context, summary, body string, actions []notify.Action) (string, error)
}

// PromptGate asks the user through a desktop notification. An explicit answer is remembered for
// the lifetime of the gate, a dismissed or failed prompt denies access for the current request only.
type PromptGate struct {
	asker  Asker
	loc    *spreak.Localizer
	logger *logger.Logger

	mu       sync.Mutex
	answered bool
	decision Authorization
}

func NewPromptGate(asker Asker, loc *spreak.Localizer, log *logger.Logger) *PromptGate {
	return &PromptGate{
		asker:  asker,
		loc:    loc,
		logger: log,
	}
}

func (g *PromptGate) RequestForegroundAccess(ctx context.Context) Authorization {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.answered {
		return g.decision
	}

	actions := []notify.Action{
		{Key: actionAllow, Label: g.loc.Get("Allow")},
		{Key: actionDeny, Label: g.loc.Get("Deny")},
	}
	answer, err := g.asker.Ask(ctx, g.loc.Get("Location access"),
		g.loc.Get("Allow waybar-location to access your current location?"), actions)
	if err != nil {
		if !errors.Is(err, notify.ErrDismissed) {
			g.logger.Error("failed to ask for location permission", logger.Err(err))
		}
		return Denied
	}

	switch answer {
	case actionAllow:
		g.decision = Granted
	case actionDeny:
		g.decision = Denied
	default:
		// Some daemons invoke "default" when the notification body is clicked
		return Denied
	}
	g.answered = true
	g.logger.Debug("location permission answered", slog.String("decision", g.decision.String()))
	return g.decision
}

// AgentGate grants access when a GeoClue agent is present on the session bus. The agent is the
// component that asks the user on behalf of GeoClue.
type AgentGate struct {
	agent        string
	logger       *logger.Logger
	agentRunning func(ctx context.Context) (bool, error)
}

func NewAgentGate(agent string, log *logger.Logger) *AgentGate {
	gate := &AgentGate{
		agent:  agent,
		logger: log,
	}
	gate.agentRunning = gate.geoClueAgentIsRunning
	return gate
}

func (g *AgentGate) RequestForegroundAccess(ctx context.Context) Authorization {
	running, err := g.agentRunning(ctx)
	if err != nil {
		g.logger.Error("failed to check for geoclue agent", logger.Err(err))
		return Denied
	}
	if !running {
		g.logger.Warn("geoclue agent is not running", slog.String("agent", g.agent))
		return Denied
	}
	return Granted
}

func (g *AgentGate) geoClueAgentIsRunning(ctx context.Context) (isRunning bool, err error) {
	var list []string
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
		}
	}()

	if err = conn.BusObject().CallWithContext(ctx, DBusListNamesAddress, 0).Store(&list); err != nil {
		return false, fmt.Errorf("failed to call DBus ListNames: %w", err)
	}

	for _, v := range list {
		if strings.EqualFold(v, g.agent) {
			return true, nil
		}
	}
	return false, nil
}
