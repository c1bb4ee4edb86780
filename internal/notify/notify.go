// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package notify talks to the desktop notification daemon over the session bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	iface      = "org.freedesktop.Notifications"

	signalActionInvoked = iface + ".ActionInvoked"
	signalClosed        = iface + ".NotificationClosed"
	signalBufferSize    = 8

	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// ErrDismissed is returned by Ask when the notification was closed without choosing an action.
var ErrDismissed = errors.New("notification was dismissed")

// Action is a button shown on a notification.
type Action struct {
	Key   string
	Label string
}

// Notifier sends desktop notifications.
type Notifier struct {
	appName   string
	icon      string
	expire    time.Duration
	connectFn func(ctx context.Context) (*dbus.Conn, error)
}

// New returns a Notifier that sends notifications as appName. Notifications expire after expire,
// zero leaves it to the notification daemon.
func New(appName, icon string, expire time.Duration) *Notifier {
	return &Notifier{
		appName: appName,
		icon:    icon,
		expire:  expire,
		connectFn: func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSessionBus(dbus.WithContext(ctx))
		},
	}
}

// Alert shows a notification without actions and returns once the daemon accepted it.
func (n *Notifier) Alert(ctx context.Context, summary, body string) (err error) {
	conn, err := n.connectFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
		}
	}()

	_, err = n.notify(ctx, conn, summary, body, nil, urgencyCritical)
	return err
}

// Ask shows a notification with the given actions and blocks until the user picks one. The key
// of the chosen action is returned. ErrDismissed is returned if the notification is closed or
// expires without an answer.
func (n *Notifier) Ask(ctx context.Context, summary, body string, actions []Action) (key string, err error) {
	conn, err := n.connectFn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
		}
	}()

	// Subscribe before sending, the answer may arrive before Notify returns
	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)
	if err = conn.AddMatchSignal(dbus.WithMatchObjectPath(objectPath), dbus.WithMatchInterface(iface)); err != nil {
		return "", fmt.Errorf("failed to subscribe to notification signals: %w", err)
	}

	id, err := n.notify(ctx, conn, summary, body, actions, urgencyNormal)
	if err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			conn.Object(busName, objectPath).Go(iface+".CloseNotification", dbus.FlagNoReplyExpected, nil, id)
			return "", ctx.Err()
		case sig, ok := <-sigCh:
			if !ok {
				return "", ErrDismissed
			}
			key, closed, match := answerFromSignal(sig, id)
			if !match {
				continue
			}
			if closed {
				return "", ErrDismissed
			}
			return key, nil
		}
	}
}

func (n *Notifier) notify(ctx context.Context, conn *dbus.Conn, summary, body string, actions []Action,
	urgency byte,
) (uint32, error) {
	flatActions := make([]string, 0, len(actions)*2)
	for _, action := range actions {
		flatActions = append(flatActions, action.Key, action.Label)
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency),
	}

	var id uint32
	obj := conn.Object(busName, objectPath)
	if err := obj.CallWithContext(ctx, iface+".Notify", 0, n.appName, uint32(0), n.icon, summary, body,
		flatActions, hints, expireTimeout(n.expire)).Store(&id); err != nil {
		return 0, fmt.Errorf("failed to send desktop notification: %w", err)
	}
	return id, nil
}

// answerFromSignal checks if sig belongs to the notification with the given id. It returns the
// invoked action key, or closed if the notification went away without an action.
func answerFromSignal(sig *dbus.Signal, id uint32) (key string, closed, match bool) {
	if sig == nil || len(sig.Body) < 2 {
		return "", false, false
	}
	sigID, ok := sig.Body[0].(uint32)
	if !ok || sigID != id {
		return "", false, false
	}

	switch sig.Name {
	case signalActionInvoked:
		key, ok = sig.Body[1].(string)
		if !ok {
			return "", false, false
		}
		return key, false, true
	case signalClosed:
		return "", true, true
	default:
		return "", false, false
	}
}

// expireTimeout converts the duration into the notification expire timeout in milliseconds, -1
// lets the daemon decide.
func expireTimeout(d time.Duration) int32 {
	if d <= 0 {
		return -1
	}
	return int32(d.Milliseconds())
}
