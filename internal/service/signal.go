// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/pipeline"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleRetrySignal starts a new location run whenever a signal is received. Signals that arrive
// while a run is active are ignored.
func (s *Service) HandleRetrySignal(ctx context.Context, sigChan <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			err := s.pipeline.Start(ctx)
			switch {
			case errors.Is(err, pipeline.ErrRunInProgress):
				s.logger.Debug("retry ignored, location run in progress")
			case err != nil:
				s.logger.Error("failed to start location run", logger.Err(err))
			default:
				s.logger.Debug("retry requested")
			}
		}
	}
}
