// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/http"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/notify"
	"github.com/wneessen/waybar-location/internal/observability"
	"github.com/wneessen/waybar-location/internal/permission"
	"github.com/wneessen/waybar-location/internal/pipeline"
	"github.com/wneessen/waybar-location/internal/position"
	"github.com/wneessen/waybar-location/internal/presenter"
)

const (
	AppName          = "waybar-location"
	NotificationIcon = "find-location"
	subscriberBuffer = 16
)

type notifier interface {
	permission.Asker
	Alert(ctx context.Context, summary, body string) error
}

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	t         *spreak.Localizer
	notifier  notifier
	pipeline  *pipeline.Pipeline
	presenter *presenter.Presenter
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	scheduler gocron.Scheduler
	SignalSrc signalSource

	outputLock sync.Mutex
	output     io.Writer
}

func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if t == nil {
		return nil, errors.New("localizer is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	pres, err := presenter.New(conf, t)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := &Service{
		config:    conf,
		logger:    log,
		t:         t,
		notifier:  notify.New(AppName, NotificationIcon, 0),
		presenter: pres,
		registry:  registry,
		metrics:   observability.NewMetrics(registry),
		scheduler: scheduler,
		SignalSrc: stdLibSignalSource{},
		output:    os.Stdout,
	}

	httpClient := http.New(log)
	gate, err := service.selectGate()
	if err != nil {
		return nil, fmt.Errorf("failed to create permission gate: %w", err)
	}
	acquirer, err := service.selectAcquirer(httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create location provider: %w", err)
	}
	geocoder, err := service.selectGeocoder(httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode provider: %w", err)
	}
	accuracy, err := position.ParseAccuracy(conf.Location.Accuracy)
	if err != nil {
		return nil, err
	}

	service.pipeline, err = pipeline.New(gate, acquirer, geocoder, log, pipeline.WithAccuracy(accuracy),
		pipeline.WithMetrics(service.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create location pipeline: %w", err)
	}
	log.Debug("service initialized", slog.String("permission", conf.Permission.Mode),
		slog.String("location", acquirer.Name()), slog.String("geocoder", geocoder.Name()))

	return service, nil
}

// Run starts the first location run and keeps the module output up to date until the context is
// canceled. SIGUSR1 triggers a retry.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.printCurrent,
		"location_output_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	if s.config.Metrics.Listen != "" {
		server := observability.NewServer(s.config.Metrics.Listen, s.registry, s.logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				s.logger.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	sub, unsub := s.pipeline.Subscribe(subscriberBuffer)
	go s.processStates(ctx, sub)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1)
	go s.HandleRetrySignal(ctx, sigChan)

	if err := s.pipeline.Start(ctx); err != nil {
		s.logger.Error("failed to start location run", logger.Err(err))
	}

	// Wait for the context to cancel
	<-ctx.Done()
	s.SignalSrc.Stop(sigChan)
	unsub()
	return s.scheduler.Shutdown()
}

// RunOnce performs a single synchronous run and prints its terminal state.
func (s *Service) RunOnce(ctx context.Context) (pipeline.State, error) {
	state, err := s.pipeline.Run(ctx)
	if err != nil {
		return state, err
	}
	view := pipeline.Project(state)
	s.printView(view)
	if state.Stage == pipeline.StagePermissionDenied {
		s.alertDenied(ctx, view)
	}
	return state, nil
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// processStates prints every state change and raises the permission alert.
func (s *Service) processStates(ctx context.Context, sub <-chan pipeline.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-sub:
			if !ok {
				return
			}
			view := pipeline.Project(state)
			s.printView(view)
			if state.Stage == pipeline.StagePermissionDenied {
				s.alertDenied(ctx, view)
			}
		}
	}
}

// printCurrent re-renders the current state, so relative times in the templates stay fresh.
func (s *Service) printCurrent(context.Context) {
	s.printView(s.pipeline.View())
}

func (s *Service) printView(view pipeline.View) {
	output, err := s.presenter.Render(view)
	if err != nil {
		s.logger.Error("failed to render output", logger.Err(err))
		return
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode output", logger.Err(err))
	}
}

func (s *Service) alertDenied(ctx context.Context, view pipeline.View) {
	if err := s.notifier.Alert(ctx, s.t.Get("Permission required"), s.t.Get(view.Prompt)); err != nil {
		s.logger.Error("failed to send permission notification", logger.Err(err))
	}
}
