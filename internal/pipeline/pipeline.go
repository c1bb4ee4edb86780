// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package pipeline runs the permission, position and reverse geocoding sequence as an explicit
// state machine and publishes every state change to its subscribers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/observability"
	"github.com/wneessen/waybar-location/internal/permission"
	"github.com/wneessen/waybar-location/internal/position"
	"github.com/wneessen/waybar-location/internal/vartype"
)

const (
	outcomeResolved         = "resolved"
	outcomeUnresolved       = "unresolved"
	outcomeDenied           = "denied"
	outcomeAcquisitionError = "acquisition_error"
	outcomeGeocodingError   = "geocoding_error"
)

// Pipeline owns the current State. At most one run is active at any time.
type Pipeline struct {
	gate     permission.Gate
	acquirer position.Acquirer
	geocoder geocode.Geocoder
	logger   *logger.Logger
	accuracy position.Accuracy
	clock    clockwork.Clock
	metrics  *observability.Metrics

	running atomic.Bool

	mu          sync.RWMutex
	run         uint64
	state       State
	subscribers map[chan State]struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAccuracy sets the accuracy requested from the position source. Defaults to high.
func WithAccuracy(accuracy position.Accuracy) Option {
	return func(p *Pipeline) {
		p.accuracy = accuracy
	}
}

// WithClock replaces the clock used for state timestamps and durations.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// New returns a Pipeline in the Idle state.
func New(gate permission.Gate, acquirer position.Acquirer, geocoder geocode.Geocoder, log *logger.Logger,
	opts ...Option,
) (*Pipeline, error) {
	if gate == nil {
		return nil, errors.New("permission gate is required")
	}
	if acquirer == nil {
		return nil, errors.New("position acquirer is required")
	}
	if geocoder == nil {
		return nil, errors.New("geocoder is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	pipe := &Pipeline{
		gate:        gate,
		acquirer:    acquirer,
		geocoder:    geocoder,
		logger:      log,
		accuracy:    position.AccuracyHigh,
		clock:       clockwork.NewRealClock(),
		subscribers: make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(pipe)
	}
	pipe.state = State{Stage: StageIdle, At: pipe.clock.Now()}

	return pipe, nil
}

// Run executes a complete run from RequestingPermission to a terminal stage and returns the
// terminal State. Provider failures end up in the returned State, not in the error. If another
// run is active, the trigger is ignored and ErrRunInProgress is returned together with the
// current State.
func (p *Pipeline) Run(ctx context.Context) (State, error) {
	if !p.acquire() {
		return p.State(), ErrRunInProgress
	}
	return p.runLocked(ctx), nil
}

// Start runs the pipeline in the background. It returns ErrRunInProgress if a run is active.
// A nil error means the run has been claimed and will execute.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.acquire() {
		return ErrRunInProgress
	}
	go p.runLocked(ctx)
	return nil
}

// acquire claims the run guard. A failed claim is counted as a rejected trigger.
func (p *Pipeline) acquire() bool {
	if p.running.CompareAndSwap(false, true) {
		return true
	}
	if p.metrics != nil {
		p.metrics.RejectedTriggers.Inc()
	}
	p.logger.Debug("ignoring run trigger, a run is already in progress")
	return false
}

// runLocked executes a run. The caller must hold the run guard, which is released on return.
func (p *Pipeline) runLocked(ctx context.Context) State {
	defer p.running.Store(false)

	if p.metrics != nil {
		p.metrics.RunInProgress.Set(1)
		defer p.metrics.RunInProgress.Set(0)
	}

	p.mu.Lock()
	p.run++
	run := p.run
	p.mu.Unlock()

	start := p.clock.Now()
	state := p.execute(ctx, run)
	if p.metrics != nil {
		p.metrics.Runs.WithLabelValues(outcome(state)).Inc()
		p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	}
	if state.Err != nil {
		p.logger.Error("location run failed", slog.Uint64("run", run),
			slog.String("kind", state.Err.Kind.String()), logger.Err(state.Err))
	}

	return state
}

// Running reports whether a run is active.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// State returns the current State.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// View returns the projection of the current State.
func (p *Pipeline) View() View {
	return Project(p.State())
}

// Subscribe returns a channel that receives the current State immediately and every following
// transition. A subscriber that falls behind loses intermediate states but always receives the
// latest one. The returned function unsubscribes and closes the channel.
func (p *Pipeline) Subscribe(size int) (<-chan State, func()) {
	if size < 1 {
		size = 1
	}
	stateChan := make(chan State, size)

	p.mu.Lock()
	p.subscribers[stateChan] = struct{}{}
	deliver(stateChan, p.state)
	p.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, stateChan)
			p.mu.Unlock()
			close(stateChan)
		})
	}
	return stateChan, unsub
}

// execute walks through the stages of a single run.
func (p *Pipeline) execute(ctx context.Context, run uint64) State {
	p.transition(run, State{Stage: StageRequestingPermission})
	if p.gate.RequestForegroundAccess(ctx) != permission.Granted {
		return p.transition(run, State{Stage: StagePermissionDenied})
	}

	p.transition(run, State{Stage: StageAcquiringPosition})
	start := p.clock.Now()
	coords, err := p.acquirer.CurrentPosition(ctx, p.accuracy)
	if p.metrics != nil {
		p.metrics.AcquisitionDuration.WithLabelValues(p.acquirer.Name()).Observe(p.clock.Since(start).Seconds())
	}
	if err == nil && !coords.Valid() {
		err = fmt.Errorf("%w: %s", position.ErrInvalidCoordinates, coords)
	}
	if err != nil {
		return p.transition(run, State{
			Stage: StageError,
			Err:   &RunError{Kind: KindAcquisition, Err: err},
		})
	}

	fix := vartype.NewVariable(coords)
	p.transition(run, State{Stage: StagePositionAcquired, Coordinates: fix})
	p.transition(run, State{Stage: StageResolvingAddress, Coordinates: fix})

	candidates, err := p.geocoder.Reverse(ctx, coords)
	if err != nil {
		p.countGeocode("error")
		return p.transition(run, State{
			Stage:       StageError,
			Coordinates: fix,
			Err:         &RunError{Kind: KindGeocoding, Err: err},
		})
	}
	if len(candidates) == 0 {
		p.countGeocode("empty")
		return p.transition(run, State{Stage: StageResolutionFailed, Coordinates: fix})
	}
	p.countGeocode("success")

	address := candidates[0]
	formatted, placeholder := address.FormatOrPlaceholder()
	return p.transition(run, State{
		Stage:       StageResolved,
		Coordinates: fix,
		Address:     address,
		Formatted:   formatted,
		Placeholder: placeholder,
	})
}

// transition stamps the state and publishes it, unless run is no longer the current run.
// The run counter only advances under the run guard, so a stale run cannot occur today. The
// check keeps a late transition from overwriting a newer state should runs ever overlap.
func (p *Pipeline) transition(run uint64, state State) State {
	state.Run = run
	state.At = p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if run != p.run {
		p.logger.Debug("discarding transition of stale run", slog.Uint64("run", run),
			slog.Uint64("current", p.run), slog.String("stage", state.Stage.String()))
		return state
	}
	p.state = state
	for ch := range p.subscribers {
		deliver(ch, state)
	}
	if p.metrics != nil {
		p.metrics.StageTransitions.WithLabelValues(state.Stage.String()).Inc()
	}
	p.logger.Debug("pipeline transition", slog.Uint64("run", run), slog.String("stage", state.Stage.String()))

	return state
}

func (p *Pipeline) countGeocode(result string) {
	if p.metrics != nil {
		p.metrics.GeocodeRequests.WithLabelValues(p.geocoder.Name(), result).Inc()
	}
}

// deliver sends state without blocking. If the buffer is full, the oldest queued state is dropped.
// Callers hold p.mu, so there is only one sender per channel at a time.
func deliver(ch chan State, state State) {
	select {
	case ch <- state:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- state:
	default:
	}
}

func outcome(state State) string {
	switch state.Stage {
	case StageResolved:
		return outcomeResolved
	case StagePermissionDenied:
		return outcomeDenied
	case StageResolutionFailed:
		return outcomeUnresolved
	}
	if state.Err != nil && state.Err.Kind == KindGeocoding {
		return outcomeGeocodingError
	}
	return outcomeAcquisitionError
}
