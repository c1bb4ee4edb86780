// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"testing/synctest"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/http"
	"github.com/wneessen/waybar-location/internal/i18n"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/notify"
	"github.com/wneessen/waybar-location/internal/permission"
	"github.com/wneessen/waybar-location/internal/pipeline"
	"github.com/wneessen/waybar-location/internal/position"
	"github.com/wneessen/waybar-location/internal/presenter"
)

var newYork = position.Coordinates{Lat: 40.7128, Lon: -74.0060, Acc: 25}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.pipeline == nil {
			t.Fatal("expected pipeline to be non-nil")
		}
		if serv.pipeline.State().Stage != pipeline.StageIdle {
			t.Errorf("expected pipeline to be idle, got %s", serv.pipeline.State().Stage)
		}
	})
	t.Run("new service without logger fails", func(t *testing.T) {
		_, err := testService(t, true)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
	})
	t.Run("invalid template configuration should fail", func(t *testing.T) {
		t.Setenv("WAYBARLOCATION_TEMPLATES_TEXT", "{{")
		_, err := testService(t, false)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "failed to parse template"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("initializing service with different geocode providers", func(t *testing.T) {
		tests := []struct {
			name     string
			env      []string
			wantName string
			wantFail bool
		}{
			{"osm-nominatim", []string{"WAYBARLOCATION_GEOCODER_PROVIDER=nominatim"}, "osm-nominatim", false},
			{"opencage without api-key", []string{"WAYBARLOCATION_GEOCODER_PROVIDER=opencage"}, "", true},
			{
				"opencage with api-key",
				[]string{"WAYBARLOCATION_GEOCODER_PROVIDER=opencage", "WAYBARLOCATION_GEOCODER_APIKEY=abc"},
				"opencage", false,
			},
			{"geocode.earth without api-key", []string{"WAYBARLOCATION_GEOCODER_PROVIDER=geocode-earth"}, "", true},
			{
				"geocode.earth with api-key",
				[]string{"WAYBARLOCATION_GEOCODER_PROVIDER=geocode-earth", "WAYBARLOCATION_GEOCODER_APIKEY=abc"},
				"geocode-earth", false,
			},
			{"mapbox without token", []string{"WAYBARLOCATION_GEOCODER_PROVIDER=mapbox"}, "", true},
			{
				"mapbox with token",
				[]string{"WAYBARLOCATION_GEOCODER_PROVIDER=mapbox", "WAYBARLOCATION_GEOCODER_APIKEY=abc"},
				"mapbox", false,
			},
			{"arcgis", []string{"WAYBARLOCATION_GEOCODER_PROVIDER=arcgis"}, "arcgis", false},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				setEnv(t, tc.env)
				serv, err := testService(t, false)
				if tc.wantFail {
					if err == nil {
						t.Fatal("expected service creation to fail")
					}
					wantErr := "failed to create geocode provider"
					if !strings.Contains(err.Error(), wantErr) {
						t.Errorf("expected error to contain %q, got %q", wantErr, err)
					}
					return
				}
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				geocoder, err := serv.selectGeocoder(testHTTPClient(serv))
				if err != nil {
					t.Fatalf("failed to select geocoder: %s", err)
				}
				if geocoder.Name() != tc.wantName {
					t.Errorf("expected geocoder name to be %q, got %q", tc.wantName, geocoder.Name())
				}
			})
		}
	})
}

func TestService_selectProvider(t *testing.T) {
	t.Run("location providers", func(t *testing.T) {
		tests := []struct {
			provider string
			wantName string
		}{
			{"geoclue", "geoclue"},
			{"gpsd", "gpsd"},
			{"ichnaea", "ichnaea"},
			{"geoip", "geoip"},
			{"geoapi", "geoapi"},
			{"file", "geolocation_file"},
			{"cityname", "cityname_file"},
		}
		for _, tc := range tests {
			t.Run(tc.provider, func(t *testing.T) {
				t.Setenv("WAYBARLOCATION_LOCATION_PROVIDER", tc.provider)
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				acquirer, err := serv.selectAcquirer(testHTTPClient(serv))
				if err != nil {
					t.Fatalf("failed to select location provider: %s", err)
				}
				if acquirer.Name() != tc.wantName {
					t.Errorf("expected provider name to be %q, got %q", tc.wantName, acquirer.Name())
				}
			})
		}
	})
	t.Run("unsupported location provider fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Location.Provider = "carrier-pigeon"
		if _, err = serv.selectAcquirer(testHTTPClient(serv)); err == nil {
			t.Error("expected provider selection to fail")
		}
	})
	t.Run("unsupported geocoder fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.GeoCoder.Provider = "invalid"
		_, err = serv.selectGeocoder(testHTTPClient(serv))
		wantErr := "unsupported geocoder type: invalid"
		if err == nil || !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %v", wantErr, err)
		}
	})
	t.Run("permission gates", func(t *testing.T) {
		tests := []struct {
			mode string
			want string
		}{
			{"prompt", "*permission.PromptGate"},
			{"geoclue", "*permission.AgentGate"},
			{"granted", "*permission.StaticGate"},
			{"denied", "*permission.StaticGate"},
		}
		for _, tc := range tests {
			t.Run(tc.mode, func(t *testing.T) {
				t.Setenv("WAYBARLOCATION_PERMISSION_MODE", tc.mode)
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				gate, err := serv.selectGate()
				if err != nil {
					t.Fatalf("failed to select permission gate: %s", err)
				}
				if got := fmt.Sprintf("%T", gate); got != tc.want {
					t.Errorf("expected gate type %s, got %s", tc.want, got)
				}
			})
		}
	})
	t.Run("static gates return their decision", func(t *testing.T) {
		t.Setenv("WAYBARLOCATION_PERMISSION_MODE", "denied")
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		gate, err := serv.selectGate()
		if err != nil {
			t.Fatalf("failed to select permission gate: %s", err)
		}
		if got := gate.RequestForegroundAccess(t.Context()); got != permission.Denied {
			t.Errorf("expected denied, got %s", got)
		}
	})
	t.Run("unsupported permission mode fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Permission.Mode = "maybe"
		if _, err = serv.selectGate(); err == nil {
			t.Error("expected gate selection to fail")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf
			serv.SignalSrc = &fakeSignalSource{}
			gate := &countingGate{auth: permission.Granted}
			withFakePipeline(t, serv, gate, &fakeAcquirer{coords: newYork}, &fakeGeocoder{
				candidates: []geocode.Address{{Street: "Broadway", City: "New York", Postcode: "10007", Country: "USA"}},
			})

			done := make(chan error, 1)
			go func() { done <- serv.Run(ctx) }()
			synctest.Wait()

			outputs := decodeOutputs(t, buf.String())
			if len(outputs) < 2 {
				t.Fatalf("expected at least 2 output lines, got %d", len(outputs))
			}
			last := outputs[len(outputs)-1]
			if last.Class != presenter.ClassResolved {
				t.Errorf("expected last class to be %q, got %q", presenter.ClassResolved, last.Class)
			}
			if !strings.HasSuffix(last.Text, "Broadway, New York, 10007, USA") {
				t.Errorf("unexpected text: %q", last.Text)
			}
			if outputs[0].Alt != pipeline.StageIdle.String() {
				t.Errorf("expected first output to be idle, got %q", outputs[0].Alt)
			}
			if gate.calls.Load() != 1 {
				t.Errorf("expected one run, got %d", gate.calls.Load())
			}

			cancel()
			if err = <-done; err != nil {
				t.Errorf("failed to run service: %s", err)
			}
		})
	})
	t.Run("denied permission raises a notification", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.output = &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.SignalSrc = &fakeSignalSource{}
			alerts := &fakeNotifier{}
			serv.notifier = alerts
			withFakePipeline(t, serv, permission.NewStaticGate(permission.Denied), &fakeAcquirer{coords: newYork},
				&fakeGeocoder{})

			done := make(chan error, 1)
			go func() { done <- serv.Run(ctx) }()
			synctest.Wait()

			got := alerts.sent()
			if len(got) != 1 {
				t.Fatalf("expected one alert, got %d", len(got))
			}
			want := "Permission required: " + pipeline.MsgPermissionPrompt
			if got[0] != want {
				t.Errorf("expected alert %q, got %q", want, got[0])
			}

			cancel()
			if err = <-done; err != nil {
				t.Errorf("failed to run service: %s", err)
			}
		})
	})
	t.Run("the retry signal is registered", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.output = io.Discard
			signals := &fakeSignalSource{}
			serv.SignalSrc = signals
			withFakePipeline(t, serv, permission.NewStaticGate(permission.Granted), &fakeAcquirer{coords: newYork},
				&fakeGeocoder{})

			done := make(chan error, 1)
			go func() { done <- serv.Run(ctx) }()
			synctest.Wait()
			cancel()
			if err = <-done; err != nil {
				t.Errorf("failed to run service: %s", err)
			}

			if !signals.notified.Load() {
				t.Error("expected signal handler to be registered")
			}
			if !signals.stopped.Load() {
				t.Error("expected signal handler to be stopped")
			}
		})
	})
}

func TestService_RunOnce(t *testing.T) {
	t.Run("single run prints the resolved address", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		withFakePipeline(t, serv, permission.NewStaticGate(permission.Granted), &fakeAcquirer{coords: newYork},
			&fakeGeocoder{candidates: []geocode.Address{{City: "New York", Country: "USA"}}})

		state, err := serv.RunOnce(t.Context())
		if err != nil {
			t.Fatalf("run failed: %s", err)
		}
		if state.Stage != pipeline.StageResolved {
			t.Errorf("expected stage to be %s, got %s", pipeline.StageResolved, state.Stage)
		}
		outputs := decodeOutputs(t, buf.String())
		if len(outputs) != 1 {
			t.Fatalf("expected one output line, got %d", len(outputs))
		}
		if !strings.HasSuffix(outputs[0].Text, "New York, USA") {
			t.Errorf("unexpected text: %q", outputs[0].Text)
		}
		count, err := testutil.GatherAndCount(serv.registry, "waybar_location_runs_total")
		if err != nil {
			t.Fatalf("failed to gather metrics: %s", err)
		}
		if count != 1 {
			t.Errorf("expected one run series, got %d", count)
		}
	})
	t.Run("failed acquisition prints the error", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		withFakePipeline(t, serv, permission.NewStaticGate(permission.Granted),
			&fakeAcquirer{err: errors.New("no GPS fix")}, &fakeGeocoder{})

		state, err := serv.RunOnce(t.Context())
		if err != nil {
			t.Fatalf("run failed: %s", err)
		}
		if !errors.Is(state.Err, pipeline.ErrAcquisition) {
			t.Errorf("expected acquisition error, got %v", state.Err)
		}
		outputs := decodeOutputs(t, buf.String())
		if len(outputs) != 1 || outputs[0].Class != presenter.ClassError {
			t.Fatalf("expected one error output, got %+v", outputs)
		}
		if !strings.Contains(outputs[0].Text, "Error: no GPS fix") {
			t.Errorf("unexpected text: %q", outputs[0].Text)
		}
	})
	t.Run("failed alert is logged", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelInfo, logBuf)
		serv.output = io.Discard
		serv.notifier = &fakeNotifier{err: errors.New("no notification daemon")}
		withFakePipeline(t, serv, permission.NewStaticGate(permission.Denied), &fakeAcquirer{coords: newYork},
			&fakeGeocoder{})

		if _, err = serv.RunOnce(t.Context()); err != nil {
			t.Fatalf("run failed: %s", err)
		}
		wantLog := "failed to send permission notification"
		if !strings.Contains(logBuf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, logBuf.String())
		}
	})
}

func TestService_printView(t *testing.T) {
	t.Run("output is written as a JSON line", func(t *testing.T) {
		t.Setenv("WAYBARLOCATION_TEMPLATES_TEXT", "text")
		t.Setenv("WAYBARLOCATION_TEMPLATES_TOOLTIP", "tooltip")
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf

		serv.printCurrent(t.Context())

		var output presenter.Output
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if output.Text != "text" {
			t.Errorf("expected text to be %q, got %q", "text", output.Text)
		}
		if output.Tooltip != "tooltip" {
			t.Errorf("expected tooltip to be %q, got %q", "tooltip", output.Tooltip)
		}
		if output.Alt != "idle" {
			t.Errorf("expected alt to be idle, got %q", output.Alt)
		}
		if output.Class != presenter.ClassIdle {
			t.Errorf("expected class to be %q, got %q", presenter.ClassIdle, output.Class)
		}
	})
	t.Run("write errors are logged", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelInfo, logBuf)
		serv.output = failWriter{}

		serv.printCurrent(t.Context())
		wantLog := "failed to encode output"
		if !strings.Contains(logBuf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, logBuf.String())
		}
	})
}

func TestService_HandleRetrySignal(t *testing.T) {
	t.Run("USR1 signal starts a new run", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			gate := &countingGate{auth: permission.Granted}
			withFakePipeline(t, serv, gate, &fakeAcquirer{coords: newYork}, &fakeGeocoder{})

			defer shutdownScheduler(t, serv)

			sigChan := make(chan os.Signal, 1)
			go serv.HandleRetrySignal(ctx, sigChan)

			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			sigChan <- syscall.SIGUSR1
			synctest.Wait()

			if gate.calls.Load() != 2 {
				t.Errorf("expected two runs, got %d", gate.calls.Load())
			}
			if got := serv.pipeline.State().Stage; got != pipeline.StageResolutionFailed {
				t.Errorf("expected stage to be %s, got %s", pipeline.StageResolutionFailed, got)
			}
			cancel()
			synctest.Wait()
		})
	})
	t.Run("signal during an active run is ignored", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			logBuf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.logger = logger.NewLogger(slog.LevelDebug, logBuf)
			gate := &countingGate{auth: permission.Granted}
			acquirer := &fakeAcquirer{coords: newYork, release: make(chan struct{})}
			withFakePipeline(t, serv, gate, acquirer, &fakeGeocoder{})

			defer shutdownScheduler(t, serv)

			sigChan := make(chan os.Signal, 1)
			go serv.HandleRetrySignal(ctx, sigChan)

			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			close(acquirer.release)
			synctest.Wait()

			if gate.calls.Load() != 1 {
				t.Errorf("expected one run, got %d", gate.calls.Load())
			}
			wantLog := "retry ignored"
			if !strings.Contains(logBuf.String(), wantLog) {
				t.Errorf("expected log to contain %q, got %q", wantLog, logBuf.String())
			}
			cancel()
			synctest.Wait()
		})
	})
}

func testService(t *testing.T, nilLogger bool) (*Service, error) {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		return nil, err
	}

	var log *logger.Logger
	if !nilLogger {
		log = logger.NewLogger(conf.LogLevel, io.Discard)
	}

	lang, err := i18n.New("en")
	if err != nil {
		return nil, err
	}
	return New(conf, log, lang)
}

// shutdownScheduler stops the scheduler of a service whose Run was never called.
func shutdownScheduler(t *testing.T, serv *Service) {
	t.Helper()
	if err := serv.scheduler.Shutdown(); err != nil {
		t.Errorf("failed to shut down scheduler: %s", err)
	}
}

// withFakePipeline replaces the configured providers of the service with fakes.
func withFakePipeline(t *testing.T, serv *Service, gate permission.Gate, acquirer position.Acquirer,
	geocoder geocode.Geocoder,
) {
	t.Helper()
	pipe, err := pipeline.New(gate, acquirer, geocoder, serv.logger, pipeline.WithMetrics(serv.metrics))
	if err != nil {
		t.Fatalf("failed to create pipeline: %s", err)
	}
	serv.pipeline = pipe
}

func testHTTPClient(serv *Service) *http.Client {
	return http.New(serv.logger)
}

func setEnv(t *testing.T, env []string) {
	t.Helper()
	for _, envVar := range env {
		vals := strings.Split(envVar, "=")
		if len(vals) != 2 {
			t.Fatalf("invalid env var %q", envVar)
		}
		t.Setenv(vals[0], vals[1])
	}
}

func decodeOutputs(t *testing.T, data string) []presenter.Output {
	t.Helper()
	var outputs []presenter.Output
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		var output presenter.Output
		if err := json.Unmarshal(scanner.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON line %q: %s", scanner.Text(), err)
		}
		outputs = append(outputs, output)
	}
	return outputs
}

type (
	failWriter       struct{}
	fakeSignalSource struct {
		notified atomic.Bool
		stopped  atomic.Bool
	}
	countingGate struct {
		auth  permission.Authorization
		calls atomic.Int32
	}
	fakeAcquirer struct {
		coords  position.Coordinates
		err     error
		release chan struct{}
	}
	fakeGeocoder struct {
		candidates []geocode.Address
		err        error
	}
	fakeNotifier struct {
		mu     sync.Mutex
		alerts []string
		err    error
	}
	syncBuffer struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func (f failWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("failed to write") }

func (f *fakeSignalSource) Notify(chan<- os.Signal, ...os.Signal) { f.notified.Store(true) }

func (f *fakeSignalSource) Stop(chan<- os.Signal) { f.stopped.Store(true) }

func (g *countingGate) RequestForegroundAccess(context.Context) permission.Authorization {
	g.calls.Add(1)
	return g.auth
}

func (a *fakeAcquirer) Name() string { return "mock acquirer" }

func (a *fakeAcquirer) CurrentPosition(ctx context.Context, _ position.Accuracy) (position.Coordinates, error) {
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return position.Coordinates{}, ctx.Err()
		}
	}
	return a.coords, a.err
}

func (g *fakeGeocoder) Name() string { return "mock geocoder" }

func (g *fakeGeocoder) Reverse(context.Context, position.Coordinates) ([]geocode.Address, error) {
	return g.candidates, g.err
}

func (n *fakeNotifier) Alert(_ context.Context, summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, summary+": "+body)
	return nil
}

func (n *fakeNotifier) Ask(context.Context, string, string, []notify.Action) (string, error) {
	return "", notify.ErrDismissed
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
