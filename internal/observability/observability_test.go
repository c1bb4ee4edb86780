// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wneessen/waybar-location/internal/logger"
)

func TestNewMetrics(t *testing.T) {
	t.Run("metrics are registered", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := NewMetrics(reg)
		m.Runs.WithLabelValues("resolved").Inc()
		m.RejectedTriggers.Inc()

		count, err := testutil.GatherAndCount(reg, "waybar_location_runs_total",
			"waybar_location_rejected_triggers_total")
		if err != nil {
			t.Fatalf("failed to gather metrics: %s", err)
		}
		if count != 2 {
			t.Errorf("expected 2 metrics, got %d", count)
		}
	})
	t.Run("registering twice panics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_ = NewMetrics(reg)
		defer func() {
			if recover() == nil {
				t.Error("expected duplicate registration to panic")
			}
		}()
		_ = NewMetrics(reg)
	})
	t.Run("test metrics can be created multiple times", func(t *testing.T) {
		first := NewMetricsForTesting()
		second := NewMetricsForTesting()
		first.RunInProgress.Set(1)
		if got := testutil.ToFloat64(second.RunInProgress); got != 0 {
			t.Errorf("expected independent metrics, got %f", got)
		}
	})
}

func TestServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Runs.WithLabelValues("denied").Inc()
	server := NewServer("127.0.0.1:0", reg, logger.NewLogger(slog.LevelDebug, bytes.NewBuffer(nil)))

	t.Run("metrics endpoint serves the registry", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `waybar_location_runs_total{outcome="denied"} 1`) {
			t.Errorf("expected runs counter in response, got %s", rec.Body.String())
		}
	})
	t.Run("health endpoint reports healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "healthy") {
			t.Errorf("unexpected health response: %s", rec.Body.String())
		}
	})
	t.Run("run stops when the context is canceled", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to find free port: %s", err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		srv := NewServer(addr, reg, logger.NewLogger(slog.LevelDebug, bytes.NewBuffer(nil)))
		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()
		cancel()
		select {
		case err = <-done:
			if err != nil {
				t.Errorf("expected clean shutdown, got %s", err)
			}
		case <-time.After(time.Second * 5):
			t.Fatal("server did not shut down")
		}
	})
	t.Run("run fails on an invalid address", func(t *testing.T) {
		srv := NewServer("invalid:address:here", reg, logger.NewLogger(slog.LevelDebug, bytes.NewBuffer(nil)))
		if err := srv.Run(t.Context()); err == nil {
			t.Error("expected run to fail")
		}
	})
}
