// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/testhelper"
)

type testType struct {
	String string  `json:"string"`
	Int    int     `json:"int"`
	Float  float64 `json:"float"`
	Bool   bool    `json:"bool"`
}

const testFile = "../../testdata/testtype.json"

func TestNew(t *testing.T) {
	client := New(logger.New(slog.LevelInfo))
	if client == nil {
		t.Fatal("expected client to be non-nil")
	}
	if client.Timeout != DefaultTimeout {
		t.Errorf("expected client timeout to be %s, got %s", DefaultTimeout, client.Timeout)
	}
}

func TestClient_Get(t *testing.T) {
	t.Run("getting and serializing JSON should work", func(t *testing.T) {
		var seen *stdhttp.Request
		fileFn := testhelper.FileResponse(t, testFile, stdhttp.StatusOK)
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			seen = req
			return fileFn(req)
		}

		client := New(logger.New(slog.LevelInfo))
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		query := url.Values{}
		query.Add("lat", "40.712800")
		headers := map[string]string{"X-Custom-Header": "custom-value"}

		target := new(testType)
		code, err := client.Get(t.Context(), "https://example.com/reverse", target, query, headers)
		if err != nil {
			t.Fatalf("failed to get JSON response: %s", err)
		}
		if code != stdhttp.StatusOK {
			t.Errorf("expected status code 200, got %d", code)
		}
		if target.String != "test" || target.Int != 123 || target.Float != 123.456 || !target.Bool {
			t.Errorf("unexpected decoded target: %+v", target)
		}
		if seen == nil {
			t.Fatal("expected request to reach the transport")
		}
		if got := seen.URL.Query().Get("lat"); got != "40.712800" {
			t.Errorf("expected lat query parameter to be sent, got %q", got)
		}
		if got := seen.Header.Get("User-Agent"); got != UserAgent {
			t.Errorf("expected user agent %q, got %q", UserAgent, got)
		}
		if got := seen.Header.Get("X-Custom-Header"); got != "custom-value" {
			t.Errorf("expected custom header to be sent, got %q", got)
		}
	})
	t.Run("non-200 status codes are returned to the caller", func(t *testing.T) {
		client := New(logger.New(slog.LevelInfo))
		client.Transport = testhelper.MockRoundTripper{Fn: testhelper.FileResponse(t, testFile, 429)}
		code, err := client.Get(t.Context(), "https://example.com", new(testType), nil, nil)
		if err != nil {
			t.Fatalf("expected body to decode, got: %s", err)
		}
		if code != 429 {
			t.Errorf("expected status code 429, got %d", code)
		}
	})
	t.Run("unmarshalling into non-pointer should fail", func(t *testing.T) {
		client := New(logger.New(slog.LevelInfo))
		var target testType
		_, err := client.Get(t.Context(), "https://example.com", target, nil, nil)
		if !errors.Is(err, ErrNonPointerTarget) {
			t.Errorf("expected error to be %s, got %s", ErrNonPointerTarget, err)
		}
	})
	t.Run("parsing an invalid url should fail", func(t *testing.T) {
		client := New(logger.New(slog.LevelInfo))
		_, err := client.Get(t.Context(), "http://example.com/xyz%", new(testType), nil, nil)
		if err == nil {
			t.Fatal("expected get to fail")
		}
		if !strings.Contains(err.Error(), "failed to parse URL") {
			t.Errorf("expected error to contain 'failed to parse URL', got %s", err)
		}
	})
	t.Run("transport errors are wrapped", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}
		client := New(logger.New(slog.LevelInfo))
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		_, err := client.Get(t.Context(), "https://example.com", new(testType), nil, nil)
		if err == nil {
			t.Fatal("expected get request to fail")
		}
		if !strings.Contains(err.Error(), "intentionally failing") {
			t.Errorf("expected the transport error to be preserved, got %s", err)
		}
	})
	t.Run("broken bodies fail to decode", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return &stdhttp.Response{
				StatusCode: 200,
				Body:       &failReadCloser{},
				Header:     make(stdhttp.Header),
			}, nil
		}
		client := New(logger.NewLogger(slog.LevelInfo, io.Discard))
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		_, err := client.Get(t.Context(), "https://example.com", new(testType), nil, nil)
		if err == nil {
			t.Fatal("expected get request to fail")
		}
	})
}

func TestClient_Post(t *testing.T) {
	t.Run("post request sends the body", func(t *testing.T) {
		var body []byte
		fileFn := testhelper.FileResponse(t, testFile, stdhttp.StatusOK)
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			if req.Method != stdhttp.MethodPost {
				t.Errorf("expected POST request, got %s", req.Method)
			}
			var err error
			body, err = io.ReadAll(req.Body)
			if err != nil {
				t.Fatalf("failed to read request body: %s", err)
			}
			return fileFn(req)
		}

		client := New(logger.New(slog.LevelInfo))
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		_, err := client.Post(t.Context(), "https://example.com", new(testType), strings.NewReader(`{"a":1}`),
			map[string]string{"Content-Type": "application/json"})
		if err != nil {
			t.Fatalf("post request failed: %s", err)
		}
		if string(body) != `{"a":1}` {
			t.Errorf("expected body to be sent, got %q", body)
		}
	})
}

func TestClient_PostWithTimeout(t *testing.T) {
	t.Run("post request times out", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}
		client := New(logger.New(slog.LevelInfo))
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}

		_, err := client.PostWithTimeout(t.Context(), "https://example.com", new(testType), nil, nil,
			time.Millisecond)
		if err == nil {
			t.Fatal("expected post request to timeout")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected error to be %s, got %s", context.DeadlineExceeded, err)
		}
	})
}

type failReadCloser struct{}

func (failReadCloser) Read(p []byte) (int, error) { return len(p), nil }
func (failReadCloser) Close() error               { return errors.New("failed to close") }
