package httppost

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
)

func engineEvent() *event.EngineEvent {
	return &event.EngineEvent{
		LogFields: event.LogFields{
			Source:   event.SourceEngine,
			Level:    "ERROR",
			Host:     "sense1",
			Message:  "Failed to open app",
			Category: []event.Category{},
		},
		AppID: "3bde2a26-9c1d-4c33-9a29-1fe1d1e2e0a1",
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{URL: "https://insights.example.com/v1/events"}, true},
		{"missing url", Config{}, false},
		{"bad scheme", Config{URL: "ftp://example.com"}, false},
		{"too many retries", Config{URL: "http://x", RetryCount: 11}, false},
		{"negative timeout", Config{URL: "http://x", Timeout: -time.Second}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestOutput_PostsFlatRecord(t *testing.T) {
	var got []map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	out, err := NewOutput(Config{
		URL:        srv.URL,
		Headers:    map[string]string{"Api-Key": "secret"},
		Attributes: map[string]string{"env": "prod", "host": "ignored"},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, out.SendLogEvent(context.Background(), engineEvent()))

	require.Len(t, got, 1)
	assert.Equal(t, "QlikSenseLogEvent", got[0]["eventType"])
	assert.Equal(t, "sense1", got[0]["host"], "event fields win over attributes")
	assert.Equal(t, "prod", got[0]["env"])
	assert.Equal(t, "qseow-engine", got[0]["source"])
	assert.Equal(t, "secret", headers.Get("Api-Key"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, int64(1), out.Stats().Sent)
}

func TestOutput_Gzip(t *testing.T) {
	var body []byte
	var encoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding = r.Header.Get("Content-Encoding")
		zr, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		body, err = io.ReadAll(zr)
		assert.NoError(t, err)
	}))
	defer srv.Close()

	out, err := NewOutput(Config{URL: srv.URL, Gzip: true, EventTypePrefix: "Sense"}, nil)
	require.NoError(t, err)

	require.NoError(t, out.SendUserEvent(context.Background(), &event.UserEvent{
		MessageType: event.SourceProxySession,
		Command:     "Start session",
	}))
	assert.Equal(t, "gzip", encoding)
	assert.True(t, bytes.Contains(body, []byte(`"eventType":"SenseUserEvent"`)))
}

func TestOutput_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := NewOutput(Config{URL: srv.URL, RetryCount: 3}, nil)
	require.NoError(t, err)
	out.retry.InitialDelay = time.Millisecond
	out.retry.MaxDelay = time.Millisecond

	require.NoError(t, out.SendLogEvent(context.Background(), engineEvent()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(2), out.Stats().Retried)
}

func TestOutput_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out, err := NewOutput(Config{URL: srv.URL, RetryCount: 5}, nil)
	require.NoError(t, err)

	err = out.SendLogEvent(context.Background(), engineEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), out.Stats().Errors)
}

func TestOutput_HonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	out, err := NewOutput(Config{URL: srv.URL}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.Error(t, out.SendLogEvent(ctx, engineEvent()))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "httppost", out.Name())
	assert.NoError(t, out.Close(context.Background()))
}
