package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/config"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/processor/categorize"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.UDP.Log.Host, cfg.UDP.Log.Port = "127.0.0.1", 0
	cfg.UDP.User.Host, cfg.UDP.User.Port = "127.0.0.1", 0
	cfg.Metrics.Address = "127.0.0.1:0"
	cfg.Metrics.ExportInterval = time.Hour
	cfg.Shutdown.Grace = time.Second

	cfg.Sinks.File.Enable = true
	cfg.Sinks.File.Directory = dir
	cfg.Sinks.File.BufferSize = 1

	cfg.Categorize = categorize.RuleSet{
		Enable: true,
		Rules: []categorize.Rule{{
			LogLevel: []string{"WARN"},
			Filter:   []categorize.Filter{{Type: "sw", Value: "Login"}},
			Action:   "categorise",
			Category: []event.Category{{Name: "qs_log_category", Value: "auth"}},
		}},
	}
	require.NoError(t, cfg.Validate())
	return cfg, filepath.Join(dir, "events.jsonl")
}

func send(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func readEnvelopes(path string) []map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var m map[string]any
		if json.Unmarshal(scanner.Bytes(), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestApp_EndToEnd(t *testing.T) {
	cfg, outPath := testConfig(t)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, setupLogger(&bytes.Buffer{}, "debug", "text"))
	require.NoError(t, err)
	require.NoError(t, a.start(ctx))

	logAddr := a.listenerAddr(event.StreamLog)
	userAddr := a.listenerAddr(event.StreamUser)
	require.NotNil(t, logAddr)
	require.NotNil(t, userAddr)
	st := a.health()
	require.True(t, st.IsHealthy(), st.Message)
	require.Len(t, st.SubStatuses, 2)

	proxy := strings.Join([]string{
		"/qseow-proxy/", "7", "20240101T120000.000+0000", "2024-01-01 12:00:00,000", "WARN",
		"sense1", "Proxy.Audit", `LAB\svc`, "Login failed for user", "LAB", "joe", "",
		"", "Login", "403", "https://sense1", "/hub",
	}, "\t")
	send(t, logAddr, proxy)
	send(t, userAddr, "/qseow-proxy-session/;sense1;Start session;LAB;joe;Origin;Context;Session started")
	send(t, logAddr, "/qseow-unknown/\tjunk")

	require.Eventually(t, func() bool { return len(readEnvelopes(outPath)) == 2 },
		5*time.Second, 10*time.Millisecond)

	byStream := map[string]map[string]any{}
	for _, env := range readEnvelopes(outPath) {
		byStream[env["stream"].(string)] = env
	}
	logEv := byStream["log"]["event"].(map[string]any)
	assert.Equal(t, "qseow-proxy", logEv["source"])
	assert.Equal(t, `LAB\joe`, logEv["user_full"])
	categories := logEv["category"].([]any)
	require.Len(t, categories, 1)
	assert.Equal(t, "auth", categories[0].(map[string]any)["value"])

	userEv := byStream["user"]["event"].(map[string]any)
	assert.Equal(t, "Start session", userEv["command"])

	require.Eventually(t, func() bool {
		return a.accepted.UnrecognizedCounts()[event.StreamLog] == 1
	}, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.stop(stopCtx))

	assert.Nil(t, a.listenerAddr(event.StreamLog))
	assert.True(t, a.health().IsUnhealthy())
	assert.Empty(t, a.accepted.LogEventCounts(), "final export drained the counters")
}

func TestApp_SinkRouting(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Sinks.File.Streams = []event.Stream{event.StreamUser}
	cfg.Metrics.Enable = false

	a, err := newApp(context.Background(), cfg, setupLogger(&bytes.Buffer{}, "info", "json"))
	require.NoError(t, err)
	defer a.stop(context.Background())

	assert.Equal(t, []string{"prometheus"}, sinkNames(a.sinks.byStream[event.StreamLog]))
	assert.Equal(t, []string{"prometheus", "file"}, sinkNames(a.sinks.byStream[event.StreamUser]))
	assert.Len(t, a.sinks.all, 2)
	assert.Nil(t, a.exporter)
}

func TestApp_InvalidSinkFailsBuild(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Sinks.HTTPPost.Enable = true
	cfg.Sinks.HTTPPost.URL = "ftp://example.com"

	_, err := newApp(context.Background(), cfg, setupLogger(&bytes.Buffer{}, "info", "json"))
	assert.Error(t, err)
}
