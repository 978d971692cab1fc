package file

import (
	"bufio"
	"context"
	"os"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Format: "jsonl"}
	assert.Error(t, cfg.Validate())

	cfg = Config{Directory: "/tmp", Format: "raw"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestOutput_FlushesOnBufferSize(t *testing.T) {
	dir := t.TempDir()
	out, err := NewOutput(Config{Directory: dir, BufferSize: 2, FlushInterval: time.Hour}, nil)
	require.NoError(t, err)
	defer out.Close(context.Background())

	ctx := context.Background()
	require.NoError(t, out.SendLogEvent(ctx, &event.ProxyEvent{LogFields: event.LogFields{Source: event.SourceProxy, Host: "sense1"}}))
	events, _ := out.Written()
	assert.Zero(t, events)

	require.NoError(t, out.SendUserEvent(ctx, &event.UserEvent{MessageType: event.SourceProxySession, Command: "Start session"}))
	events, n := out.Written()
	assert.Equal(t, int64(2), events)
	assert.Positive(t, n)

	lines := readLines(t, out.Path())
	require.Len(t, lines, 2)
	assert.Equal(t, "log", lines[0]["stream"])
	assert.Equal(t, "qseow-proxy", lines[0]["source"])
	assert.Equal(t, "user", lines[1]["stream"])
	assert.Equal(t, "Start session", lines[1]["event"].(map[string]any)["command"])
}

func TestOutput_PeriodicFlush(t *testing.T) {
	out, err := NewOutput(Config{Directory: t.TempDir(), BufferSize: 100, FlushInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer out.Close(context.Background())

	require.NoError(t, out.SendLogEvent(context.Background(), &event.EngineEvent{LogFields: event.LogFields{Source: event.SourceEngine}}))
	require.Eventually(t, func() bool {
		events, _ := out.Written()
		return events == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOutput_CloseFlushesAndIsIdempotent(t *testing.T) {
	out, err := NewOutput(Config{Directory: t.TempDir(), FilePrefix: "archive", FlushInterval: time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, "file", out.Name())

	require.NoError(t, out.SendLogEvent(context.Background(), &event.SchedulerEvent{LogFields: event.LogFields{Source: event.SourceScheduler}}))
	require.NoError(t, out.Close(context.Background()))
	require.NoError(t, out.Close(context.Background()))

	assert.Len(t, readLines(t, out.Path()), 1)
	assert.Contains(t, out.Path(), "archive.jsonl")
}

func TestOutput_AppendsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		out, err := NewOutput(Config{Directory: dir, BufferSize: 1}, nil)
		require.NoError(t, err)
		require.NoError(t, out.SendLogEvent(context.Background(), &event.EngineEvent{LogFields: event.LogFields{Source: event.SourceEngine}}))
		require.NoError(t, out.Close(context.Background()))
	}
	out, err := NewOutput(Config{Directory: dir}, nil)
	require.NoError(t, err)
	defer out.Close(context.Background())
	assert.Len(t, readLines(t, out.Path()), 2)
}
