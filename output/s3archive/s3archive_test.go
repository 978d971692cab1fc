package s3archive

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/pkg/retry"
)

type object struct {
	key   string
	lines []map[string]any
}

type fakeUploader struct {
	mu       sync.Mutex
	objects  []object
	failures int
	calls    int
}

func (u *fakeUploader) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.failures > 0 {
		u.failures--
		return nil, stderrors.New("service unavailable")
	}

	gz, err := gzip.NewReader(in.Body)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	obj := object{key: aws.ToString(in.Key)}
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			return nil, err
		}
		obj.lines = append(obj.lines, m)
	}
	u.objects = append(u.objects, obj)
	return &s3.PutObjectOutput{}, nil
}

func (u *fakeUploader) snapshot() []object {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]object(nil), u.objects...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Bucket = "archive"
	cfg.BatchSize = 3
	cfg.MaxBuffered = 10
	cfg.FlushInterval = time.Hour
	return cfg
}

var fastRetry = retry.Config{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

func engineEvent() event.LogEvent {
	return &event.EngineEvent{LogFields: event.LogFields{Source: event.SourceEngine, Host: "sense1"}}
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.Bucket = ""
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.MaxBuffered = 2
	assert.Error(t, cfg.Validate())
}

func TestOutput_UploadsFullBatch(t *testing.T) {
	up := &fakeUploader{}
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	out, err := NewOutput(testConfig(), up, nil, WithClock(func() time.Time { return fixed }), WithRetry(fastRetry))
	require.NoError(t, err)
	defer out.Close(context.Background())

	ctx := context.Background()
	require.NoError(t, out.SendLogEvent(ctx, engineEvent()))
	require.NoError(t, out.SendLogEvent(ctx, engineEvent()))
	require.NoError(t, out.SendUserEvent(ctx, &event.UserEvent{MessageType: event.SourceProxySession, Command: "Start session"}))

	require.Eventually(t, func() bool { return len(up.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	obj := up.snapshot()[0]
	assert.True(t, strings.HasPrefix(obj.key, "sensewatch/2026/03/04/05/"), obj.key)
	assert.True(t, strings.HasSuffix(obj.key, ".jsonl.gz"), obj.key)
	require.Len(t, obj.lines, 3)
	assert.Equal(t, "log", obj.lines[0]["stream"])
	assert.Equal(t, "user", obj.lines[2]["stream"])

	stats := out.Stats()
	assert.Equal(t, int64(3), stats.Uploaded)
	assert.Equal(t, int64(1), stats.Batches)
}

func TestOutput_CloseFlushesRemainder(t *testing.T) {
	up := &fakeUploader{}
	out, err := NewOutput(testConfig(), up, metric.NewMetricsRegistry(), WithRetry(fastRetry))
	require.NoError(t, err)
	assert.Equal(t, "s3archive", out.Name())

	require.NoError(t, out.SendLogEvent(context.Background(), engineEvent()))
	assert.Empty(t, up.snapshot())

	require.NoError(t, out.Close(context.Background()))
	require.Len(t, up.snapshot(), 1)
	assert.Len(t, up.snapshot()[0].lines, 1)

	assert.Error(t, out.SendLogEvent(context.Background(), engineEvent()), "closed sink refuses events")
}

func TestOutput_RetriesThenSucceeds(t *testing.T) {
	up := &fakeUploader{failures: 2}
	out, err := NewOutput(testConfig(), up, nil, WithRetry(fastRetry))
	require.NoError(t, err)
	defer out.Close(context.Background())

	require.NoError(t, out.SendLogEvent(context.Background(), engineEvent()))
	require.NoError(t, out.Flush(context.Background()))

	stats := out.Stats()
	assert.Equal(t, int64(2), stats.UploadFailures)
	assert.Equal(t, int64(1), stats.Uploaded)
	assert.Zero(t, stats.Lost)
}

func TestOutput_LostBatchAfterRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Retries = 1
	up := &fakeUploader{failures: 5}
	out, err := NewOutput(cfg, up, nil, WithRetry(fastRetry))
	require.NoError(t, err)
	defer out.Close(context.Background())

	require.NoError(t, out.SendLogEvent(context.Background(), engineEvent()))
	require.Error(t, out.Flush(context.Background()))

	stats := out.Stats()
	assert.Equal(t, int64(1), stats.Lost)
	assert.Equal(t, 2, up.calls)
}

func TestOutput_DropsOldestWhenBufferFull(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 10
	cfg.MaxBuffered = 10
	up := &fakeUploader{}
	out, err := NewOutput(cfg, up, nil, WithRetry(fastRetry))
	require.NoError(t, err)

	// Hold the flush lock so the batch trigger cannot drain the buffer.
	out.flushMu.Lock()
	for i := 0; i < 12; i++ {
		require.NoError(t, out.SendLogEvent(context.Background(), engineEvent()))
	}
	assert.Equal(t, int64(2), out.Stats().Dropped)
	out.flushMu.Unlock()

	require.NoError(t, out.Close(context.Background()))
	total := 0
	for _, obj := range up.snapshot() {
		total += len(obj.lines)
	}
	assert.Equal(t, 10, total)
}
