package jsonl

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

func gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func TestEncodeGzip_OneRecordPerLine(t *testing.T) {
	data, err := EncodeGzip([]record{{"sense1", 1}, {"sense2", 2}})
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(gunzip(t, data)))
	var got []record
	for scanner.Scan() {
		var r record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		got = append(got, r)
	}
	assert.Equal(t, []record{{"sense1", 1}, {"sense2", 2}}, got)
}

func TestEncodeGzip_Empty(t *testing.T) {
	data, err := EncodeGzip[record](nil)
	require.NoError(t, err)
	assert.Empty(t, gunzip(t, data))
}

func TestEncodeGzip_Error(t *testing.T) {
	_, err := EncodeGzip([]any{make(chan int)})
	assert.Error(t, err)
}

func TestGzip(t *testing.T) {
	data, err := Gzip([]byte(`[{"eventType":"x"}]`))
	require.NoError(t, err)
	assert.Equal(t, `[{"eventType":"x"}]`, string(gunzip(t, data)))

	// Pooled writers must not leak state between calls.
	again, err := Gzip([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(gunzip(t, again)))
}
