package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		stream Stream
		raw    string
		want   Source
		known  bool
	}{
		{StreamLog, "/qseow-engine/", SourceEngine, true},
		{StreamLog, "qseow-qix-perf", SourceQixPerf, true},
		{StreamLog, " /QSEOW-PROXY/ ", SourceProxy, true},
		{StreamLog, "/qseow-proxy-session/", SourceProxySession, false},
		{StreamUser, "/qseow-proxy-session/", SourceProxySession, true},
		{StreamUser, "/qseow-engine/", SourceEngine, false},
		{StreamLog, "/unknown-source/", Source("unknown-source"), false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseSource(tt.stream, tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestNormalizeUser(t *testing.T) {
	dir, id, full := NormalizeUser("LAB", "goran", "")
	assert.Equal(t, "LAB", dir)
	assert.Equal(t, "goran", id)
	assert.Equal(t, `LAB\goran`, full)

	dir, id, full = NormalizeUser("", "", `LAB\goran`)
	assert.Equal(t, "LAB", dir)
	assert.Equal(t, "goran", id)
	assert.Equal(t, `LAB\goran`, full)

	dir, id, full = NormalizeUser("", "", "sa_repository")
	assert.Equal(t, "", dir)
	assert.Equal(t, "", id)
	assert.Equal(t, "sa_repository", full)

	dir, id, full = NormalizeUser("LAB", "", "")
	assert.Equal(t, "LAB", dir)
	assert.Equal(t, "", id)
	assert.Equal(t, "", full)
}

func TestOutcome(t *testing.T) {
	ev := &EngineEvent{LogFields: LogFields{Source: SourceEngine}}
	o := ForwardLog(ev)

	assert.Equal(t, KindForward, o.Kind)
	assert.Equal(t, SourceEngine, o.Source)
	require.NotNil(t, o.Log)

	var le LogEvent = ev
	_, isEngine := le.(*EngineEvent)
	assert.True(t, isEngine)

	d := Drop(Source("x"), ReasonUnknownSource)
	assert.Equal(t, KindDrop, d.Kind)
	assert.Equal(t, "drop", d.Kind.String())

	r := Reject(&RejectedEvent{Source: SourceQixPerf, AppID: "A1"})
	assert.Equal(t, KindRejectForCount, r.Kind)
	assert.Equal(t, "A1", r.Rejected.AppID)
}
