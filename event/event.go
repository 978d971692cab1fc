// Package event defines the typed records produced by the decoders.
//
// LogEvent is a closed set of variants, one per log source. Decoders return
// an Outcome so callers branch on data rather than on errors.
package event

import "strings"

// Stream identifies one of the two independent UDP streams.
type Stream string

const (
	StreamLog  Stream = "log"
	StreamUser Stream = "user"
)

// Source is the type tag found in field 0 of every datagram.
type Source string

const (
	SourceEngine     Source = "qseow-engine"
	SourceProxy      Source = "qseow-proxy"
	SourceRepository Source = "qseow-repository"
	SourceScheduler  Source = "qseow-scheduler"
	SourceQixPerf    Source = "qseow-qix-perf"

	SourceProxyConnection Source = "qseow-proxy-connection"
	SourceProxySession    Source = "qseow-proxy-session"
)

// LogSources lists the log-stream tags in a stable order.
var LogSources = []Source{SourceEngine, SourceProxy, SourceRepository, SourceScheduler, SourceQixPerf}

// UserSources lists the user-stream tags in a stable order.
var UserSources = []Source{SourceProxyConnection, SourceProxySession}

// ParseSource normalizes a raw tag such as "/qseow-engine/" and reports
// whether it is known on the given stream.
func ParseSource(stream Stream, raw string) (Source, bool) {
	s := Source(strings.ToLower(strings.Trim(strings.TrimSpace(raw), "/")))
	known := LogSources
	if stream == StreamUser {
		known = UserSources
	}
	for _, k := range known {
		if s == k {
			return s, true
		}
	}
	return s, false
}

// Category is a name/value tag attached by the categorizer.
type Category struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}
