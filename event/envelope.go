package event

import "time"

// Envelope wraps an event for sinks that store both streams side by side.
type Envelope struct {
	Stream     Stream    `json:"stream"`
	Source     Source    `json:"source"`
	ArchivedAt time.Time `json:"archived_at"`
	Event      any       `json:"event"`
}

func LogEnvelope(ev LogEvent, now time.Time) Envelope {
	return Envelope{Stream: StreamLog, Source: ev.Fields().Source, ArchivedAt: now, Event: ev}
}

func UserEnvelope(ev *UserEvent, now time.Time) Envelope {
	return Envelope{Stream: StreamUser, Source: ev.MessageType, ArchivedAt: now, Event: ev}
}
