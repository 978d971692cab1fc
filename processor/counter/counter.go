// Package counter aggregates accepted and rejected events between metric
// exports.
package counter

import (
	"sort"
	"sync"

	"github.com/c360/sensewatch/event"
)

// AcceptedKey groups accepted events.
type AcceptedKey struct {
	Source    event.Source
	Host      string
	Subsystem string
}

// AcceptedCount is one row of an accepted-events snapshot.
type AcceptedCount struct {
	AcceptedKey
	Counter int64
}

// Accepted counts events that decoded successfully, per stream, plus
// datagrams with an unrecognized source tag.
type Accepted struct {
	mu           sync.Mutex
	log          map[AcceptedKey]int64
	user         map[AcceptedKey]int64
	unrecognized map[event.Stream]int64
}

// NewAccepted returns an empty Accepted counter.
func NewAccepted() *Accepted {
	return &Accepted{
		log:          make(map[AcceptedKey]int64),
		user:         make(map[AcceptedKey]int64),
		unrecognized: make(map[event.Stream]int64),
	}
}

// AddLogEvent counts a decoded log event.
func (a *Accepted) AddLogEvent(ev event.LogEvent) {
	f := ev.Fields()
	a.mu.Lock()
	a.log[AcceptedKey{Source: f.Source, Host: f.Host, Subsystem: f.Subsystem}]++
	a.mu.Unlock()
}

// AddUserEvent counts a decoded user event. The command doubles as the
// subsystem.
func (a *Accepted) AddUserEvent(ev *event.UserEvent) {
	a.mu.Lock()
	a.user[AcceptedKey{Source: ev.MessageType, Host: ev.Host, Subsystem: ev.Command}]++
	a.mu.Unlock()
}

// AddUnrecognized counts a datagram whose source tag was not recognized.
func (a *Accepted) AddUnrecognized(stream event.Stream) {
	a.mu.Lock()
	a.unrecognized[stream]++
	a.mu.Unlock()
}

// LogEventCounts returns a sorted snapshot of accepted log events.
func (a *Accepted) LogEventCounts() []AcceptedCount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return snapshot(a.log)
}

// UserEventCounts returns a sorted snapshot of accepted user events.
func (a *Accepted) UserEventCounts() []AcceptedCount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return snapshot(a.user)
}

// UnrecognizedCounts returns unrecognized-source counts per stream.
func (a *Accepted) UnrecognizedCounts() map[event.Stream]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[event.Stream]int64, len(a.unrecognized))
	for k, v := range a.unrecognized {
		out[k] = v
	}
	return out
}

// Clear resets every accepted counter.
func (a *Accepted) Clear() {
	a.mu.Lock()
	a.log = make(map[AcceptedKey]int64)
	a.user = make(map[AcceptedKey]int64)
	a.unrecognized = make(map[event.Stream]int64)
	a.mu.Unlock()
}

// Snapshot is everything Accepted holds at one instant.
type Snapshot struct {
	Log          []AcceptedCount
	User         []AcceptedCount
	Unrecognized map[event.Stream]int64
}

// Drain returns the current counts and clears them under one lock.
func (a *Accepted) Drain() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Snapshot{
		Log:          snapshot(a.log),
		User:         snapshot(a.user),
		Unrecognized: a.unrecognized,
	}
	a.log = make(map[AcceptedKey]int64)
	a.user = make(map[AcceptedKey]int64)
	a.unrecognized = make(map[event.Stream]int64)
	return s
}

func snapshot(m map[AcceptedKey]int64) []AcceptedCount {
	out := make([]AcceptedCount, 0, len(m))
	for k, v := range m {
		out = append(out, AcceptedCount{AcceptedKey: k, Counter: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		return a.Subsystem < b.Subsystem
	})
	return out
}
