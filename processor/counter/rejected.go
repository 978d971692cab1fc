package counter

import (
	"sort"
	"sync"

	"github.com/c360/sensewatch/event"
)

// RejectedKey groups rejected qix-perf events.
type RejectedKey struct {
	Source     event.Source
	AppID      string
	AppName    string
	Method     string
	ObjectType string
}

// RejectedCount is one row of a rejected-events snapshot. ProcessTime is the
// summed process time in milliseconds.
type RejectedCount struct {
	RejectedKey
	Counter     int64
	ProcessTime float64
}

// Rejected aggregates events that failed the QIX performance filter.
type Rejected struct {
	mu     sync.Mutex
	counts map[RejectedKey]*RejectedCount
}

// NewRejected returns an empty Rejected counter.
func NewRejected() *Rejected {
	return &Rejected{counts: make(map[RejectedKey]*RejectedCount)}
}

// Add counts one rejected event. Negative process times are not summed.
func (r *Rejected) Add(ev *event.RejectedEvent) {
	if ev == nil {
		return
	}
	key := RejectedKey{
		Source:     ev.Source,
		AppID:      ev.AppID,
		AppName:    ev.AppName,
		Method:     ev.Method,
		ObjectType: ev.ObjectType,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counts[key]
	if !ok {
		c = &RejectedCount{RejectedKey: key}
		r.counts[key] = c
	}
	c.Counter++
	if ev.ProcessTime > 0 {
		c.ProcessTime += ev.ProcessTime
	}
}

// Counts returns a sorted snapshot.
func (r *Rejected) Counts() []RejectedCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return collect(r.counts)
}

// Drain returns a sorted snapshot and clears the counter under one lock.
func (r *Rejected) Drain() []RejectedCount {
	r.mu.Lock()
	counts := r.counts
	r.counts = make(map[RejectedKey]*RejectedCount)
	r.mu.Unlock()
	return collect(counts)
}

func collect(counts map[RejectedKey]*RejectedCount) []RejectedCount {
	out := make([]RejectedCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].RejectedKey, out[j].RejectedKey
		if a.AppID != b.AppID {
			return a.AppID < b.AppID
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.ObjectType < b.ObjectType
	})
	return out
}

// Clear resets the counter.
func (r *Rejected) Clear() {
	r.mu.Lock()
	r.counts = make(map[RejectedKey]*RejectedCount)
	r.mu.Unlock()
}
