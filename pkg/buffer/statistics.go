package buffer

import (
	"sync/atomic"
)

// Statistics counts buffer activity. All methods are safe for concurrent use.
type Statistics struct {
	writes      atomic.Int64
	reads       atomic.Int64
	drops       atomic.Int64
	currentSize atomic.Int64
	maxSize     atomic.Int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) Write()        { s.writes.Add(1) }
func (s *Statistics) Reads(n int64) { s.reads.Add(n) }
func (s *Statistics) Drop()         { s.drops.Add(1) }

// UpdateSize records the current size and tracks the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.currentSize.Store(size)
	for {
		prev := s.maxSize.Load()
		if size <= prev || s.maxSize.CompareAndSwap(prev, size) {
			return
		}
	}
}

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Writes      int64 `json:"writes"`
	Reads       int64 `json:"reads"`
	Drops       int64 `json:"drops"`
	CurrentSize int64 `json:"current_size"`
	MaxSize     int64 `json:"max_size"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.writes.Load(),
		Reads:       s.reads.Load(),
		Drops:       s.drops.Load(),
		CurrentSize: s.currentSize.Load(),
		MaxSize:     s.maxSize.Load(),
	}
}

// DropRate is drops divided by attempted writes, 0 when nothing was written.
func (s *Statistics) DropRate() float64 {
	drops := s.drops.Load()
	attempts := s.writes.Load() + drops
	if attempts == 0 {
		return 0
	}
	return float64(drops) / float64(attempts)
}

// Reset zeroes the counters. The current size is kept.
func (s *Statistics) Reset() {
	s.writes.Store(0)
	s.reads.Store(0)
	s.drops.Store(0)
	s.maxSize.Store(s.currentSize.Load())
}
