package ingest

import (
	"time"

	"github.com/c360/sensewatch/event"
)

// Datagram is one raw UDP payload.
type Datagram struct {
	Payload    []byte
	ReceivedAt time.Time
	Stream     event.Stream
	Remote     string
}

// Entry is a queued Datagram.
type Entry struct {
	Datagram
	EnqueuedAt time.Time
}

// Drop reasons reported by Enqueue.
const (
	ReasonSize      = "message_too_large"
	ReasonRateLimit = "rate_limit"
	ReasonQueueFull = "queue_full"
)

// Result is the outcome of Enqueue.
type Result struct {
	Accepted bool
	Reason   string
}

// Metrics is a point-in-time view of one stream's queue.
//
// Counters: MessagesReceived = MessagesQueued + MessagesDroppedTotal and
// MessagesQueued = MessagesProcessed + MessagesFailed + QueuePending hold
// between two ClearMetrics calls.
type Metrics struct {
	MessagesReceived         int64 `json:"messagesReceived"`
	MessagesQueued           int64 `json:"messagesQueued"`
	MessagesProcessed        int64 `json:"messagesProcessed"`
	MessagesFailed           int64 `json:"messagesFailed"`
	MessagesDroppedTotal     int64 `json:"messagesDroppedTotal"`
	MessagesDroppedRateLimit int64 `json:"messagesDroppedRateLimit"`
	MessagesDroppedQueueFull int64 `json:"messagesDroppedQueueFull"`
	MessagesDroppedSize      int64 `json:"messagesDroppedSize"`

	QueueSize           int     `json:"queueSize"`
	QueueMaxSize        int     `json:"queueMaxSize"`
	QueueUtilizationPct float64 `json:"queueUtilizationPct"`
	QueuePending        int64   `json:"queuePending"`
	RateLimitCurrent    int64   `json:"rateLimitCurrent"`
	BackpressureActive  bool    `json:"backpressureActive"`

	ProcessingTimeAvgMs float64 `json:"processingTimeAvgMs"`
	ProcessingTimeP95Ms float64 `json:"processingTimeP95Ms"`
	ProcessingTimeMaxMs float64 `json:"processingTimeMaxMs"`
}
