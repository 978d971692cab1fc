// Package buffer provides a generic, thread-safe ring buffer.
//
// Writes never block. When the buffer is full, DropOldest evicts the oldest
// item and DropNewest discards the incoming one; either way the loss is
// counted in Statistics and, with WithMetrics, in Prometheus.
//
// sensewatch uses it as the processing-latency reservoir of the ingestion
// queue (DropOldest, read with Items) and as the pending-event batch of the
// archive sink (ReadBatch on flush).
//
//	samples, err := buffer.NewCircularBuffer[float64](1000)
//	_ = samples.Write(elapsedMs)
//	p95 := percentile(samples.Items(), 0.95)
package buffer
