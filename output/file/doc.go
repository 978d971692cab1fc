// Package file is a sink that appends events to a local file.
//
// Events are wrapped in an event.Envelope so both streams can share one
// file, encoded as JSON and buffered in memory. The buffer is written when
// it reaches BufferSize, every FlushInterval, and on Close. Format "jsonl"
// writes one compact document per line; "json" pretty-prints each document.
package file
