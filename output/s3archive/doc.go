// Package s3archive archives events to S3 or an S3-compatible store.
//
// Events are wrapped in an event.Envelope and held in a bounded ring
// buffer; when it overflows the oldest events are dropped. A batch is
// uploaded as one gzipped JSONL object once BatchSize events are buffered,
// every FlushInterval, and on Close. Object keys are
// <prefix>/YYYY/MM/DD/HH/<unix-nanos>-<uuid>.jsonl.gz (UTC). Uploads are
// retried with backoff; a batch that still fails is counted as lost.
package s3archive
