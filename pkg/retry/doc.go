// Package retry provides exponential backoff for transient failures such as
// binding a UDP socket during startup or delivering a batch to a sink.
//
// Errors wrapped with NonRetryable, or classified as invalid or fatal by the
// errors package, end the loop immediately.
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return l.bind()
//	})
package retry
