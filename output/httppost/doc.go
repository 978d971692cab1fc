// Package httppost sends events to an HTTP event-ingest API such as an
// observability vendor's custom-events endpoint.
//
// Each event is flattened into one JSON object, tagged with an eventType of
// "<prefix>LogEvent" or "<prefix>UserEvent", enriched with the configured
// static attributes and posted as a one-element array. Bodies can be
// gzip-compressed. Transport errors, 429 and 5xx responses are retried with
// exponential backoff; any other non-2xx status fails immediately.
//
//	out, err := httppost.NewOutput(httppost.Config{
//	    URL:     "https://insights-collector.example.com/v1/accounts/123/events",
//	    Headers: map[string]string{"Api-Key": key},
//	    Gzip:    true,
//	}, logger)
package httppost
