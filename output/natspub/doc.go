// Package natspub publishes events to a NATS server.
//
// Log events go to <prefix>.log.<source> and user events to
// <prefix>.user.<command>, where the command is reduced to a single subject
// token (see Token). Payloads are the JSON encoding of the event. The
// connection itself, with reconnects and the circuit breaker, lives in
// package natsclient.
package natspub
