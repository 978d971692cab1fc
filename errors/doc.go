// Package errors implements the three-class error model used across sensewatch.
//
// Errors are Transient (retry may help, e.g. a sink timeout), Invalid (bad
// input such as a malformed datagram or rule) or Fatal (startup
// configuration problems). Only Fatal errors stop the process; everything on
// the ingestion path is absorbed into counters and log lines.
//
// Wrapping follows a single format:
//
//	component.method: action failed: <cause>
//
// for example:
//
//	return errors.WrapInvalid(err, "LogDecoder", "Decode", "split fields")
//
// All wrapped errors keep the cause chain so errors.Is and errors.As work on
// the sentinels declared here.
package errors
