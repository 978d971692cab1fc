// Package health aggregates component health for the /health endpoint.
//
// Components register a Checker with a Monitor. Check runs every checker and
// folds the results into one Status:
//   - any unhealthy checker makes the aggregate unhealthy
//   - otherwise any degraded checker makes it degraded
//   - otherwise it is healthy
//
// Messages built from errors are redacted so that URLs, paths, addresses and
// credentials do not leak through the endpoint.
package health
