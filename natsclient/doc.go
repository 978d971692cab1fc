// Package natsclient wraps a single NATS connection for publishing events.
//
// The client tracks its connection status, reconnects through the nats.go
// reconnect machinery and guards Connect and Publish with a circuit breaker:
// after a configurable number of consecutive failures the circuit opens
// and calls fail fast with errors.ErrCircuitOpen. The backoff doubles on
// every reopening up to a cap; once it has elapsed the circuit is
// half-open and the next call tries the server again.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("sensewatch"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	err = client.Publish(ctx, "sensewatch.log.qseow-engine", payload)
package natsclient
