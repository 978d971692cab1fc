// Package udp receives Qlik Sense telemetry datagrams.
//
// A Listener binds one socket per stream (log events, user events), copies
// every datagram out of its read buffer and passes it to an Enqueuer, in
// practice an ingest.Manager. The read loop never blocks on the queue: a
// refused datagram is counted and forgotten.
//
// Binding is retried with pkg/retry so a port still held by a previous
// process instance has time to be released. Once bound, the listener logs
// its address and calls Deps.OnListening.
//
//	l, err := udp.NewListener(udp.Config{Host: "0.0.0.0", Port: 9996}, udp.Deps{
//	    Stream: event.StreamLog,
//	    Queue:  manager,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := l.Start(ctx); err != nil {
//	    return err
//	}
//	defer l.Stop(5 * time.Second)
package udp
