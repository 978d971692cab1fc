// Package worker provides a generic bounded worker pool.
//
// A fixed number of goroutines drain a buffered channel. Submit never blocks:
// when the channel is full it returns ErrQueueFull, which is how the
// ingestion queue expresses backpressure. Processor panics are recovered and
// reported as ErrPanic, so one bad item never stops a worker.
//
// Shutdown is two-phase. Stop closes the queue, lets the workers drain it
// for the grace period, then cancels the context passed to the processor and
// hands every remaining item to the discard hook.
//
//	pool, err := worker.NewPool(2, 500, handle,
//	    worker.WithResultHook[Entry](recordLatency),
//	    worker.WithDiscardHook[Entry](countDiscarded))
//	if err != nil {
//	    return err
//	}
//	_ = pool.Start(ctx)
//	defer pool.Stop(5 * time.Second)
package worker
