// Package asyncrt provides an asynchronous runtime for Go built on
// poll-based futures, featuring a work-stealing scheduler, an I/O reactor,
// a hierarchical timer wheel, and task-aware synchronization primitives.
//
// # Architecture
//
// A [Runtime] owns a scheduler, a driver, and a blocking thread pool. Work
// is expressed as a [Future], a state machine advanced by [Future.Poll].
// A future that cannot make progress returns [Pending] after arranging for
// the [Waker] from its [Context] to be invoked; the scheduler then polls it
// again. Spawned futures become tasks, tracked in an arena by [TaskID] and
// observed through a [JoinHandle].
//
// Two scheduler flavors are available:
//   - [NewMultiThread]: a fixed set of worker goroutines, each with a LIFO
//     slot and a bounded local queue, stealing from each other when idle
//     and sharing a global injector queue
//   - [NewCurrentThread]: tasks run on the goroutine calling [BlockOn],
//     which also turns the driver when there is nothing to run
//
// # Driver
//
// The driver combines an OS readiness poller with a timer wheel:
//   - Linux: epoll (edge triggered)
//   - macOS: kqueue (EV_CLEAR)
//   - elsewhere: timers only; [Runtime.Register] is unsupported
//
// Timers ([Sleep], [SleepUntil], [Timeout], [Interval]) have millisecond
// resolution and never fire before their deadline.
//
// # Tasks
//
// Waking a scheduled task is a no-op, so any number of wakes between polls
// result in a single poll. Cancelling a task with [JoinHandle.Cancel]
// guarantees it is not polled again, and that its future's [Dropper.Drop]
// method runs exactly once. A panic raised by Poll completes the task with
// a [*PanicError].
//
// Futures that hold resources implement [Dropper]. The runtime and the
// combinators in this package ([Map], [Then], [JoinAll], [Race], [Timeout])
// drop every future they own exactly once.
//
// # Synchronization
//
// [Mutex], [RWMutex], [Semaphore], [Notify] and [Barrier] suspend the
// waiting task rather than its goroutine, and serve waiters in FIFO order.
// Channels come in bounded ([NewChannel]), unbounded
// ([NewUnboundedChannel]), single value ([NewOneshot]) and broadcast
// ([NewBroadcast]) forms. Closing any of them wakes every waiter with
// [ErrClosed].
//
// Ready operations consume a per-poll cooperative budget; a task that
// exhausts it is moved to the back of the run queue.
//
// # Usage
//
//	rt, err := asyncrt.NewMultiThread(asyncrt.WithWorkerThreads(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Shutdown(context.Background())
//
//	tx, rx := asyncrt.NewChannel[int](1)
//	_, _ = asyncrt.Spawn(rt, asyncrt.Then(tx.Send(42), func(error) asyncrt.Future[struct{}] {
//	    tx.Close()
//	    return asyncrt.ReadyFuture(struct{}{})
//	}))
//
//	r, err := asyncrt.BlockOn(rt, rx.Recv())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(r.Value)
//
// # Subpackages
//
//   - asyncio: Reader and Writer contracts plus read/write/copy futures
//   - netio: TCP and UDP sockets driven by the reactor
//   - fsio: files backed by the blocking pool
//   - global: a lazily initialised process-wide runtime
//   - promexport: a Prometheus collector for [Runtime.Metrics]
package asyncrt
