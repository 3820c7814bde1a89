package asyncrt

import (
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// blockingPool runs blocking jobs on dedicated OS threads. Threads are
// started on demand up to a cap, and exit after idling for the keep-alive
// period. Jobs run in FIFO order.
type blockingPool struct {
	rt        *Runtime
	max       int
	keepAlive time.Duration
	// notify carries one token per idle thread being woken
	notify chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	queue    *queue.Queue
	threads  int
	idle     int
	notified int
	spawned  int
	closed   bool
}

func newBlockingPool(rt *Runtime) *blockingPool {
	return &blockingPool{
		rt:        rt,
		max:       rt.opts.maxBlockingThreads,
		keepAlive: rt.opts.keepAlive,
		notify:    make(chan struct{}, rt.opts.maxBlockingThreads),
		queue:     queue.New(),
	}
}

// submit queues a job task, waking an idle thread or starting a new one.
func (p *blockingPool) submit(t *task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrRuntimeShutdown
	}
	p.queue.Add(t)
	switch {
	case p.idle > p.notified:
		p.notified++
		p.notify <- struct{}{}
	case p.threads < p.max:
		p.threads++
		p.spawned++
		p.wg.Add(1)
		go p.thread(p.rt.opts.threadName + "-blocking-" + strconv.Itoa(p.spawned))
	}
	return nil
}

func (p *blockingPool) thread(name string) {
	defer p.wg.Done()
	pprof.Do(context.Background(), pprof.Labels("asyncrt.thread", name), func(context.Context) {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		p.rt.log.blockingThread("started", name, p.threadCount())
		p.loop()
		p.rt.log.blockingThread("exited", name, p.threadCount())
	})
}

func (p *blockingPool) loop() {
	var (
		cx    Context
		timer = time.NewTimer(p.keepAlive)
	)
	defer timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		for p.queue.Length() > 0 {
			t := p.queue.Remove().(*task)
			p.mu.Unlock()
			p.run(&cx, t)
			p.mu.Lock()
		}
		if p.closed {
			break
		}

		p.idle++
		p.mu.Unlock()
		timer.Reset(p.keepAlive)
		var woken bool
		select {
		case <-p.notify:
			woken = true
		case <-timer.C:
		}
		p.mu.Lock()
		if !woken {
			// a token may have been sent just as the timer fired
			select {
			case <-p.notify:
				woken = true
			default:
			}
		}
		p.idle--
		if !woken {
			break
		}
		p.notified--
	}
	p.threads--
}

func (p *blockingPool) run(cx *Context, t *task) {
	cx.bind(p.rt, t, nil, Waker{})
	t.run(cx)
	p.rt.metrics.blockingCompleted.Add(1)
}

// close rejects new jobs, cancels queued ones, and tells idle threads to
// exit. Running jobs are left to finish.
func (p *blockingPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	queued := make([]*task, 0, p.queue.Length())
	for p.queue.Length() > 0 {
		queued = append(queued, p.queue.Remove().(*task))
	}
	for p.notified < p.idle {
		p.notified++
		p.notify <- struct{}{}
	}
	p.mu.Unlock()
	finalise(p.rt, queued)
}

// wait blocks until every thread has exited.
func (p *blockingPool) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *blockingPool) stats() (threads, idle, queued int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads, p.idle, p.queue.Length()
}

func (p *blockingPool) threadCount() int {
	threads, _, _ := p.stats()
	return threads
}
