package asyncrt

import (
	"context"
	"runtime/pprof"
	"strconv"
	"sync/atomic"
	"time"
)

// maxLIFOPolls bounds consecutive polls from the LIFO slot, so a pair of
// tasks waking each other cannot starve the rest of the local queue.
const maxLIFOPolls = 3

// worker is one multi-thread scheduler thread.
type worker struct {
	s     *multiThread
	index int
	local localQueue
	// lifo holds the most recently spawned child; owner only
	lifo     *task
	lifoRuns int
	// park receives a token when the worker is unparked
	park chan struct{}
	// parked is set while the worker sleeps in parkUntilWork
	parked atomic.Bool
	// gid is the worker goroutine's id, set before the loop starts
	gid   atomic.Uint64
	timer *time.Timer
	rng   uint32
	tick  uint32
	cx    Context
}

func newWorker(s *multiThread, index int) *worker {
	w := &worker{
		s:     s,
		index: index,
		park:  make(chan struct{}, 1),
		rng:   uint32(index)*0x9E3779B9 + 1,
	}
	return w
}

func (w *worker) name() string {
	return w.s.rt.opts.threadName + "-" + strconv.Itoa(w.index)
}

func (w *worker) start() {
	labels := pprof.Labels("asyncrt.thread", w.name())
	go pprof.Do(context.Background(), labels, func(context.Context) {
		defer w.s.wg.Done()
		w.gid.Store(goroutineID())
		w.loop()
	})
}

func (w *worker) loop() {
	for !w.s.stopping.Load() {
		t := w.next()
		if t == nil {
			t = w.steal()
		}
		if t == nil {
			w.parkUntilWork()
			continue
		}
		w.runTask(t)
	}
}

func (w *worker) runTask(t *task) {
	if t.worker.Load() != w {
		t.worker.Store(w)
	}
	w.cx.bind(w.s.rt, t, w, t.waker())
	if t.run(&w.cx) {
		w.pushLocal(t)
	}
	w.cx.task = nil
}

// next picks the next task from the worker's own sources.
func (w *worker) next() *task {
	w.tick++
	if w.tick%w.s.eventInterval == 0 {
		if t := w.s.inject.pop(); t != nil {
			return t
		}
	}
	if t := w.lifo; t != nil {
		w.lifo = nil
		if w.lifoRuns < maxLIFOPolls {
			w.lifoRuns++
			w.s.rt.metrics.lifoPolls.Add(1)
			return t
		}
		w.pushLocal(t)
	}
	w.lifoRuns = 0
	if t := w.local.pop(); t != nil {
		return t
	}
	return w.refill()
}

// refill takes a fair share of the injector, returning one task and
// queueing the rest locally.
func (w *worker) refill() *task {
	var buf [stealBatch]*task
	want := min(w.s.inject.len()/len(w.s.workers)+1, stealBatch)
	n := w.s.inject.popBatch(buf[:want])
	if n == 0 {
		return nil
	}
	for _, t := range buf[1:n] {
		w.pushLocalQuiet(t)
	}
	if n > 1 {
		w.s.notifyParked()
	}
	return buf[0]
}

// steal takes half of a random victim's queue.
func (w *worker) steal() *task {
	workers := w.s.workers
	if len(workers) < 2 {
		return nil
	}
	var buf [stealBatch]*task
	start := int(w.random() % uint32(len(workers)))
	for i := range workers {
		victim := workers[(start+i)%len(workers)]
		if victim == w {
			continue
		}
		n := victim.local.steal(buf[:])
		if n == 0 {
			continue
		}
		w.s.rt.metrics.steals.Add(1)
		w.s.rt.metrics.stolenTasks.Add(uint64(n))
		for _, t := range buf[1:n] {
			w.pushLocalQuiet(t)
		}
		return buf[0]
	}
	return nil
}

// pushLIFO queues a child spawned by the task this worker is polling.
func (w *worker) pushLIFO(t *task) {
	if prev := w.lifo; prev != nil {
		w.pushLocalQuiet(prev)
	}
	w.lifo = t
	w.s.notifyParked()
}

func (w *worker) pushLocal(t *task) {
	w.pushLocalQuiet(t)
	w.s.notifyParked()
}

func (w *worker) pushLocalQuiet(t *task) {
	if overflow := w.local.push(t); overflow != nil {
		w.s.inject.pushBatch(overflow)
		w.s.rt.metrics.injectorPushes.Add(uint64(len(overflow)))
	}
}

// parkUntilWork sleeps until unparked, or until the next timer is due, in
// which case it turns expired timers itself.
func (w *worker) parkUntilWork() {
	s := w.s
	w.parked.Store(true)
	defer w.parked.Store(false)
	s.idle.push(w)
	if s.hasWork() || s.stopping.Load() {
		if !s.idle.remove(w) {
			// already claimed by a notifier
			<-w.park
		}
		return
	}

	s.rt.metrics.parks.Add(1)
	wait, ok := s.rt.driver.timers.nextTimeout()
	if !ok {
		<-w.park
		return
	}
	if w.timer == nil {
		w.timer = time.NewTimer(wait)
	} else {
		w.timer.Reset(wait)
	}
	select {
	case <-w.park:
		w.timer.Stop()
	case <-w.timer.C:
		if !s.idle.remove(w) {
			<-w.park
		}
		s.rt.driver.timers.process()
	}
}

// unpark hands the worker a wake token. Extra tokens are dropped.
func (w *worker) unpark() {
	select {
	case w.park <- struct{}{}:
	default:
	}
}

// random is a xorshift32 step.
func (w *worker) random() uint32 {
	x := w.rng
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	w.rng = x
	return x
}
