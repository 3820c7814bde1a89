package asyncrt

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-asyncrt/internal/poller"
	"github.com/joeycumines/go-asyncrt/internal/wheel"
)

// driver combines the OS poller and the timer wheel. On a multi-thread
// runtime a dedicated goroutine turns it; on a current-thread runtime the
// BlockOn goroutine turns it when it runs out of tasks.
type driver struct {
	rt     *Runtime
	poller *poller.Poller
	timers timerDriver

	mu   sync.Mutex
	regs map[*Registration]struct{}

	closing atomic.Bool
	// done is closed when the dedicated goroutine exits; nil if there is none
	done chan struct{}
}

func newDriver(rt *Runtime) (*driver, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	d := &driver{
		rt:     rt,
		poller: p,
		regs:   make(map[*Registration]struct{}),
	}
	d.timers.init(d.unpark)
	return d, nil
}

// startThread runs the driver on its own goroutine.
func (d *driver) startThread() {
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		for !d.closing.Load() {
			d.turn(-1)
		}
	}()
}

// turn blocks for I/O for at most maxWait (negative: until woken), bounded
// by the next timer, then fires expired timers.
func (d *driver) turn(maxWait time.Duration) {
	timeoutMs := d.timers.park(maxWait)
	_, err := d.poller.PollIO(timeoutMs)
	d.timers.unparked()
	if err != nil && !errors.Is(err, poller.ErrPollerClosed) {
		d.rt.log.critical("poll failed", err)
	}
	d.timers.process()
}

func (d *driver) unpark() {
	_ = d.poller.Wakeup()
}

func (d *driver) track(r *Registration) {
	d.mu.Lock()
	d.regs[r] = struct{}{}
	d.mu.Unlock()
}

func (d *driver) untrack(r *Registration) {
	d.mu.Lock()
	delete(d.regs, r)
	d.mu.Unlock()
}

func (d *driver) registrations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regs)
}

// close stops the driver goroutine, closes every registration and releases
// the poller. Pending timers are left unfired.
func (d *driver) close() error {
	if d.closing.Swap(true) {
		return nil
	}
	d.unpark()
	if d.done != nil {
		<-d.done
	}
	d.mu.Lock()
	regs := make([]*Registration, 0, len(d.regs))
	for r := range d.regs {
		regs = append(regs, r)
	}
	d.mu.Unlock()
	for _, r := range regs {
		_ = r.Close()
	}
	return d.poller.Close()
}

// timerDriver schedules wakers on a millisecond wheel. Deadlines are
// rounded up to the next tick and the clock is rounded down, so a timer
// never fires before its deadline.
type timerDriver struct {
	mu    sync.Mutex
	wheel *wheel.Wheel[Waker]
	start time.Time
	// parkedUntil is the tick a blocked turn will wake at, zero when no
	// turn is blocked
	parkedUntil uint64
	unpark      func()
}

func (td *timerDriver) init(unpark func()) {
	td.wheel = wheel.New[Waker]()
	td.start = time.Now()
	td.unpark = unpark
}

func (td *timerDriver) nowTick() uint64 {
	return uint64(time.Since(td.start) / time.Millisecond)
}

func (td *timerDriver) deadlineTick(deadline time.Time) uint64 {
	d := deadline.Sub(td.start)
	if d <= 0 {
		return 0
	}
	return uint64((d + time.Millisecond - 1) / time.Millisecond)
}

// register schedules e to wake w at deadline. It reports false if the
// deadline has already passed, leaving e unlinked.
func (td *timerDriver) register(e *wheel.Entry[Waker], deadline time.Time, w Waker) bool {
	tick := td.deadlineTick(deadline)
	now := td.nowTick()
	td.mu.Lock()
	if tick <= now || !td.wheel.Insert(e, tick) {
		td.mu.Unlock()
		return false
	}
	e.Value = w
	kick := td.parkedUntil != 0 && tick < td.parkedUntil
	td.mu.Unlock()
	if kick {
		td.unpark()
	}
	return true
}

// refresh replaces e's waker, reporting false if e has already fired.
func (td *timerDriver) refresh(e *wheel.Entry[Waker], w Waker) bool {
	td.mu.Lock()
	defer td.mu.Unlock()
	if !e.Linked() {
		return false
	}
	if !e.Value.WillWake(w) {
		e.Value = w
	}
	return true
}

// cancel unlinks e. Cancelling an unlinked entry is a no-op.
func (td *timerDriver) cancel(e *wheel.Entry[Waker]) {
	td.mu.Lock()
	td.wheel.Remove(e)
	e.Value = Waker{}
	td.mu.Unlock()
}

// process fires every expired timer, waking outside the lock.
func (td *timerDriver) process() int {
	now := td.nowTick()
	var fired []Waker
	td.mu.Lock()
	td.wheel.Advance(now, func(e *wheel.Entry[Waker]) {
		fired = append(fired, e.Value)
		e.Value = Waker{}
	})
	td.mu.Unlock()
	for _, w := range fired {
		w.Wake()
	}
	return len(fired)
}

// nextTimeout returns the time until the wheel next needs advancing.
func (td *timerDriver) nextTimeout() (time.Duration, bool) {
	td.mu.Lock()
	next, ok := td.wheel.NextDeadline()
	td.mu.Unlock()
	if !ok {
		return 0, false
	}
	return max(td.start.Add(time.Duration(next)*time.Millisecond).Sub(time.Now()), 0), true
}

// park records that a turn is about to block, returning the poll timeout
// in milliseconds (-1 for none).
func (td *timerDriver) park(maxWait time.Duration) int {
	td.mu.Lock()
	defer td.mu.Unlock()
	wait := maxWait
	next, ok := td.wheel.NextDeadline()
	if ok {
		untilNext := max(td.start.Add(time.Duration(next)*time.Millisecond).Sub(time.Now()), 0)
		if wait < 0 || untilNext < wait {
			wait = untilNext
		}
	}
	if wait < 0 {
		td.parkedUntil = math.MaxUint64
		return -1
	}
	td.parkedUntil = max(td.nowTick()+uint64((wait+time.Millisecond-1)/time.Millisecond), 1)
	return int((wait + time.Millisecond - 1) / time.Millisecond)
}

func (td *timerDriver) unparked() {
	td.mu.Lock()
	td.parkedUntil = 0
	td.mu.Unlock()
}

func (td *timerDriver) len() int {
	td.mu.Lock()
	defer td.mu.Unlock()
	return td.wheel.Len()
}
