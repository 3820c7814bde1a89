package asyncrt

import (
	"math"
	"sync"
	"sync/atomic"
)

// MaxPermits is the exclusive upper bound on a Semaphore's permits.
const MaxPermits = math.MaxInt32

// Semaphore is an asynchronous counting semaphore. Acquirers are served
// strictly in FIFO order, so a large request at the head of the queue holds
// back smaller ones behind it.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	closed  bool
	waiters waitList[struct{}]
}

// NewSemaphore returns a semaphore holding permits. It fails with
// ErrSemaphoreOverflow unless 0 <= permits < MaxPermits.
func NewSemaphore(permits int) (*Semaphore, error) {
	if permits < 0 || permits >= MaxPermits {
		return nil, ErrSemaphoreOverflow
	}
	return &Semaphore{permits: permits}, nil
}

// AvailablePermits returns the number of permits not held.
func (s *Semaphore) AvailablePermits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// TryAcquire takes one permit without waiting. It fails with
// ErrSemaphoreEmpty, or ErrClosed once the semaphore is closed.
func (s *Semaphore) TryAcquire() (*SemaphorePermit, error) {
	return s.TryAcquireMany(1)
}

// TryAcquireMany takes n permits without waiting.
func (s *Semaphore) TryAcquireMany(n int) (*SemaphorePermit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return nil, ErrClosed
	case s.permits < n || !s.waiters.empty():
		return nil, ErrSemaphoreEmpty
	}
	s.permits -= n
	return &SemaphorePermit{sem: s, n: n}, nil
}

// Acquire returns a future that completes with one permit, or ErrClosed.
func (s *Semaphore) Acquire() *AcquireFuture {
	return s.AcquireMany(1)
}

// AcquireMany returns a future that completes with n permits, or ErrClosed.
// It panics if n is negative or not less than MaxPermits.
func (s *Semaphore) AcquireMany(n int) *AcquireFuture {
	if n < 0 || n >= MaxPermits {
		panic("asyncrt: invalid semaphore acquire count")
	}
	f := &AcquireFuture{sem: s}
	f.w.n = n
	return f
}

// Release adds one permit. It fails with ErrSemaphoreOverflow if that would
// reach MaxPermits.
func (s *Semaphore) Release() error { return s.AddPermits(1) }

// AddPermits adds n permits, admitting queued acquirers.
func (s *Semaphore) AddPermits(n int) error {
	s.mu.Lock()
	if s.permits+n >= MaxPermits || s.permits+n < 0 {
		s.mu.Unlock()
		return ErrSemaphoreOverflow
	}
	s.permits += n
	wakers := s.admit()
	s.mu.Unlock()
	wakeAll(wakers)
	return nil
}

func (s *Semaphore) admit() []Waker {
	var wakers []Waker
	for w := s.waiters.front(); w != nil && w.n <= s.permits; w = s.waiters.front() {
		s.permits -= w.n
		wakers = append(wakers, s.waiters.grant(w))
	}
	return wakers
}

// Close fails every queued and future acquire with ErrClosed. Permits
// already held may still be released.
func (s *Semaphore) Close() {
	s.mu.Lock()
	s.closed = true
	wakers := s.waiters.drain()
	s.mu.Unlock()
	wakeAll(wakers)
}

// IsClosed reports whether Close has been called.
func (s *Semaphore) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SemaphorePermit is a set of permits held from a Semaphore.
type SemaphorePermit struct {
	sem      *Semaphore
	n        int
	released atomic.Bool
}

// Num returns the number of permits held.
func (p *SemaphorePermit) Num() int { return p.n }

// Release returns the permits. Only the first call has an effect.
func (p *SemaphorePermit) Release() {
	if p.released.Swap(true) {
		return
	}
	_ = p.sem.AddPermits(p.n)
}

// Forget gives up the permits without returning them.
func (p *SemaphorePermit) Forget() { p.released.Store(true) }

// AcquireFuture is returned by Semaphore.Acquire.
type AcquireFuture struct {
	sem     *Semaphore
	w       waiter[struct{}]
	settled bool
}

// Poll implements Future.
func (f *AcquireFuture) Poll(cx *Context) Poll[Result[*SemaphorePermit]] {
	s := f.sem
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case f.w.granted:
	case s.closed:
		s.waiters.remove(&f.w)
		f.settled = true
		return Ready(Err[*SemaphorePermit](ErrClosed))
	case f.w.queued:
		f.w.setWaker(cx)
		return Pending[Result[*SemaphorePermit]]()
	case s.waiters.empty() && s.permits >= f.w.n:
		if !cx.proceed() {
			return Pending[Result[*SemaphorePermit]]()
		}
		s.permits -= f.w.n
	default:
		f.w.setWaker(cx)
		s.waiters.push(&f.w)
		return Pending[Result[*SemaphorePermit]]()
	}
	f.settled = true
	return Ready(Ok(&SemaphorePermit{sem: s, n: f.w.n}))
}

// Drop implements Dropper, returning permits granted to an acquire that
// never completed.
func (f *AcquireFuture) Drop() {
	if f.settled {
		return
	}
	s := f.sem
	s.mu.Lock()
	var wakers []Waker
	if s.waiters.remove(&f.w) {
		// a large request leaving the head may unblock smaller ones
		wakers = s.admit()
	}
	granted := f.w.granted
	f.w.granted = false
	s.mu.Unlock()
	wakeAll(wakers)
	if granted {
		_ = s.AddPermits(f.w.n)
	}
}
