package asyncrt

import (
	"sync"
	"sync/atomic"
)

type broadcastSlot[T any] struct {
	value T
	seq   uint64
}

type broadcastState[T any] struct {
	mu        sync.Mutex
	ring      []broadcastSlot[T]
	tail      uint64
	senders   int
	receivers int
	waiters   waitList[struct{}]
}

// oldest returns the sequence number of the oldest retained value.
func (s *broadcastState[T]) oldest() uint64 {
	if n := uint64(len(s.ring)); s.tail > n {
		return s.tail - n
	}
	return 0
}

// BroadcastSender publishes values to every subscribed receiver.
type BroadcastSender[T any] struct {
	s      *broadcastState[T]
	closed atomic.Bool
}

// BroadcastReceiver observes every value sent after it subscribed, unless
// it falls more than the channel capacity behind.
type BroadcastReceiver[T any] struct {
	s      *broadcastState[T]
	next   uint64
	w      waiter[struct{}]
	closed bool
}

// NewBroadcast returns a broadcast channel retaining the last capacity
// values, with one receiver. It panics if capacity is less than one.
func NewBroadcast[T any](capacity int) (*BroadcastSender[T], *BroadcastReceiver[T]) {
	if capacity < 1 {
		panic("asyncrt: broadcast capacity must be at least 1")
	}
	s := &broadcastState[T]{
		ring:      make([]broadcastSlot[T], capacity),
		senders:   1,
		receivers: 1,
	}
	return &BroadcastSender[T]{s: s}, &BroadcastReceiver[T]{s: s}
}

// Send publishes v and returns how many receivers will see it. It fails
// with a *SendError holding ErrClosed when there are no receivers. Send
// never waits: a full ring overwrites the oldest value.
func (tx *BroadcastSender[T]) Send(v T) (int, error) {
	s := tx.s
	s.mu.Lock()
	if s.receivers == 0 || tx.closed.Load() {
		s.mu.Unlock()
		return 0, &SendError[T]{Value: v, Err: ErrClosed}
	}
	slot := &s.ring[s.tail%uint64(len(s.ring))]
	slot.value, slot.seq = v, s.tail
	s.tail++
	n := s.receivers
	wakers := s.wakeReceivers()
	s.mu.Unlock()
	wakeAll(wakers)
	return n, nil
}

func (s *broadcastState[T]) wakeReceivers() []Waker {
	var wakers []Waker
	for w := s.waiters.front(); w != nil; w = s.waiters.front() {
		wakers = append(wakers, s.waiters.grant(w))
	}
	return wakers
}

// Subscribe returns a receiver for values sent from now on.
func (tx *BroadcastSender[T]) Subscribe() *BroadcastReceiver[T] {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivers++
	return &BroadcastReceiver[T]{s: s, next: s.tail}
}

// Clone returns another sender for the same channel.
func (tx *BroadcastSender[T]) Clone() *BroadcastSender[T] {
	tx.s.mu.Lock()
	tx.s.senders++
	tx.s.mu.Unlock()
	return &BroadcastSender[T]{s: tx.s}
}

// ReceiverCount returns the number of open receivers.
func (tx *BroadcastSender[T]) ReceiverCount() int {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.s.receivers
}

// Close drops this sender. Once every sender is closed, receivers drain
// the retained values and then fail with ErrClosed.
func (tx *BroadcastSender[T]) Close() {
	if tx.closed.Swap(true) {
		return
	}
	s := tx.s
	s.mu.Lock()
	s.senders--
	var wakers []Waker
	if s.senders == 0 {
		wakers = s.wakeReceivers()
	}
	s.mu.Unlock()
	wakeAll(wakers)
}

// recv must be called with the lock held. ok is false if nothing is
// available yet.
func (rx *BroadcastReceiver[T]) recv() (r Result[T], ok bool) {
	s := rx.s
	switch {
	case rx.closed:
		return Err[T](ErrClosed), true
	case rx.next < s.oldest():
		oldest := s.oldest()
		err := &LaggedError{Skipped: oldest - rx.next}
		rx.next = oldest
		return Err[T](err), true
	case rx.next < s.tail:
		v := s.ring[rx.next%uint64(len(s.ring))].value
		rx.next++
		return Ok(v), true
	case s.senders == 0:
		return Err[T](ErrClosed), true
	}
	return r, false
}

// PollRecv polls for the next value. A *LaggedError reports values lost to
// overwriting; the following receive continues at the oldest retained one.
func (rx *BroadcastReceiver[T]) PollRecv(cx *Context) Poll[Result[T]] {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := rx.recv(); ok {
		if r.Err == nil && !cx.proceed() {
			// hand the value back for the next poll
			rx.next--
			return Pending[Result[T]]()
		}
		s.waiters.remove(&rx.w)
		return Ready(r)
	}
	rx.w.setWaker(cx)
	if !rx.w.queued {
		rx.w.granted = false
		s.waiters.push(&rx.w)
	}
	return Pending[Result[T]]()
}

// Recv returns a future for the next value.
func (rx *BroadcastReceiver[T]) Recv() Future[Result[T]] {
	return FutureFunc[Result[T]](rx.PollRecv)
}

// TryRecv receives without waiting, failing with ErrEmpty if nothing new
// has been sent.
func (rx *BroadcastReceiver[T]) TryRecv() (T, error) {
	rx.s.mu.Lock()
	defer rx.s.mu.Unlock()
	if r, ok := rx.recv(); ok {
		return r.Get()
	}
	var zero T
	return zero, ErrEmpty
}

// Close unsubscribes the receiver. Only the first call has an effect.
func (rx *BroadcastReceiver[T]) Close() {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if rx.closed {
		return
	}
	rx.closed = true
	s.receivers--
	s.waiters.remove(&rx.w)
}
