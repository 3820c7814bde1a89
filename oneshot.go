package asyncrt

import (
	"sync"
)

type oneshotState[T any] struct {
	mu             sync.Mutex
	value          T
	sent           bool
	taken          bool
	senderClosed   bool
	receiverClosed bool
	rx             Waker
	tx             Waker
}

// OneshotSender sends a single value.
type OneshotSender[T any] struct {
	s *oneshotState[T]
}

// OneshotReceiver is a future for the single value of a oneshot channel.
// It completes with ErrClosed if the sender closes without sending.
type OneshotReceiver[T any] struct {
	s *oneshotState[T]
}

// NewOneshot returns a channel that carries exactly one value.
func NewOneshot[T any]() (*OneshotSender[T], *OneshotReceiver[T]) {
	s := &oneshotState[T]{}
	return &OneshotSender[T]{s: s}, &OneshotReceiver[T]{s: s}
}

// Send delivers v. It fails with a *SendError holding v if a value was
// already sent, the sender closed, or the receiver is gone.
func (tx *OneshotSender[T]) Send(v T) error {
	s := tx.s
	s.mu.Lock()
	if s.sent || s.senderClosed || s.receiverClosed {
		s.mu.Unlock()
		return &SendError[T]{Value: v, Err: ErrClosed}
	}
	s.value, s.sent = v, true
	w := s.rx
	s.rx = Waker{}
	s.mu.Unlock()
	w.Wake()
	return nil
}

// Close drops the sender. A receiver still waiting completes with ErrClosed.
func (tx *OneshotSender[T]) Close() {
	s := tx.s
	s.mu.Lock()
	if s.senderClosed {
		s.mu.Unlock()
		return
	}
	s.senderClosed = true
	w := s.rx
	s.rx = Waker{}
	s.mu.Unlock()
	w.Wake()
}

// IsClosed reports whether the receiver has gone away.
func (tx *OneshotSender[T]) IsClosed() bool {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiverClosed
}

// Closed returns a future completing once the receiver has gone away, for
// senders that want to abandon work nobody will observe.
func (tx *OneshotSender[T]) Closed() Future[struct{}] {
	return FutureFunc[struct{}](func(cx *Context) Poll[struct{}] {
		s := tx.s
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.receiverClosed {
			return Ready(struct{}{})
		}
		s.tx = cx.Waker()
		return Pending[struct{}]()
	})
}

// Poll implements Future.
func (rx *OneshotReceiver[T]) Poll(cx *Context) Poll[Result[T]] {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := rx.take(); ok {
		return Ready(r)
	}
	if !s.rx.WillWake(cx.Waker()) {
		s.rx = cx.Waker()
	}
	return Pending[Result[T]]()
}

// take must be called with the lock held.
func (rx *OneshotReceiver[T]) take() (Result[T], bool) {
	s := rx.s
	switch {
	case s.sent && !s.taken:
		s.taken = true
		v := s.value
		var zero T
		s.value = zero
		return Ok(v), true
	case s.taken || s.senderClosed || s.receiverClosed:
		return Err[T](ErrClosed), true
	}
	return Result[T]{}, false
}

// TryRecv returns the value if it was sent, ErrEmpty if it has not been, or
// ErrClosed if it never will be.
func (rx *OneshotReceiver[T]) TryRecv() (T, error) {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := rx.take(); ok {
		return r.Get()
	}
	var zero T
	return zero, ErrEmpty
}

// Close stops the channel: later sends fail. A value sent before Close can
// still be taken with TryRecv.
func (rx *OneshotReceiver[T]) Close() {
	s := rx.s
	s.mu.Lock()
	if s.receiverClosed {
		s.mu.Unlock()
		return
	}
	s.receiverClosed = true
	w := s.tx
	s.tx = Waker{}
	s.mu.Unlock()
	w.Wake()
}

// Drop implements Dropper by closing the receiver.
func (rx *OneshotReceiver[T]) Drop() { rx.Close() }
