package asyncrt

import (
	"sync/atomic"
)

// UnboundedSender is the sending half of an unbounded channel. Send never
// suspends.
type UnboundedSender[T any] struct {
	c      *chanState[T]
	closed atomic.Bool
}

// NewUnboundedChannel returns a multi-producer single-consumer channel with
// no capacity limit.
func NewUnboundedChannel[T any]() (*UnboundedSender[T], *Receiver[T]) {
	c := newChanState[T](0)
	return &UnboundedSender[T]{c: c}, &Receiver[T]{c: c}
}

// Send buffers v, failing with a *SendError holding ErrClosed if the
// receiver or this sender is closed.
func (tx *UnboundedSender[T]) Send(v T) error {
	c := tx.c
	c.mu.Lock()
	if tx.closed.Load() || c.rxClosed {
		c.mu.Unlock()
		return &SendError[T]{Value: v, Err: ErrClosed}
	}
	w := c.push(v)
	c.mu.Unlock()
	w.Wake()
	return nil
}

// Clone returns a new sender for the same channel.
func (tx *UnboundedSender[T]) Clone() *UnboundedSender[T] {
	tx.c.addSender()
	return &UnboundedSender[T]{c: tx.c}
}

// Close drops this sender. Only the first call has an effect.
func (tx *UnboundedSender[T]) Close() {
	if tx.closed.Swap(true) {
		return
	}
	tx.c.dropSender()
}

// IsClosed reports whether the receiver has been closed.
func (tx *UnboundedSender[T]) IsClosed() bool {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()
	return tx.c.rxClosed
}

// SameChannel reports whether both senders feed the same channel.
func (tx *UnboundedSender[T]) SameChannel(other *UnboundedSender[T]) bool {
	return tx.c == other.c
}
