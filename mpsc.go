package asyncrt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// chanState is shared by the senders and receiver of an mpsc channel. A
// capacity of zero means unbounded. While sendWaiters is non-empty the
// buffer is full.
type chanState[T any] struct {
	mu          sync.Mutex
	buf         *queue.Queue
	capacity    int
	senders     int
	rxClosed    bool
	rx          Waker
	sendWaiters waitList[T]
}

func newChanState[T any](capacity int) *chanState[T] {
	return &chanState[T]{buf: queue.New(), capacity: capacity, senders: 1}
}

func (c *chanState[T]) full() bool {
	return c.capacity > 0 && c.buf.Length() >= c.capacity
}

// push must be called with the lock held, and returns the receiver waker.
func (c *chanState[T]) push(v T) Waker {
	c.buf.Add(v)
	w := c.rx
	c.rx = Waker{}
	return w
}

func (c *chanState[T]) addSender() {
	c.mu.Lock()
	c.senders++
	c.mu.Unlock()
}

func (c *chanState[T]) dropSender() {
	c.mu.Lock()
	c.senders--
	var w Waker
	if c.senders == 0 {
		w, c.rx = c.rx, Waker{}
	}
	c.mu.Unlock()
	w.Wake()
}

// Sender is the sending half of a bounded channel. Clone it for further
// producers; the channel closes once every sender is closed.
type Sender[T any] struct {
	c      *chanState[T]
	closed atomic.Bool
}

// Receiver is the receiving half of an mpsc channel, bounded or unbounded.
type Receiver[T any] struct {
	c *chanState[T]
}

// NewChannel returns a bounded multi-producer single-consumer channel
// buffering up to capacity values. Sends beyond that suspend until the
// receiver makes room. It panics if capacity is less than one.
func NewChannel[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		panic("asyncrt: channel capacity must be at least 1")
	}
	c := newChanState[T](capacity)
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// Clone returns a new sender for the same channel.
func (tx *Sender[T]) Clone() *Sender[T] {
	tx.c.addSender()
	return &Sender[T]{c: tx.c}
}

// Close drops this sender. Only the first call has an effect.
func (tx *Sender[T]) Close() {
	if tx.closed.Swap(true) {
		return
	}
	tx.c.dropSender()
}

// IsClosed reports whether the receiver has been closed.
func (tx *Sender[T]) IsClosed() bool {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()
	return tx.c.rxClosed
}

// SameChannel reports whether both senders feed the same channel.
func (tx *Sender[T]) SameChannel(other *Sender[T]) bool { return tx.c == other.c }

// Capacity returns the number of values that can currently be sent without
// suspending.
func (tx *Sender[T]) Capacity() int {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()
	if tx.c.full() {
		return 0
	}
	return tx.c.capacity - tx.c.buf.Length()
}

// MaxCapacity returns the capacity the channel was created with.
func (tx *Sender[T]) MaxCapacity() int { return tx.c.capacity }

// TrySend sends v without waiting, failing with a *SendError holding ErrFull
// or ErrClosed.
func (tx *Sender[T]) TrySend(v T) error {
	c := tx.c
	c.mu.Lock()
	switch {
	case tx.closed.Load() || c.rxClosed:
		c.mu.Unlock()
		return &SendError[T]{Value: v, Err: ErrClosed}
	case c.full():
		c.mu.Unlock()
		return &SendError[T]{Value: v, Err: ErrFull}
	}
	w := c.push(v)
	c.mu.Unlock()
	w.Wake()
	return nil
}

// Send returns a future that completes once v is buffered. It resolves to
// nil, or a *SendError holding v if the channel closed first. Dropping the
// future while it waits withdraws v.
func (tx *Sender[T]) Send(v T) *SendFuture[T] {
	f := &SendFuture[T]{tx: tx}
	f.w.value = v
	return f
}

// SendTimeout is Send bounded by d; on expiry the result is a *SendError
// holding v and ErrTimeout.
func (tx *Sender[T]) SendTimeout(v T, d time.Duration) Future[error] {
	return Map(Timeout(d, Future[error](tx.Send(v))), func(r Result[error]) error {
		if r.Err != nil {
			return &SendError[T]{Value: v, Err: r.Err}
		}
		return r.Value
	})
}

// SendFuture is returned by Sender.Send.
type SendFuture[T any] struct {
	tx   *Sender[T]
	w    waiter[T]
	done bool
}

// Poll implements Future.
func (f *SendFuture[T]) Poll(cx *Context) Poll[error] {
	c := f.tx.c
	c.mu.Lock()
	switch {
	case f.w.granted:
		c.mu.Unlock()
		f.done = true
		return Ready[error](nil)
	case c.rxClosed || (!f.w.queued && f.tx.closed.Load()):
		c.sendWaiters.remove(&f.w)
		c.mu.Unlock()
		return Ready[error](f.fail())
	case f.w.queued:
		f.w.setWaker(cx)
		c.mu.Unlock()
		return Pending[error]()
	case !c.full() && c.sendWaiters.empty():
		if !cx.proceed() {
			c.mu.Unlock()
			return Pending[error]()
		}
		w := c.push(f.w.value)
		c.mu.Unlock()
		w.Wake()
		f.done = true
		var zero T
		f.w.value = zero
		return Ready[error](nil)
	}
	f.w.setWaker(cx)
	c.sendWaiters.push(&f.w)
	c.mu.Unlock()
	return Pending[error]()
}

func (f *SendFuture[T]) fail() error {
	f.done = true
	v := f.w.value
	var zero T
	f.w.value = zero
	return &SendError[T]{Value: v, Err: ErrClosed}
}

// Drop implements Dropper.
func (f *SendFuture[T]) Drop() {
	if f.done {
		return
	}
	f.done = true
	c := f.tx.c
	c.mu.Lock()
	c.sendWaiters.remove(&f.w)
	c.mu.Unlock()
}

// TryRecv receives without waiting. It fails with ErrEmpty, or ErrClosed
// once the channel is closed and drained.
func (rx *Receiver[T]) TryRecv() (T, error) {
	c := rx.c
	c.mu.Lock()
	v, ok, closed, w := rx.pop()
	c.mu.Unlock()
	w.Wake()
	switch {
	case ok:
		return v, nil
	case closed:
		return v, ErrClosed
	}
	return v, ErrEmpty
}

// pop must be called with the lock held. The returned waker belongs to a
// sender whose value moved into the freed slot.
func (rx *Receiver[T]) pop() (v T, ok, closed bool, w Waker) {
	c := rx.c
	if c.buf.Length() == 0 {
		return v, false, c.senders == 0 || c.rxClosed, Waker{}
	}
	v = c.buf.Remove().(T)
	if sw := c.sendWaiters.front(); sw != nil {
		c.buf.Add(sw.value)
		var zero T
		sw.value = zero
		w = c.sendWaiters.grant(sw)
	}
	return v, true, false, w
}

// PollRecv polls for the next value. It completes with ErrClosed once every
// sender is closed (or the receiver is) and the buffer is drained.
func (rx *Receiver[T]) PollRecv(cx *Context) Poll[Result[T]] {
	c := rx.c
	c.mu.Lock()
	if c.buf.Length() > 0 && !cx.proceed() {
		c.mu.Unlock()
		return Pending[Result[T]]()
	}
	v, ok, closed, w := rx.pop()
	if !ok && !closed && !c.rx.WillWake(cx.Waker()) {
		c.rx = cx.Waker()
	}
	c.mu.Unlock()
	w.Wake()
	switch {
	case ok:
		return Ready(Ok(v))
	case closed:
		return Ready(Err[T](ErrClosed))
	}
	return Pending[Result[T]]()
}

// Recv returns a future for the next value.
func (rx *Receiver[T]) Recv() Future[Result[T]] {
	return FutureFunc[Result[T]](rx.PollRecv)
}

// RecvTimeout is Recv bounded by d, failing with ErrTimeout.
func (rx *Receiver[T]) RecvTimeout(d time.Duration) Future[Result[T]] {
	return Map(Timeout(d, rx.Recv()), func(r Result[Result[T]]) Result[T] {
		if r.Err != nil {
			return Err[T](r.Err)
		}
		return r.Value
	})
}

// Len returns the number of buffered values.
func (rx *Receiver[T]) Len() int {
	rx.c.mu.Lock()
	defer rx.c.mu.Unlock()
	return rx.c.buf.Length()
}

// Close stops further sends. Suspended senders fail with ErrClosed, while
// values already buffered remain receivable.
func (rx *Receiver[T]) Close() {
	c := rx.c
	c.mu.Lock()
	if c.rxClosed {
		c.mu.Unlock()
		return
	}
	c.rxClosed = true
	wakers := c.sendWaiters.drain()
	c.mu.Unlock()
	wakeAll(wakers)
}
