package fsio

import (
	"errors"

	"github.com/joeycumines/go-asyncrt"
)

// ErrNoRuntime is returned when a future is polled outside a runtime.
var ErrNoRuntime = errors.New("fsio: polled outside a runtime")

// blockingFuture runs fn on the blocking pool of the runtime that first
// polls it.
type blockingFuture[T any] struct {
	fn func() (T, error)
	h  *asyncrt.JoinHandle[T]
}

func spawnBlocking[T any](fn func() (T, error)) *blockingFuture[T] {
	return &blockingFuture[T]{fn: fn}
}

func (f *blockingFuture[T]) Poll(cx *asyncrt.Context) asyncrt.Poll[asyncrt.Result[T]] {
	if f.h == nil {
		rt := cx.Runtime()
		if rt == nil {
			return asyncrt.Ready(asyncrt.Err[T](ErrNoRuntime))
		}
		h, err := asyncrt.SpawnBlocking(rt, f.fn)
		if err != nil {
			return asyncrt.Ready(asyncrt.Err[T](err))
		}
		f.h = h
	}
	return f.h.Poll(cx)
}

// Drop cancels the job if it has not started.
func (f *blockingFuture[T]) Drop() {
	if f.h != nil {
		f.h.Cancel()
	}
}

// errFuture adapts a blocking job with no value to a Future[error].
func errFuture(fn func() error) asyncrt.Future[error] {
	return asyncrt.Map[asyncrt.Result[struct{}], error](spawnBlocking(func() (struct{}, error) {
		return struct{}{}, fn()
	}), func(r asyncrt.Result[struct{}]) error { return r.Err })
}
