// Package global provides a process-wide asyncrt runtime.
//
// The runtime is a multi-thread runtime created on first use, or earlier by
// Init with explicit options. Shutdown tears it down; the next use creates
// a fresh one, which keeps tests isolated.
package global

import (
	"context"
	"errors"
	"sync"

	"github.com/joeycumines/go-asyncrt"
)

// ErrAlreadyInitialized is returned by Init once the runtime exists.
var ErrAlreadyInitialized = errors.New("global: runtime already initialized")

var (
	mu      sync.Mutex
	current *asyncrt.Runtime
)

// Init creates the global runtime with opts. It must precede any other use
// of the package.
func Init(opts ...asyncrt.Option) error {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return ErrAlreadyInitialized
	}
	rt, err := asyncrt.NewMultiThread(opts...)
	if err != nil {
		return err
	}
	current = rt
	return nil
}

// Runtime returns the global runtime, creating it with default options if
// needed.
func Runtime() (*asyncrt.Runtime, error) {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		rt, err := asyncrt.NewMultiThread()
		if err != nil {
			return nil, err
		}
		current = rt
	}
	return current, nil
}

// Spawn starts f on the global runtime.
func Spawn[T any](f asyncrt.Future[T], opts ...asyncrt.TaskOption) (*asyncrt.JoinHandle[T], error) {
	rt, err := Runtime()
	if err != nil {
		return nil, err
	}
	return asyncrt.Spawn(rt, f, opts...)
}

// SpawnBlocking runs fn on the global runtime's blocking pool.
func SpawnBlocking[T any](fn func() (T, error), opts ...asyncrt.TaskOption) (*asyncrt.JoinHandle[T], error) {
	rt, err := Runtime()
	if err != nil {
		return nil, err
	}
	return asyncrt.SpawnBlocking(rt, fn, opts...)
}

// BlockOn drives f to completion on the global runtime.
func BlockOn[T any](f asyncrt.Future[T]) (T, error) {
	rt, err := Runtime()
	if err != nil {
		var zero T
		return zero, err
	}
	return asyncrt.BlockOn(rt, f)
}

// Shutdown shuts the global runtime down, if it exists, and forgets it.
// Futures still holding the old runtime see ErrRuntimeShutdown.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	rt := current
	current = nil
	mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Shutdown(ctx)
}
