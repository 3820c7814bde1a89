package asyncrt

// Poll is the outcome of a single poll step: either ready with a value, or
// pending.
type Poll[T any] struct {
	value T
	ready bool
}

// Ready returns a ready Poll holding v.
func Ready[T any](v T) Poll[T] {
	return Poll[T]{value: v, ready: true}
}

// Pending returns a pending Poll.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// IsReady reports whether the poll completed.
func (p Poll[T]) IsReady() bool { return p.ready }

// IsPending reports whether the poll must be retried after a wake.
func (p Poll[T]) IsPending() bool { return !p.ready }

// Value returns the value and whether the poll is ready.
func (p Poll[T]) Value() (T, bool) { return p.value, p.ready }

// Future is a suspendable computation driven by repeated calls to Poll.
//
// Poll must not block. When it returns Pending it must first have arranged
// for cx.Waker() to be woken once progress is possible; a future that
// returns Pending without doing so is never polled again. After Poll returns
// Ready, it must not be called again.
type Future[T any] interface {
	Poll(cx *Context) Poll[T]
}

// FutureFunc adapts a function to the Future interface.
type FutureFunc[T any] func(cx *Context) Poll[T]

// Poll calls f(cx).
func (f FutureFunc[T]) Poll(cx *Context) Poll[T] { return f(cx) }

// Dropper is implemented by futures holding resources that must be released
// when the future is discarded. The runtime calls Drop exactly once, after
// the future completes, or when it is cancelled, loses a race, or times out.
type Dropper interface {
	Drop()
}

// drop calls v.Drop if v implements Dropper.
func drop(v any) {
	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
}

// Result pairs a value with an error, and is the output type of fallible
// futures.
type Result[T any] struct {
	Value T
	Err   error
}

// Get unpacks the result.
func (r Result[T]) Get() (T, error) { return r.Value, r.Err }

// Ok returns a successful Result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Err returns a failed Result.
func Err[T any](err error) Result[T] { return Result[T]{Err: err} }
