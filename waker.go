package asyncrt

// wakeTarget resolves a waker's id to something schedulable.
type wakeTarget interface {
	wakeByID(id TaskID)
}

// Waker signals that a suspended future should be polled again. It is a
// small comparable value, safe to copy and to invoke from any goroutine.
//
// A task waker holds only the task's [TaskID], which is validated against the
// runtime's task arena on every wake, so a waker outliving its task is a
// harmless no-op. Waking a task that is already scheduled does nothing;
// repeated wakes coalesce into one poll.
type Waker struct {
	target wakeTarget
	id     TaskID
}

// Wake schedules the associated task. The zero Waker is a no-op.
func (w Waker) Wake() {
	if w.target != nil {
		w.target.wakeByID(w.id)
	}
}

// IsZero reports whether w is the no-op waker.
func (w Waker) IsZero() bool { return w.target == nil }

// WillWake reports whether w and other wake the same thing. Futures use it
// to skip replacing a stored waker on re-poll.
func (w Waker) WillWake(other Waker) bool {
	return w.target == other.target && w.id == other.id
}

// NewWaker returns a waker that calls fn on every wake. fn must be safe for
// concurrent use and must not block.
func NewWaker(fn func()) Waker {
	return Waker{target: &funcWaker{fn: fn}}
}

// NoopWaker returns a waker that does nothing.
func NoopWaker() Waker { return Waker{} }

type funcWaker struct {
	fn func()
}

func (f *funcWaker) wakeByID(TaskID) { f.fn() }
