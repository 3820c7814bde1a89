package asyncrt

// YieldNow returns a future that gives up the rest of the current poll once,
// letting other ready tasks run before it completes.
func YieldNow() Future[struct{}] {
	return &yieldFuture{}
}

type yieldFuture struct{ yielded bool }

func (y *yieldFuture) Poll(cx *Context) Poll[struct{}] {
	if y.yielded {
		return Ready(struct{}{})
	}
	y.yielded = true
	cx.Yield()
	return Pending[struct{}]()
}

// ReadyFuture returns a future that completes immediately with v.
func ReadyFuture[T any](v T) Future[T] {
	return FutureFunc[T](func(*Context) Poll[T] { return Ready(v) })
}

// Map transforms the output of f with fn.
func Map[T, U any](f Future[T], fn func(T) U) Future[U] {
	return &mapFuture[T, U]{fut: f, fn: fn}
}

type mapFuture[T, U any] struct {
	fut Future[T]
	fn  func(T) U
}

func (m *mapFuture[T, U]) Poll(cx *Context) Poll[U] {
	v, ok := m.fut.Poll(cx).Value()
	if !ok {
		return Pending[U]()
	}
	m.Drop()
	return Ready(m.fn(v))
}

func (m *mapFuture[T, U]) Drop() {
	if m.fut != nil {
		drop(m.fut)
		m.fut = nil
	}
}

// Then chains f into the future returned by fn.
func Then[T, U any](f Future[T], fn func(T) Future[U]) Future[U] {
	return &thenFuture[T, U]{first: f, fn: fn}
}

type thenFuture[T, U any] struct {
	first  Future[T]
	fn     func(T) Future[U]
	second Future[U]
}

func (t *thenFuture[T, U]) Poll(cx *Context) Poll[U] {
	if t.second == nil {
		v, ok := t.first.Poll(cx).Value()
		if !ok {
			return Pending[U]()
		}
		drop(t.first)
		t.first = nil
		t.second = t.fn(v)
	}
	p := t.second.Poll(cx)
	if p.IsReady() {
		drop(t.second)
		t.second = nil
	}
	return p
}

func (t *thenFuture[T, U]) Drop() {
	if t.first != nil {
		drop(t.first)
		t.first = nil
	}
	if t.second != nil {
		drop(t.second)
		t.second = nil
	}
}

// JoinAll completes once every future has, with their outputs in order.
// Pending futures are all polled on every wake.
func JoinAll[T any](fs ...Future[T]) Future[[]T] {
	return &joinAll[T]{futs: fs, out: make([]T, len(fs))}
}

type joinAll[T any] struct {
	futs    []Future[T]
	out     []T
	pending int
	started bool
}

func (j *joinAll[T]) Poll(cx *Context) Poll[[]T] {
	if !j.started {
		j.started = true
		j.pending = len(j.futs)
	}
	for i, f := range j.futs {
		if f == nil {
			continue
		}
		if v, ok := f.Poll(cx).Value(); ok {
			j.out[i] = v
			drop(f)
			j.futs[i] = nil
			j.pending--
		}
	}
	if j.pending > 0 {
		return Pending[[]T]()
	}
	return Ready(j.out)
}

func (j *joinAll[T]) Drop() {
	for i, f := range j.futs {
		if f != nil {
			drop(f)
			j.futs[i] = nil
		}
	}
}

// Race completes with the first of fs to complete, polling in argument
// order. The losers are dropped.
func Race[T any](fs ...Future[T]) Future[T] {
	return &race[T]{futs: fs}
}

type race[T any] struct {
	futs []Future[T]
}

func (r *race[T]) Poll(cx *Context) Poll[T] {
	for i, f := range r.futs {
		if v, ok := f.Poll(cx).Value(); ok {
			drop(f)
			r.futs[i] = nil
			r.Drop()
			return Ready(v)
		}
	}
	return Pending[T]()
}

func (r *race[T]) Drop() {
	for i, f := range r.futs {
		if f != nil {
			drop(f)
			r.futs[i] = nil
		}
	}
}
