package asyncrt

// coopBudget bounds how many ready primitive operations a single poll may
// consume before it is forced to yield.
const coopBudget = 128

// Context is passed to every Future.Poll call. It is only valid for the
// duration of that call and must not be retained.
type Context struct {
	rt     *Runtime
	task   *task
	worker *worker
	waker  Waker
	budget int
	// yielded requests the task be queued again at the back.
	yielded bool
}

func (cx *Context) bind(rt *Runtime, t *task, w *worker, waker Waker) {
	cx.rt = rt
	cx.task = t
	cx.worker = w
	cx.waker = waker
	cx.budget = coopBudget
	cx.yielded = false
}

// ContextFromWaker returns a Context bound to no runtime, for driving
// futures by hand. Futures that need the runtime, such as Sleep, panic when
// polled with it.
func ContextFromWaker(w Waker) *Context {
	return &Context{waker: w, budget: coopBudget}
}

// Waker returns the waker for the future currently being polled.
func (cx *Context) Waker() Waker { return cx.waker }

// Runtime returns the runtime driving the poll.
func (cx *Context) Runtime() *Runtime { return cx.rt }

// TaskID returns the id of the task being polled, or zero for the root
// future of BlockOn.
func (cx *Context) TaskID() TaskID {
	if cx.task == nil {
		return 0
	}
	return cx.task.id
}

// TaskName returns the name given to the task with [TaskName], if any.
func (cx *Context) TaskName() string {
	if cx.task == nil {
		return ""
	}
	return cx.task.name
}

// Yield asks for the current task to be re-queued behind other ready work
// once this poll returns. The caller should return Pending.
func (cx *Context) Yield() {
	if cx.yielded {
		return
	}
	cx.yielded = true
	if cx.task == nil {
		cx.waker.Wake()
	}
}

// proceed consumes one unit of cooperative budget. Once exhausted it yields
// and returns false, and the caller must return Pending.
func (cx *Context) proceed() bool {
	if cx.budget <= 0 {
		if cx.rt != nil {
			cx.rt.metrics.budgetYields.Add(1)
		}
		cx.Yield()
		return false
	}
	cx.budget--
	return true
}
