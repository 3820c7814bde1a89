package asyncrt

import (
	"fmt"
	"log"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// runtimeLogger wraps the configured logiface logger. Every method is safe
// on a nil logger; critical messages fall back to the standard library log
// package when no logger is configured.
type runtimeLogger struct {
	l      *logiface.Logger[logiface.Event]
	panics *catrate.Limiter
	rtID   string
}

func newRuntimeLogger(rtID string, cfg *runtimeOptions) *runtimeLogger {
	rl := &runtimeLogger{l: cfg.logger, rtID: rtID}
	if len(cfg.panicLogRates) > 0 {
		rl.panics = catrate.NewLimiter(cfg.panicLogRates)
	}
	return rl
}

func (rl *runtimeLogger) started(flavor Flavor, workers int) {
	rl.l.Info().
		Str("runtime", rl.rtID).
		Str("flavor", flavor.String()).
		Int("workers", workers).
		Log("asyncrt: runtime started")
}

func (rl *runtimeLogger) stopped(elapsed time.Duration, err error) {
	b := rl.l.Info()
	if err != nil {
		b = rl.l.Warning().Err(err)
	}
	b.Str("runtime", rl.rtID).
		Dur("elapsed", elapsed).
		Log("asyncrt: runtime stopped")
}

// taskPanicked reports a recovered panic, rate limited by task name. It
// returns false if the message was suppressed.
func (rl *runtimeLogger) taskPanicked(t *task, value any, stack []byte) bool {
	name := t.name
	if name == "" {
		name = "<unnamed>"
	}
	if rl.panics != nil {
		if _, ok := rl.panics.Allow(name); !ok {
			return false
		}
	}
	if rl.l == nil {
		log.Printf("ERROR: asyncrt: task %s (%s) panicked: %v\n%s", name, t.id, value, stack)
		return true
	}
	rl.l.Err().
		Str("runtime", rl.rtID).
		Str("task", name).
		Str("task_id", t.id.String()).
		Str("priority", t.priority.String()).
		Str("panic", fmt.Sprint(value)).
		Str("stack", string(stack)).
		Log("asyncrt: task panicked")
	return true
}

// critical reports a condition that compromises the runtime, such as a
// failing poller.
func (rl *runtimeLogger) critical(msg string, err error) {
	if rl.l == nil {
		log.Printf("CRITICAL: asyncrt: %s: %v", msg, err)
		return
	}
	defer func() {
		// a broken logger must not take the driver down with it
		if r := recover(); r != nil {
			log.Printf("CRITICAL: asyncrt: %s: %v (logger panicked: %v)", msg, err, r)
		}
	}()
	rl.l.Err().
		Str("runtime", rl.rtID).
		Err(err).
		Log("asyncrt: " + msg)
}

func (rl *runtimeLogger) blockingThread(event string, name string, threads int) {
	rl.l.Debug().
		Str("runtime", rl.rtID).
		Str("thread", name).
		Int("threads", threads).
		Log("asyncrt: blocking thread " + event)
}

func (rl *runtimeLogger) shutdownTimeout(live int, err error) {
	rl.l.Warning().
		Str("runtime", rl.rtID).
		Int("live_tasks", live).
		Err(err).
		Log("asyncrt: shutdown did not drain all tasks")
}
