package asyncrt

import (
	"time"
)

// MissedTickBehavior selects how an Interval catches up after ticks were
// missed because the consumer fell behind.
type MissedTickBehavior uint8

const (
	// MissedTickBurst fires missed ticks back to back until caught up.
	MissedTickBurst MissedTickBehavior = iota
	// MissedTickDelay restarts the schedule one period after the late tick.
	MissedTickDelay
	// MissedTickSkip drops missed ticks and fires on the next multiple of
	// the period.
	MissedTickSkip
)

// String returns a human-readable representation of the behavior.
func (b MissedTickBehavior) String() string {
	switch b {
	case MissedTickBurst:
		return "Burst"
	case MissedTickDelay:
		return "Delay"
	case MissedTickSkip:
		return "Skip"
	default:
		return "Unknown"
	}
}

// missedTickSlack is how late a tick may be before it counts as missed.
const missedTickSlack = 5 * time.Millisecond

// Interval yields ticks at a fixed period. It is used by one task at a time.
type Interval struct {
	period time.Duration
	missed MissedTickBehavior
	sleep  SleepFuture
}

// NewInterval returns an interval whose first tick completes immediately.
func NewInterval(period time.Duration) *Interval {
	return NewIntervalAt(time.Now(), period)
}

// NewIntervalAt returns an interval whose first tick is at start. It panics
// if period is not positive.
func NewIntervalAt(start time.Time, period time.Duration) *Interval {
	if period <= 0 {
		panic("asyncrt: non-positive interval period")
	}
	iv := &Interval{period: period}
	iv.sleep.deadline = start
	return iv
}

// Period returns the interval's period.
func (iv *Interval) Period() time.Duration { return iv.period }

// MissedTickBehavior returns the catch-up policy.
func (iv *Interval) MissedTickBehavior() MissedTickBehavior { return iv.missed }

// SetMissedTickBehavior sets the catch-up policy. The default is
// MissedTickBurst.
func (iv *Interval) SetMissedTickBehavior(b MissedTickBehavior) { iv.missed = b }

// PollTick completes with the scheduled instant of the next tick.
func (iv *Interval) PollTick(cx *Context) Poll[time.Time] {
	if iv.sleep.Poll(cx).IsPending() {
		return Pending[time.Time]()
	}
	tick := iv.sleep.deadline
	now := time.Now()
	next := tick.Add(iv.period)
	if late := now.Sub(tick); late > missedTickSlack {
		switch iv.missed {
		case MissedTickDelay:
			next = now.Add(iv.period)
		case MissedTickSkip:
			next = now.Add(iv.period - late%iv.period)
		}
	}
	iv.sleep.Reset(next)
	return Ready(tick)
}

// Tick returns a future for the next tick.
func (iv *Interval) Tick() Future[time.Time] {
	return FutureFunc[time.Time](iv.PollTick)
}

// Reset restarts the schedule one period from now.
func (iv *Interval) Reset() {
	iv.sleep.Reset(time.Now().Add(iv.period))
}

// Drop implements Dropper, cancelling the pending timer.
func (iv *Interval) Drop() { iv.sleep.Drop() }
