// Package wheel implements a hierarchical timing wheel.
//
// Time is measured in abstract ticks (the runtime uses milliseconds). The
// wheel has [NumLevels] levels of 64 slots each; level n slots span 64^n
// ticks. An entry is stored in the lowest level whose window still contains
// its deadline, relative to the wheel's elapsed tick. When a slot on a
// higher level expires, its entries are cascaded into lower levels, and only
// entries whose deadline has been reached are fired.
//
// Insertion, removal and per-tick expiry are O(1). Removal is idempotent.
//
// A Wheel is not safe for concurrent use.
package wheel

import (
	"math/bits"
)

const (
	slotBits = 6
	numSlots = 1 << slotBits
	slotMask = numSlots - 1

	// NumLevels is the number of levels in the wheel.
	NumLevels = 6

	// MaxSpan is the number of ticks covered by all levels. Entries further
	// out than this are parked in the top level and re-cascaded until due.
	MaxSpan = uint64(1) << (slotBits * NumLevels)
)

// Entry is a single timer. The zero value is ready for use. An Entry must
// not be copied while linked, and may belong to at most one Wheel.
type Entry[T any] struct {
	// Value is the payload handed back when the entry fires.
	Value T

	prev     *Entry[T]
	next     *Entry[T]
	deadline uint64
	level    int
	slot     int
	linked   bool
}

// Deadline returns the tick the entry was last scheduled for.
func (e *Entry[T]) Deadline() uint64 { return e.deadline }

// Linked reports whether the entry is currently scheduled in a wheel.
func (e *Entry[T]) Linked() bool { return e.linked }

type slotList[T any] struct {
	head *Entry[T]
	tail *Entry[T]
}

type level[T any] struct {
	slots    [numSlots]slotList[T]
	occupied uint64
	index    int
}

type expiration struct {
	deadline uint64
	level    int
	slot     int
}

// Wheel is a hierarchical timing wheel keyed by tick.
type Wheel[T any] struct {
	levels  [NumLevels]level[T]
	elapsed uint64
	len     int
}

// New returns an empty wheel positioned at tick zero.
func New[T any]() *Wheel[T] {
	w := &Wheel[T]{}
	for i := range w.levels {
		w.levels[i].index = i
	}
	return w
}

// Elapsed returns the tick the wheel has been advanced to.
func (w *Wheel[T]) Elapsed() uint64 { return w.elapsed }

// Len returns the number of linked entries.
func (w *Wheel[T]) Len() int { return w.len }

// Insert schedules e for deadline, first removing it if it is already
// linked. It returns false, leaving e unlinked, if deadline is not after the
// elapsed tick; the caller should treat the entry as already expired.
func (w *Wheel[T]) Insert(e *Entry[T], deadline uint64) bool {
	if e.linked {
		w.Remove(e)
	}
	e.deadline = deadline
	if deadline <= w.elapsed {
		return false
	}
	w.link(e)
	return true
}

// Remove unlinks e. It returns false if e was not linked.
func (w *Wheel[T]) Remove(e *Entry[T]) bool {
	if !e.linked {
		return false
	}
	w.levels[e.level].unlink(e)
	w.len--
	return true
}

// NextDeadline returns the tick at which the wheel next needs advancing,
// which is no later than the earliest linked deadline.
func (w *Wheel[T]) NextDeadline() (uint64, bool) {
	exp, ok := w.nextExpiration()
	return exp.deadline, ok
}

// Advance moves the wheel forward to now, calling fire for every entry whose
// deadline is at or before now, in deadline order. Entries are unlinked
// before fire is called. fire must not call methods on the wheel. Advancing
// backwards is a no-op. It returns the number of entries fired.
func (w *Wheel[T]) Advance(now uint64, fire func(*Entry[T])) int {
	var fired int
	for {
		exp, ok := w.nextExpiration()
		if !ok || exp.deadline > now {
			break
		}
		fired += w.process(exp, fire)
	}
	if now > w.elapsed {
		w.elapsed = now
	}
	return fired
}

func (w *Wheel[T]) process(exp expiration, fire func(*Entry[T])) int {
	l := &w.levels[exp.level]
	e := l.slots[exp.slot].head
	l.slots[exp.slot] = slotList[T]{}
	l.occupied &^= 1 << uint(exp.slot)

	if exp.deadline > w.elapsed {
		w.elapsed = exp.deadline
	}

	var fired int
	for e != nil {
		next := e.next
		e.prev, e.next, e.linked = nil, nil, false
		w.len--
		if e.deadline <= exp.deadline {
			fired++
			fire(e)
		} else {
			// cascade
			w.link(e)
		}
		e = next
	}
	return fired
}

func (w *Wheel[T]) nextExpiration() (expiration, bool) {
	if w.len == 0 {
		return expiration{}, false
	}
	for i := range w.levels {
		if exp, ok := w.levels[i].nextExpiration(w.elapsed); ok {
			return exp, true
		}
	}
	return expiration{}, false
}

func (w *Wheel[T]) link(e *Entry[T]) {
	lvl := levelFor(w.elapsed, e.deadline)
	w.levels[lvl].push(slotFor(e.deadline, lvl), e)
	w.len++
}

// levelFor picks the level whose window distinguishes when from elapsed.
func levelFor(elapsed, when uint64) int {
	masked := (elapsed ^ when) | slotMask
	if masked >= MaxSpan {
		masked = MaxSpan - 1
	}
	significant := 63 - bits.LeadingZeros64(masked)
	return significant / slotBits
}

func slotFor(when uint64, lvl int) int {
	return int((when >> (uint(lvl) * slotBits)) & slotMask)
}

func (l *level[T]) push(slot int, e *Entry[T]) {
	list := &l.slots[slot]
	e.level, e.slot, e.linked = l.index, slot, true
	e.next = nil
	e.prev = list.tail
	if list.tail != nil {
		list.tail.next = e
	} else {
		list.head = e
	}
	list.tail = e
	l.occupied |= 1 << uint(slot)
}

func (l *level[T]) unlink(e *Entry[T]) {
	list := &l.slots[e.slot]
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		list.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		list.tail = e.prev
	}
	e.prev, e.next, e.linked = nil, nil, false
	if list.head == nil {
		l.occupied &^= 1 << uint(e.slot)
	}
}

func (l *level[T]) nextExpiration(now uint64) (expiration, bool) {
	if l.occupied == 0 {
		return expiration{}, false
	}
	slotRange := uint64(1) << (uint(l.index) * slotBits)
	levelRange := slotRange << slotBits

	nowSlot := int((now >> (uint(l.index) * slotBits)) & slotMask)
	rotated := bits.RotateLeft64(l.occupied, -nowSlot)
	slot := (bits.TrailingZeros64(rotated) + nowSlot) & slotMask

	levelStart := now &^ (levelRange - 1)
	deadline := levelStart + uint64(slot)*slotRange
	if deadline <= now {
		// only reachable on the top level, for entries beyond MaxSpan
		deadline += levelRange
	}
	return expiration{deadline: deadline, level: l.index, slot: slot}, true
}
