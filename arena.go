package asyncrt

import (
	"sync"
)

// taskTable is the runtime's task arena. Live tasks occupy slots; a slot's
// generation is bumped whenever it is freed, invalidating every TaskID (and
// so every Waker) minted for the previous occupant.
type taskTable struct {
	slots []taskSlot
	// free is a stack of vacant slot indexes.
	free   []uint32
	live   int
	mu     sync.RWMutex
	closed bool
}

type taskSlot struct {
	t   *task
	gen uint32
}

func newTaskTable() *taskTable {
	return &taskTable{
		slots: make([]taskSlot, 0, 256),
	}
}

// insert stores t, assigning its id. It fails once the table is closed.
func (tt *taskTable) insert(t *task) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.closed {
		return false
	}
	var idx uint32
	if n := len(tt.free); n > 0 {
		idx = tt.free[n-1]
		tt.free = tt.free[:n-1]
	} else {
		idx = uint32(len(tt.slots))
		// generation starts at 1 so no id is zero
		tt.slots = append(tt.slots, taskSlot{gen: 1})
	}
	slot := &tt.slots[idx]
	slot.t = t
	t.id = newTaskID(slot.gen, idx)
	tt.live++
	return true
}

// get resolves id, returning nil for stale or unknown ids.
func (tt *taskTable) get(id TaskID) *task {
	idx := id.slot()
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	if int(idx) >= len(tt.slots) {
		return nil
	}
	slot := tt.slots[idx]
	if slot.gen != id.generation() {
		return nil
	}
	return slot.t
}

// remove frees id's slot, returning the number of live tasks left.
func (tt *taskTable) remove(id TaskID) int {
	idx := id.slot()
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if int(idx) < len(tt.slots) && tt.slots[idx].gen == id.generation() && tt.slots[idx].t != nil {
		slot := &tt.slots[idx]
		slot.t = nil
		slot.gen++
		if slot.gen == 0 {
			slot.gen = 1
		}
		tt.free = append(tt.free, idx)
		tt.live--
	}
	return tt.live
}

// len returns the number of live tasks.
func (tt *taskTable) len() int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.live
}

// close rejects further inserts and returns the live tasks.
func (tt *taskTable) close() []*task {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.closed = true
	tasks := make([]*task, 0, tt.live)
	for _, slot := range tt.slots {
		if slot.t != nil {
			tasks = append(tasks, slot.t)
		}
	}
	return tasks
}

// wakeByID implements wakeTarget.
func (tt *taskTable) wakeByID(id TaskID) {
	if t := tt.get(id); t != nil {
		t.wake()
	}
}
