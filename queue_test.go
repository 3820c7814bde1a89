package asyncrt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func makeTasks(n int) []*task {
	out := make([]*task, n)
	for i := range out {
		out[i] = &task{name: "t"}
	}
	return out
}

func TestLocalQueue_FIFO(t *testing.T) {
	var q localQueue
	tasks := makeTasks(10)
	for _, tk := range tasks {
		require.Nil(t, q.push(tk))
	}
	assert.Equal(t, 10, q.len())
	for _, want := range tasks {
		assert.Same(t, want, q.pop())
	}
	assert.Nil(t, q.pop())
	assert.Zero(t, q.len())
}

func TestLocalQueue_Overflow(t *testing.T) {
	var q localQueue
	tasks := makeTasks(localQueueSize + 1)
	for _, tk := range tasks[:localQueueSize] {
		require.Nil(t, q.push(tk))
	}
	overflow := q.push(tasks[localQueueSize])
	require.Len(t, overflow, stealBatch+1)
	// the oldest half leaves, followed by the pushed task
	for i := range stealBatch {
		assert.Same(t, tasks[i], overflow[i])
	}
	assert.Same(t, tasks[localQueueSize], overflow[stealBatch])
	assert.Equal(t, localQueueSize-stealBatch, q.len())
	assert.Same(t, tasks[stealBatch], q.pop())
}

func TestLocalQueue_StealHalf(t *testing.T) {
	var q localQueue
	tasks := makeTasks(7)
	for _, tk := range tasks {
		q.push(tk)
	}
	dst := make([]*task, stealBatch)
	n := q.steal(dst)
	assert.Equal(t, 4, n)
	for i := range n {
		assert.Same(t, tasks[i], dst[i])
	}
	assert.Equal(t, 3, q.len())

	var empty localQueue
	assert.Zero(t, empty.steal(dst))
}

// Concurrent pops and steals must hand out every task exactly once.
func TestLocalQueue_StealNeverLosesOrDuplicates(t *testing.T) {
	const total = 20000
	var q localQueue
	tasks := makeTasks(total)
	seen := make(map[*task]int, total)
	var mu sync.Mutex
	record := func(ts ...*task) {
		mu.Lock()
		for _, tk := range ts {
			seen[tk]++
		}
		mu.Unlock()
	}

	inj := newInjector()
	stop := make(chan struct{})
	var g errgroup.Group
	for range 3 {
		g.Go(func() error {
			dst := make([]*task, stealBatch)
			for {
				if n := q.steal(dst); n > 0 {
					record(dst[:n]...)
					continue
				}
				select {
				case <-stop:
					if q.len() == 0 {
						return nil
					}
				default:
				}
			}
		})
	}
	for i, tk := range tasks {
		if overflow := q.push(tk); overflow != nil {
			inj.pushBatch(overflow)
		}
		if i%3 == 0 {
			if got := q.pop(); got != nil {
				record(got)
			}
		}
	}
	close(stop)
	require.NoError(t, g.Wait())
	for tk := inj.pop(); tk != nil; tk = inj.pop() {
		record(tk)
	}
	record(q.drain()...)

	require.Len(t, seen, total)
	for _, tk := range tasks {
		require.Equal(t, 1, seen[tk])
	}
}

func TestInjector(t *testing.T) {
	inj := newInjector()
	assert.Nil(t, inj.pop())
	tasks := makeTasks(5)
	inj.push(tasks[0])
	inj.pushBatch(tasks[1:])
	inj.pushBatch(nil)
	assert.Equal(t, 5, inj.len())

	dst := make([]*task, 3)
	require.Equal(t, 3, inj.popBatch(dst))
	assert.Equal(t, tasks[:3], dst)
	assert.Same(t, tasks[3], inj.pop())
	assert.Same(t, tasks[4], inj.pop())
	assert.Zero(t, inj.popBatch(dst))
	assert.Zero(t, inj.len())
}

func TestTaskQueue_AcrossChunks(t *testing.T) {
	var q taskQueue
	tasks := makeTasks(3*taskChunkSize + 5)
	for _, tk := range tasks[:taskChunkSize+1] {
		q.push(tk)
	}
	for _, want := range tasks[:taskChunkSize/2] {
		require.Same(t, want, q.pop())
	}
	for _, tk := range tasks[taskChunkSize+1:] {
		q.push(tk)
	}
	assert.Equal(t, len(tasks)-taskChunkSize/2, q.len())
	for _, want := range tasks[taskChunkSize/2:] {
		require.Same(t, want, q.pop())
	}
	assert.Nil(t, q.pop())
	assert.Zero(t, q.len())

	// the rewound tail chunk is reused
	q.push(tasks[0])
	assert.Same(t, tasks[0], q.pop())
}

func TestTaskTable_StaleIDs(t *testing.T) {
	tt := newTaskTable()
	a := &task{}
	require.True(t, tt.insert(a))
	first := a.id
	assert.Equal(t, uint32(1), first.generation())
	assert.Same(t, a, tt.get(first))

	assert.Zero(t, tt.remove(first))
	assert.Nil(t, tt.get(first))
	assert.Zero(t, tt.remove(first), "removing twice is a no-op")

	b := &task{}
	require.True(t, tt.insert(b))
	assert.Equal(t, first.slot(), b.id.slot(), "the slot is reused")
	assert.Equal(t, uint32(2), b.id.generation())
	assert.Nil(t, tt.get(first))
	assert.Same(t, b, tt.get(b.id))
	assert.Nil(t, tt.get(newTaskID(1, 99)))

	// a waker minted for the old occupant does nothing
	tt.wakeByID(first)
}

func TestTaskTable_Close(t *testing.T) {
	tt := newTaskTable()
	tasks := makeTasks(3)
	for _, tk := range tasks {
		require.True(t, tt.insert(tk))
	}
	tt.remove(tasks[1].id)
	assert.Equal(t, 2, tt.len())
	live := tt.close()
	assert.ElementsMatch(t, []*task{tasks[0], tasks[2]}, live)
	assert.False(t, tt.insert(&task{}))
}
