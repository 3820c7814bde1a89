package asyncrt

import (
	"sync"
)

// taskChunkSize is the number of tasks per taskQueue node.
const taskChunkSize = 128

// taskQueue is an unbounded FIFO of tasks, stored as a linked list of
// fixed-size chunks recycled through a pool.
//
// Not safe for concurrent use; callers hold their own lock.
type taskQueue struct {
	head   *taskChunk
	tail   *taskChunk
	length int
}

type taskChunk struct {
	tasks [taskChunkSize]*task
	next  *taskChunk
	// read is the next slot to pop; write is the next slot to fill
	read  int
	write int
}

var taskChunkPool = sync.Pool{
	New: func() any { return new(taskChunk) },
}

func getTaskChunk() *taskChunk {
	c := taskChunkPool.Get().(*taskChunk)
	c.read, c.write, c.next = 0, 0, nil
	return c
}

// putTaskChunk recycles an exhausted chunk. Popped slots are already nil.
func putTaskChunk(c *taskChunk) {
	c.next = nil
	taskChunkPool.Put(c)
}

func (q *taskQueue) push(t *task) {
	switch {
	case q.tail == nil:
		q.tail = getTaskChunk()
		q.head = q.tail
	case q.tail.write == taskChunkSize:
		c := getTaskChunk()
		q.tail.next = c
		q.tail = c
	}
	q.tail.tasks[q.tail.write] = t
	q.tail.write++
	q.length++
}

func (q *taskQueue) pop() *task {
	c := q.head
	if c == nil || c.read == c.write {
		return nil
	}
	t := c.tasks[c.read]
	c.tasks[c.read] = nil
	c.read++
	q.length--
	if c.read == c.write {
		if c == q.tail {
			// keep the last chunk, rewound
			c.read, c.write = 0, 0
		} else {
			q.head = c.next
			putTaskChunk(c)
		}
	}
	return t
}

func (q *taskQueue) len() int { return q.length }
