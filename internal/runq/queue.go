// Package runq implements the singly linked FIFO run queue used both as
// the global submission queue and as every worker's local queue.
package runq

import "github.com/krolikladoshka/loom/coroutine"

// Node is a queue element. Each node is exclusively owned by the queue
// that holds it; no node is ever shared between two queues.
type Node struct {
	Coroutine *coroutine.Coroutine
	next      *Node
}

// Queue is a singly linked FIFO with an O(1) rotate-to-back operation,
// the primitive round-robin selection is built on.
type Queue struct {
	front *Node
	back  *Node
	size  int
}

// Len reports the number of coroutines currently queued.
func (q *Queue) Len() int {
	return q.size
}

// Append adds c to the tail of the queue. O(1).
func (q *Queue) Append(c *coroutine.Coroutine) {
	n := &Node{Coroutine: c}
	if q.back == nil {
		q.front, q.back = n, n
	} else {
		q.back.next = n
		q.back = n
	}
	q.size++
}

// PopFront removes and returns the coroutine at the front of the queue,
// or nil if the queue is empty.
func (q *Queue) PopFront() *coroutine.Coroutine {
	if q.front == nil {
		return nil
	}
	n := q.front
	q.front = n.next
	if q.front == nil {
		q.back = nil
	}
	n.next = nil
	q.size--
	return n.Coroutine
}

// Front returns the coroutine at the front without removing it, or nil
// if the queue is empty.
func (q *Queue) Front() *coroutine.Coroutine {
	if q.front == nil {
		return nil
	}
	return q.front.Coroutine
}

// Rotate moves the current front to the tail. O(1). A no-op on an empty
// or single-element queue.
func (q *Queue) Rotate() {
	if q.front == nil || q.front == q.back {
		return
	}
	n := q.front
	q.front = n.next
	n.next = nil
	q.back.next = n
	q.back = n
}
