// Package sched implements per-worker coroutine selection: a bounded
// front-of-queue scan that detaches the first runnable coroutine and
// reclaims finished ones along the way.
package sched

import (
	"github.com/krolikladoshka/loom/coroutine"
	"github.com/krolikladoshka/loom/internal/runq"
)

// Scheduler is the per-worker scheduling record: the coroutine
// currently running on this worker (if any) and the worker's local run
// queue. Current, when set, is not present in Local - it was detached
// from the queue's front for the duration of Running.
type Scheduler struct {
	Current *coroutine.Coroutine
	Local   runq.Queue
}

// PickNext scans the local queue from the front for at most Local.Len()
// positions and returns the first runnable coroutine, detaching it from
// the queue. Done coroutines are popped and destroyed in place; anything
// else (Running, Syscall, Waiting) is rotated to the back. PickNext
// returns nil if no runnable coroutine exists after a full scan; it never
// visits a queue element more than once per call.
func PickNext(s *Scheduler) *coroutine.Coroutine {
	scans := s.Local.Len()
	for i := 0; i < scans; i++ {
		front := s.Local.Front()
		if front == nil {
			return nil
		}

		switch front.State() {
		case coroutine.Runnable:
			s.Local.PopFront()
			s.Current = front
			return front
		case coroutine.Done:
			s.Local.PopFront()
			_ = front.Destroy()
		default: // Running, Syscall, Waiting
			s.Local.Rotate()
		}
	}
	return nil
}
