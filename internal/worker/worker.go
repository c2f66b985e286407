// Package worker implements the OS-thread-pinned worker loop: the idle
// phase (blocking on a per-worker semaphore) and the scheduling phase,
// plus the preemption signal handler that hands control back to a
// worker's scheduler coroutine mid-flight.
//
// A worker's scheduler coroutine is itself a coroutine, created through
// the same coroutine package machinery user coroutines go through: its
// entry is runSchedulerLoop, and the worker pointer is smuggled in as its
// single 8-byte argument. Re-entering it - whether from the normal idle
// -> scheduling transition or from the signal handler - is a single
// arch.Restore call onto its frame, which always resumes at the top of
// runSchedulerLoop; all state that must survive a re-entry (Current, the
// local run queue) lives on *Worker, not on the coroutine's stack.
package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sync/semaphore"

	"github.com/krolikladoshka/loom/coroutine"
	"github.com/krolikladoshka/loom/internal/arch"
	"github.com/krolikladoshka/loom/internal/sched"
)

func init() {
	coroutine.ExitHook = exitHook
}

// Worker is one OS thread running loom coroutines: a scheduler, a
// scheduler coroutine, an idle semaphore, a queue mutex guarding the
// local queue, and the bookkeeping the monitor needs to detect a stuck
// quantum.
type Worker struct {
	ID int

	sched   sched.Scheduler
	queueMu sync.Mutex

	schedulerCoroutine *coroutine.Coroutine

	idleSem     *semaphore.Weighted
	wakePending atomic.Bool

	state          atomic.Uint32
	tid            atomic.Int32
	timeSliceStart atomic.Int64

	altStack []byte
}

// New creates a worker and its scheduler coroutine. The worker does not
// start running until Run is called on a goroutine pinned to its own OS
// thread (runtime.LockOSThread).
func New(id int) (*Worker, error) {
	w := &Worker{ID: id}
	w.state.Store(uint32(StateCreated))

	sem := semaphore.NewWeighted(1)
	// Drain the initial permit so the first Acquire in the idle phase
	// blocks until the monitor explicitly wakes this worker.
	_ = sem.Acquire(context.Background(), 1)
	w.idleSem = sem

	var argBlob [8]byte
	ptr := uint64(uintptr(unsafe.Pointer(w)))
	for i := 0; i < 8; i++ {
		argBlob[i] = byte(ptr >> (8 * i))
	}

	sc, err := coroutine.Create("scheduler", schedulerEntry, []int{8}, argBlob[:])
	if err != nil {
		return nil, err
	}
	w.schedulerCoroutine = sc

	return w, nil
}

// State reports the worker's current phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Tid returns the Linux thread id this worker is pinned to, or 0 before
// Run has installed it.
func (w *Worker) Tid() int32 {
	return w.tid.Load()
}

// QuantumStart reports when the currently running coroutine's time
// slice began. Only meaningful while State() == StateRunning.
func (w *Worker) QuantumStart() time.Time {
	return time.Unix(0, w.timeSliceStart.Load())
}

// EnqueueLocal appends c to the worker's local run queue and marks it
// Runnable. The monitor calls this to hand off work drained from the
// global queue.
func (w *Worker) EnqueueLocal(c *coroutine.Coroutine) {
	c.SetOwner(unsafe.Pointer(w))
	c.SetState(coroutine.Runnable)

	w.queueMu.Lock()
	w.sched.Local.Append(c)
	w.queueMu.Unlock()
}

// LocalLen reports the number of coroutines currently queued on this
// worker, for Stats() and tests.
func (w *Worker) LocalLen() int {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	return w.sched.Local.Len()
}

// WakeIdle posts the idle semaphore, waking the worker if it is
// currently blocked in the idle phase. A spurious post when the worker
// isn't idle is harmless: the next idle phase simply doesn't block.
// wakePending collapses repeated posts between one Acquire and the
// next into a single permit, since *semaphore.Weighted panics if
// Released past its configured capacity.
func (w *Worker) WakeIdle() {
	if w.wakePending.CompareAndSwap(false, true) {
		w.idleSem.Release(1)
	}
}

// Preempt sends the preemption signal to this worker's OS thread. The
// caller (the monitor) is responsible for only calling this on a worker
// observed to be Running past its quantum - the signal must never be
// delivered to an Idle or Scheduling worker.
func (w *Worker) Preempt() error {
	return sendPreempt(w.Tid())
}

// Run pins the calling goroutine to its own OS thread, installs the
// alternate signal stack and thread-local worker registration the
// preemption handler depends on, and hands control to the scheduler
// coroutine. It never returns.
func (w *Worker) Run() {
	runtime.LockOSThread()

	tid, err := installAltStack(w)
	if err != nil {
		panic(err)
	}
	w.tid.Store(tid)
	registerWorker(w)

	w.state.Store(uint32(StateScheduling))
	arch.Restore(&w.schedulerCoroutine.Frame)
	panic("worker: scheduler coroutine frame returned")
}

// schedulerEntry unpacks the worker pointer this scheduler coroutine was
// created with and runs its loop. It conforms to coroutine.Entry purely
// so the scheduler coroutine can be created with the same Create/Restore
// machinery as every other coroutine.
func schedulerEntry(args [coroutine.MaxArgs]uint64) uintptr {
	w := (*Worker)(unsafe.Pointer(uintptr(args[0])))
	runSchedulerLoop(w)
	return 0
}

// runSchedulerLoop is the scheduling phase, looped: demote a
// still-Running Current (left over from a preemption), pick the next
// runnable coroutine, and either dispatch into it (never returning from
// this call) or go idle and wait to be woken. Re-entry after a
// preemption restarts this function from the top; correctness does not
// depend on any local variable surviving that restart.
func runSchedulerLoop(w *Worker) {
	for {
		w.state.Store(uint32(StateScheduling))
		_ = MaskPreempt()

		w.queueMu.Lock()
		// A Current still marked Running here was preempted without the
		// signal handler finishing its demotion (it normally re-queues
		// the coroutine itself); demote it to the tail now. Current is
		// detached from the queue while Running, so sending it to the
		// back is an append, not a rotate.
		if cur := w.sched.Current; cur != nil && cur.State() == coroutine.Running {
			cur.SetState(coroutine.Runnable)
			w.sched.Local.Append(cur)
		}
		w.sched.Current = nil

		next := sched.PickNext(&w.sched)
		if next == nil {
			w.state.Store(uint32(StateIdle))
			w.queueMu.Unlock()
			_ = w.idleSem.Acquire(context.Background(), 1)
			w.wakePending.Store(false)
			continue
		}

		next.SetState(coroutine.Running)
		w.state.Store(uint32(StateRunning))
		w.timeSliceStart.Store(time.Now().UnixNano())
		w.queueMu.Unlock()

		_ = UnmaskPreempt()
		arch.Restore(&next.Frame)
		panic("worker: dispatched coroutine frame returned")
	}
}

// exitHook is installed as coroutine.ExitHook during package init. It
// runs on the exiting coroutine's own stack, immediately before control
// must leave it for good. It must not destroy the coroutine here - that
// would munmap the very stack this call is executing on - so it hands
// the Done coroutine back to the local queue instead, where the
// scheduler's next PickNext scan reclaims it from its own stack: the
// last queue to hold a Done coroutine frees it.
func exitHook(c *coroutine.Coroutine) {
	w := (*Worker)(c.Owner())
	if w == nil {
		panic("worker: exitHook: coroutine has no owning worker")
	}

	// Mask preemption before touching the queue: the signal is still
	// unmasked from the dispatch into this coroutine, and a preemption
	// landing while queueMu is held would self-deadlock in the handler.
	_ = MaskPreempt()
	w.state.Store(uint32(StateScheduling))

	w.queueMu.Lock()
	if w.sched.Current == c {
		w.sched.Current = nil
	}
	w.sched.Local.Append(c)
	w.queueMu.Unlock()

	arch.Restore(&w.schedulerCoroutine.Frame)
	panic("worker: exitHook: scheduler coroutine frame returned")
}
