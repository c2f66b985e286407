package loom

import (
	"runtime"
	"runtime/debug"
	"time"

	"github.com/krolikladoshka/loom/coroutine"
	"github.com/krolikladoshka/loom/internal/monitor"
	"github.com/krolikladoshka/loom/internal/worker"
)

// Runtime is the process-wide submission point: a global run queue, a
// fixed-size worker pool, and the monitor thread that drives them.
// Init returns an explicit handle and every other call goes through
// it; nothing in this package hides in a mutable package-level global.
type Runtime struct {
	workers []*worker.Worker
	monitor *monitor.Monitor

	// prevGCPercent is the collector target Init displaced; Shutdown
	// restores it. See the comment in Init.
	prevGCPercent int
}

// Init allocates a Runtime, starts its worker pool and its monitor
// thread, and returns once every worker has installed its preemption
// handler and alternate signal stack. It must be called before Submit
// or Shutdown on the returned Runtime. Init may be called more than
// once: each call produces an independent Runtime with its own worker
// pool and monitor.
func Init(cfg Config) *Runtime {
	n := cfg.workers()

	rt := &Runtime{workers: make([]*worker.Worker, n)}

	// Suspend garbage collection for the Runtime's lifetime. A worker
	// goroutine executing a dispatched coroutine runs on a raw mmap'd
	// region the Go runtime knows nothing about: a precise GC stack
	// scan of that goroutine would walk its original, now-stale Go
	// stack, miss every pointer live only in the coroutine's locals,
	// and can trip over the mismatched stack bounds mid-scan. With
	// collection off, no stack scans happen; the coroutine records
	// themselves (entries, packed args, stacks) stay reachable through
	// the Runtime's queues regardless. Embedders must not force a cycle
	// (runtime.GC, debug.SetGCPercent) while a Runtime is live.
	rt.prevGCPercent = debug.SetGCPercent(-1)

	for i := 0; i < n; i++ {
		w, err := worker.New(i)
		if err != nil {
			fail(AllocationFailure, err.Error())
		}
		rt.workers[i] = w

		go w.Run()
	}

	// Run never returns in normal operation; Init waits for every worker
	// to leave StateCreated instead, the signal that
	// installAltStack/registerWorker has completed and the worker is
	// ready to receive work or a preemption signal.
	for _, w := range rt.workers {
		for w.State() == worker.StateCreated {
			time.Sleep(50 * time.Microsecond)
		}
	}

	rt.monitor = monitor.New(rt.workers)
	go rt.monitor.Start()

	return rt
}

// Submit creates a coroutine and places it on the global queue.
// argSizes[i] must be one of {1, 2, 4, 8}; the returned error is the
// only one Submit can return to its caller - every other failure mode
// is a structural invariant violation and panics instead.
//
// location is a caller-supplied diagnostic string, typically the
// submitting file:line.
func (rt *Runtime) Submit(location string, entry coroutine.Entry, argSizes []int, argBlob []byte) (*Handle, error) {
	// Mask preemption on the calling thread for the whole create/enqueue
	// window: if the caller happens to be a coroutine
	// running on a worker, a preemption landing mid-enqueue would
	// otherwise re-enter the scheduler with the global lock held. The
	// goroutine is pinned for the window so the unmask lands on the same
	// OS thread the mask did.
	runtime.LockOSThread()
	_ = worker.MaskPreempt()
	defer func() {
		_ = worker.UnmaskPreempt()
		runtime.UnlockOSThread()
	}()

	c, err := coroutine.Create(location, entry, argSizes, argBlob)
	if err != nil {
		return nil, err
	}

	c.SetState(coroutine.Runnable)
	rt.monitor.Submit(c)

	return &Handle{c: c}, nil
}

// Stats is a point-in-time snapshot of queue occupancy and worker
// state - plain state inspection, not a metrics system.
type Stats struct {
	GlobalLen int
	Workers   []WorkerStats
}

// WorkerStats reports one worker's state and local queue length.
type WorkerStats struct {
	ID       int
	State    string
	LocalLen int
}

// Stats returns a snapshot of the global queue and every worker's local
// queue and state. It takes each queue's lock in turn, briefly, and
// never blocks waiting on a worker.
func (rt *Runtime) Stats() Stats {
	s := Stats{
		GlobalLen: rt.monitor.GlobalLen(),
		Workers:   make([]WorkerStats, len(rt.workers)),
	}
	for i, w := range rt.workers {
		s.Workers[i] = WorkerStats{
			ID:       w.ID,
			State:    w.State().String(),
			LocalLen: w.LocalLen(),
		}
	}
	return s
}

// ShutdownOption configures Shutdown's behavior beyond its default
// abandon-everything semantics.
type ShutdownOption func(*shutdownConfig)

type shutdownConfig struct {
	drainDeadline time.Duration
}

// WithDrainDeadline makes Shutdown wait up to d for every worker's local
// queue to empty and settle to StateIdle before returning, instead of
// abandoning in-flight coroutines immediately. It is still not a
// cooperative cancellation of a *running* coroutine - the runtime has
// no such mechanism - only a best-effort wait for
// already-queued work to drain on its own. If the deadline elapses
// first, Shutdown proceeds exactly as if this option were absent.
func WithDrainDeadline(d time.Duration) ShutdownOption {
	return func(c *shutdownConfig) { c.drainDeadline = d }
}

// Shutdown stops the monitor thread and abandons the worker threads in
// place: there is no safe way to force-kill a goroutine parked inside a
// signal-delivered, assembly-level context switch, so Shutdown stops
// feeding new work and simply stops waiting on them. Workers with an
// empty local queue settle into their idle phase, parked on a semaphore
// that is never posted again; any coroutine still queued anywhere is
// leaked - a known gap of the forced-teardown design. Shutdown does not
// write to stderr and does not panic on a clean runtime.
func (rt *Runtime) Shutdown(opts ...ShutdownOption) {
	var cfg shutdownConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Drain before stopping the monitor: the monitor is the only thing
	// that distributes global-queue work and wakes idle workers, so a
	// drain attempted after Stop could never make progress.
	if cfg.drainDeadline > 0 {
		deadline := time.Now().Add(cfg.drainDeadline)
		for time.Now().Before(deadline) {
			if rt.monitor.GlobalLen() == 0 && rt.idle() {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	rt.monitor.Stop()

	// Re-enabling collection is part of the same acknowledged gap as
	// the forced teardown itself: abandoned worker goroutines may still
	// be parked on coroutine stacks, and a later cycle that scans them
	// inherits the stale-stack hazard Init's comment describes.
	// Embedders that need a clean process should exit soon after
	// Shutdown rather than keep allocating in it.
	debug.SetGCPercent(rt.prevGCPercent)
}

func (rt *Runtime) idle() bool {
	for _, w := range rt.workers {
		if w.LocalLen() != 0 {
			return false
		}
		if s := w.State(); s != worker.StateIdle && s != worker.StateCreated {
			return false
		}
	}
	return true
}
