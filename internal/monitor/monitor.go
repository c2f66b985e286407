// Package monitor implements the single dedicated goroutine that ties
// the rest of loom together: draining the global queue onto workers
// round-robin, waking idle workers, and preempting workers that have
// held a coroutine past its quantum.
package monitor

import (
	"sync"
	"time"

	"github.com/krolikladoshka/loom/coroutine"
	"github.com/krolikladoshka/loom/internal/runq"
	"github.com/krolikladoshka/loom/internal/worker"
)

// Tick is how often the monitor runs its maintenance pass: frequent
// enough that a just-submitted coroutine doesn't sit in the global
// queue for long, but far enough above OS scheduling noise not to spin.
const Tick = 500 * time.Microsecond

// Quantum is the longest a coroutine may hold a worker before the
// monitor sends it the preemption signal.
const Quantum = 20 * time.Millisecond

// Monitor owns the global run queue and the round-robin cursor into the
// worker set. There is exactly one per Runtime.
type Monitor struct {
	mu      sync.Mutex
	global  runq.Queue
	workers []*worker.Worker
	cursor  int

	stop chan struct{}
	done chan struct{}
}

// New creates a monitor over the given worker set. Workers must already
// exist (their scheduler coroutines created) but need not have started
// their Run loop yet.
func New(workers []*worker.Worker) *Monitor {
	return &Monitor{
		workers: workers,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Submit appends c to the global queue under the monitor's lock. c must
// already be in the Runnable state; the caller (loom.Submit) owns the
// Created -> Runnable transition.
func (m *Monitor) Submit(c *coroutine.Coroutine) {
	m.mu.Lock()
	m.global.Append(c)
	m.mu.Unlock()
}

// GlobalLen reports the number of coroutines currently waiting in the
// global queue, for Stats().
func (m *Monitor) GlobalLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global.Len()
}

// Start runs the monitor's tick loop on the calling goroutine's own
// goroutine (the caller should `go m.Start()`). Stop ends the loop.
func (m *Monitor) Start() {
	defer close(m.done)
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// Stop ends the monitor's tick loop and waits for the current tick, if
// any, to finish.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

// tick is one maintenance pass: drain the global queue round-robin,
// wake idle workers holding new work, and preempt workers running past
// their quantum.
func (m *Monitor) tick() {
	m.drainGlobal()

	// Per-worker maintenance: workers with an empty local queue are
	// skipped entirely - an idle one has nothing to wake for, and
	// preempting a running one would only hand the CPU back to the same
	// coroutine.
	now := time.Now()
	for _, w := range m.workers {
		if w.LocalLen() == 0 {
			continue
		}
		switch w.State() {
		case worker.StateIdle:
			w.WakeIdle()
		case worker.StateRunning:
			if now.Sub(w.QuantumStart()) >= Quantum {
				_ = w.Preempt()
			}
		}
	}
}

// drainGlobal pops every coroutine currently in the global queue and
// hands the Runnable ones to workers round-robin, waking each worker as
// it receives work. Done coroutines are destroyed here, a Created one is
// an invariant violation, and anything mid-flight (Running, Syscall,
// Waiting) goes back to the global tail for the next tick.
func (m *Monitor) drainGlobal() {
	if len(m.workers) == 0 {
		return
	}

	m.mu.Lock()
	n := m.global.Len()
	batch := make([]*coroutine.Coroutine, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, m.global.PopFront())
	}
	m.mu.Unlock()

	for _, c := range batch {
		switch c.State() {
		case coroutine.Runnable:
			w := m.workers[m.cursor]
			m.cursor = (m.cursor + 1) % len(m.workers)
			w.EnqueueLocal(c)
			w.WakeIdle()
		case coroutine.Done:
			_ = c.Destroy()
		case coroutine.Created:
			// Submit owns the Created -> Runnable transition, atomically
			// with the enqueue; a Created coroutine on the global queue
			// means that contract broke.
			panic("monitor: Created coroutine observed on the global queue")
		default:
			// Running/Syscall/Waiting: rotate - put it back at the
			// global tail and look again next tick.
			m.mu.Lock()
			m.global.Append(c)
			m.mu.Unlock()
		}
	}
}
