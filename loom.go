// Package loom implements an M:N user-space coroutine runtime with
// preemptive scheduling for a single POSIX process: an unbounded number
// of lightweight coroutines, each with its own stack, multiplexed over a
// fixed pool of OS worker threads and preempted by an asynchronously
// delivered signal rather than cooperative yield points.
//
// Init creates a Runtime; Submit schedules a coroutine on it; Shutdown
// tears it down. There is no I/O integration, no work stealing across
// workers, and no synchronization primitives between coroutines - see
// DESIGN.md for the full boundary.
//
// Two process-wide effects come with a live Runtime. Init suspends
// garbage collection (debug.SetGCPercent(-1)) because dispatched
// coroutines run on stacks the collector cannot scan; embedders must
// not force a cycle while a Runtime is live. Init also takes over the
// SIGURG disposition for its preemption signal, chaining deliveries
// that are not loom preemptions to the previously installed handler so
// the Go runtime's own async goroutine preemption keeps working.
package loom

import (
	"github.com/krolikladoshka/loom/internal/corostack"
	"github.com/krolikladoshka/loom/internal/monitor"
)

// DefaultStackSize is the fixed size of every coroutine's stack.
const DefaultStackSize = corostack.DefaultSize

// RegistersCount is the number of general-purpose registers saved in a
// coroutine's register frame.
const RegistersCount = 31

// Quantum is the longest a coroutine may hold a worker before the
// monitor preempts it.
const Quantum = monitor.Quantum

// MonitorTick is how often the monitor thread runs its maintenance pass.
const MonitorTick = monitor.Tick

// DefaultWorkers is the pool size used when a Config leaves Workers
// unset.
const DefaultWorkers = 1
