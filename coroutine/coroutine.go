// Package coroutine implements the coroutine abstraction: a stack, a
// register frame, a small state machine, and the typed entry a generated
// trampoline invokes. Only the trampoline touches raw registers; user
// code stays typed.
package coroutine

import (
	"sync/atomic"
	"unsafe"

	"github.com/krolikladoshka/loom/internal/arch"
	"github.com/krolikladoshka/loom/internal/corostack"
)

// Entry is a coroutine body. args holds up to MaxArgs zero-extended
// register-width words, packed from the caller's argument blob; the
// return value is likewise an opaque register-width word, matching the
// external fn(opaque) -> opaque contract.
type Entry func(args [MaxArgs]uint64) uintptr

// ExitHook is called once, by the generated trampoline, after a
// coroutine's entry function returns. It is set exactly once by
// internal/worker during package initialization; coroutine itself never
// calls arch.Restore directly, since it has no notion of "the owning
// worker's scheduler coroutine" - that indirection keeps this package
// free of an import cycle with internal/worker.
var ExitHook func(c *Coroutine)

// Coroutine is a stack, a register frame, an entry function, and an
// atomic state. The zero value is not valid; use Create.
type Coroutine struct {
	Location string
	Frame    arch.Frame

	entry  Entry
	args   [MaxArgs]uint64
	result uintptr

	stack *corostack.Stack

	state atomic.Uint32

	// owner is opaque to this package: internal/worker stashes whatever
	// it needs to find "my scheduler coroutine" back in ExitHook.
	owner unsafe.Pointer
}

// Create allocates a coroutine's stack and register frame and points its
// initial PC at the exit-trampoline entry point. It does not enqueue the
// coroutine anywhere - that transition to Runnable is Submit's job
// (loom.Submit), done atomically with the enqueue.
func Create(location string, entry Entry, argSizes []int, argBlob []byte) (*Coroutine, error) {
	args, err := packArgs(argSizes, argBlob)
	if err != nil {
		return nil, err
	}

	stack, err := corostack.New()
	if err != nil {
		// The runtime cannot recover from a failed stack allocation.
		panic(err)
	}

	c := &Coroutine{
		Location: location,
		entry:    entry,
		args:     args,
		stack:    stack,
	}
	c.state.Store(uint32(Created))

	c.Frame.SP = uint64(stack.High())
	c.Frame.PC = trampolinePC()
	// R[0] carries the coroutine pointer into the trampoline; see
	// trampoline_amd64.s / trampoline_arm64.s.
	c.Frame.R[0] = uint64(uintptr(unsafe.Pointer(c)))

	return c, nil
}

// State returns the coroutine's current state. Safe to call without
// holding any lock.
func (c *Coroutine) State() State {
	return State(c.state.Load())
}

// SetState stores a new state atomically.
func (c *Coroutine) SetState(s State) {
	c.state.Store(uint32(s))
}

// CompareAndSwapState atomically transitions the coroutine from old to
// new, reporting whether it applied. Used where two observers could
// otherwise race on the same transition (e.g. a worker demoting its
// current coroutine while the monitor's drain pass inspects it).
func (c *Coroutine) CompareAndSwapState(old, new State) bool {
	return c.state.CompareAndSwap(uint32(old), uint32(new))
}

// SetOwner stashes an opaque token internal/worker can use, from
// ExitHook, to find the coroutine's owning worker. Only internal/worker
// calls this.
func (c *Coroutine) SetOwner(p unsafe.Pointer) {
	c.owner = p
}

// Owner returns the token set by SetOwner, or nil if none was set.
func (c *Coroutine) Owner() unsafe.Pointer {
	return c.owner
}

// Result returns the entry function's return value. Only meaningful once
// State() == Done.
func (c *Coroutine) Result() uintptr {
	return c.result
}

// Destroy frees the coroutine's stack. The caller (the last queue to
// observe the coroutine Done) must guarantee the
// coroutine is not, and will never again be, scheduled.
func (c *Coroutine) Destroy() error {
	return c.stack.Free()
}

// runEntry is called by the assembly trampoline with the coroutine
// pointer it was created with. It runs on the coroutine's own stack.
// It never returns: ExitHook ends by restoring the owning worker's
// scheduler frame.
func runEntry(c *Coroutine) {
	c.result = c.entry(c.args)
	c.SetState(Done)

	if ExitHook == nil {
		panic("coroutine: runEntry: ExitHook not installed")
	}
	ExitHook(c)
	panic("coroutine: ExitHook returned")
}
