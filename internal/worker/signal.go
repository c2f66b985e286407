package worker

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/krolikladoshka/loom/coroutine"
	"github.com/krolikladoshka/loom/internal/arch"
)

// PreemptSignal is the signal the monitor sends to a worker running past
// its quantum. SIGURG was chosen, as the real Go runtime chose it for
// async preemption, because user code essentially never installs its own
// SIGURG handler: it has no conventional POSIX meaning to collide with.
//
// The Go runtime itself is the one prior claimant: since Go 1.14 it
// keeps its own SIGURG handler installed for asynchronous goroutine
// preemption. Overwriting that disposition outright would disable
// async preemption for every goroutine in the process, so the install
// records the previous sigaction and the handler forwards to it
// whenever a delivery turns out not to be a loom preemption (wrong
// thread, worker not Running). A delivery that does preempt a
// coroutine is consumed; the runtime re-sends its preemption requests,
// so a swallowed one only delays, never loses, a Go-level preemption.
const PreemptSignal = unix.SIGURG

// Raw sigaction flags from the kernel's asm-generic/signal.h. x/sys/unix
// wraps sigprocmask/tgkill but, like SA_RESTORER (see saRestorerFlag in
// sig_GOARCH.go), does not export the SA_* flag bits themselves, so
// installSigaction needs its own copy of the ABI values it must pass to
// the raw rt_sigaction syscall.
const (
	saSiginfo = 0x00000004
	saOnstack = 0x08000000
	saRestart = 0x10000000
)

var (
	registryMu sync.RWMutex
	registry   = map[int32]*Worker{}

	installOnce sync.Once
	installErr  error

	// prevAction is the sigaction SIGURG had before loom replaced it -
	// normally the Go runtime's own async-preemption handler. Written
	// once, under installOnce; read by forwardToPrev.
	prevAction sigactiont
)

// registerWorker makes w findable from the preemption signal handler by
// the Linux thread id it is pinned to. Go exposes no portable
// per-OS-thread storage a signal handler could read, so the handler
// looks itself up by unix.Gettid() instead.
func registerWorker(w *Worker) {
	registryMu.Lock()
	registry[w.Tid()] = w
	registryMu.Unlock()
}

func lookupWorker(tid int32) *Worker {
	registryMu.RLock()
	w := registry[tid]
	registryMu.RUnlock()
	return w
}

// sigactiont mirrors the kernel's struct sigaction on 64-bit Linux:
// handler, flags, restorer, then the blocked-signal mask. x/sys/unix
// wraps sigprocmask and tgkill but not rt_sigaction itself, so the
// install goes through the raw syscall, the same way the Go runtime's
// own setsig/sysSigaction does.
type sigactiont struct {
	handler  uintptr
	flags    uint64
	restorer uintptr
	mask     uint64
}

// stackt mirrors the kernel's stack_t for the sigaltstack syscall.
type stackt struct {
	sp    uintptr
	flags int32
	_     [4]byte
	size  uintptr
}

const altStackSize = 32 * 1024

// installAltStack allocates this OS thread's alternate signal stack
// (SA_ONSTACK requires one distinct from the coroutine stacks loom
// itself manages) and installs the process-wide preemption handler the
// first time any worker calls it. Returns the calling thread's tid.
func installAltStack(w *Worker) (int32, error) {
	installOnce.Do(func() {
		installErr = installSigaction()
	})
	if installErr != nil {
		return 0, installErr
	}

	w.altStack = make([]byte, altStackSize)
	ss := stackt{
		sp:   uintptr(unsafe.Pointer(&w.altStack[0])),
		size: uintptr(len(w.altStack)),
	}
	if _, _, errno := unix.Syscall(unix.SYS_SIGALTSTACK,
		uintptr(unsafe.Pointer(&ss)), 0, 0); errno != 0 {
		return 0, fmt.Errorf("worker: sigaltstack: %w", errno)
	}

	return int32(unix.Gettid()), nil
}

// installSigaction installs the preemption handler with SA_SIGINFO and
// SA_ONSTACK. The handler address is preemptTrampoline, an assembly stub
// that adapts the kernel's (sig, info, ctx) calling convention into a
// plain Go call, the same pattern coroutine's exit trampoline uses to
// cross from a raw register-level entry point into Go. On amd64 the
// kernel additionally demands SA_RESTORER with a userspace rt_sigreturn
// stub; sigRestorer supplies it (and is zero on arm64, where the vdso
// provides the return path).
func installSigaction() error {
	sa := sigactiont{
		handler:  reflect.ValueOf(preemptTrampoline).Pointer(),
		flags:    uint64(saSiginfo|saOnstack|saRestart) | saRestorerFlag,
		restorer: sigRestorer(),
	}

	// The kernel's sigset is 8 bytes; rt_sigaction refuses any other
	// size. The displaced disposition lands in prevAction so the
	// handler can chain to it.
	if _, _, errno := unix.Syscall6(unix.SYS_RT_SIGACTION,
		uintptr(PreemptSignal), uintptr(unsafe.Pointer(&sa)),
		uintptr(unsafe.Pointer(&prevAction)), 8, 0, 0); errno != 0 {
		return fmt.Errorf("worker: rt_sigaction(%v): %w", PreemptSignal, errno)
	}
	return nil
}

// Kernel dispositions that are constants rather than handler addresses.
const (
	sigDFL = 0
	sigIGN = 1
)

// forwardToPrev chains a SIGURG that was not a loom preemption to the
// handler that owned the signal before Init - normally the Go runtime's
// async-preemption handler, which must keep seeing its own deliveries
// or goroutine preemption stalls process-wide.
func forwardToPrev(sig int32, info, ctx unsafe.Pointer) {
	h := prevAction.handler
	if h == sigDFL || h == sigIGN {
		return
	}
	rawSigForward(h, sig, info, ctx)
}

// rawSigForward invokes a C-ABI three-argument signal handler. It is
// implemented in preempt_trampoline_GOARCH.s, mirroring the Go
// runtime's own sigfwd.
func rawSigForward(fn uintptr, sig int32, info, ctx unsafe.Pointer)

// sigsetWith builds a signal set containing exactly sig, for the
// PthreadSigmask calls MaskPreempt/UnmaskPreempt make.
func sigsetWith(sig unix.Signal) unix.Sigset_t {
	var set unix.Sigset_t
	set.Val[0] = 1 << (uint(sig) - 1)
	return set
}

// MaskPreempt blocks PreemptSignal on the calling OS thread. loom.Submit
// calls this before touching the global queue so a preemption signal
// can't interrupt the enqueue itself.
func MaskPreempt() error {
	set := sigsetWith(PreemptSignal)
	return unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil)
}

// UnmaskPreempt reverses MaskPreempt.
func UnmaskPreempt() error {
	set := sigsetWith(PreemptSignal)
	return unix.PthreadSigmask(unix.SIG_UNBLOCK, &set, nil)
}

// sendPreempt delivers PreemptSignal to a specific thread within this
// process, as the monitor does to reclaim a worker past its quantum.
func sendPreempt(tid int32) error {
	if tid == 0 {
		return nil
	}
	return unix.Tgkill(unix.Getpid(), int(tid), PreemptSignal)
}

// preemptTrampoline is implemented in assembly: it is the raw signal
// entry point installed with sigaction, and it calls preemptionHandler
// with the kernel-delivered arguments reshaped for Go.
func preemptTrampoline()

// preemptionHandler is the preemption path: identify the
// interrupted worker, capture its registers out of the signal context
// into the coroutine it was running, demote that coroutine back to
// Runnable at the tail of the local queue, and re-enter the scheduler
// coroutine. It never returns to its caller on the preemption path (the
// kernel never resumes the interrupted frame directly; restore does).
// It only returns, resuming the interrupted code via sigreturn, when a
// benign race means there is nothing to preempt.
func preemptionHandler(sig int32, info unsafe.Pointer, ctxt unsafe.Pointer) {
	w := lookupWorker(int32(unix.Gettid()))
	if w == nil {
		// A signal on a thread this package never registered is the Go
		// runtime preempting one of its own goroutines; hand it over.
		forwardToPrev(sig, info, ctxt)
		return
	}
	if w.State() != StateRunning {
		// The monitor only signals a Running worker, but a benign race
		// (the worker just finished its quantum on its own) means there
		// may be nothing to preempt - or the delivery was the Go
		// runtime's, not the monitor's. Chain either way.
		forwardToPrev(sig, info, ctxt)
		return
	}

	w.queueMu.Lock()
	cur := w.sched.Current
	w.queueMu.Unlock()
	if cur == nil {
		forwardToPrev(sig, info, ctxt)
		return
	}

	w.state.Store(uint32(StateScheduling))

	arch.CaptureFromSignal(ctxt, &cur.Frame)
	cur.SetState(coroutine.Runnable)

	// Current is detached from the queue while Running, so demoting it
	// is an append: the preempted coroutine goes to the tail, behind
	// everything that waited out its quantum.
	w.queueMu.Lock()
	w.sched.Local.Append(cur)
	w.sched.Current = nil
	w.queueMu.Unlock()

	arch.Restore(&w.schedulerCoroutine.Frame)
	panic("worker: preemptionHandler: scheduler coroutine frame returned")
}
