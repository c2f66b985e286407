//go:build amd64 && linux

package arch

import "unsafe"

// sigcontext64 mirrors the kernel's struct sigcontext on amd64 Linux,
// which is what ucontext64.Mcontext actually holds in memory (the libc
// name mcontext_t and the kernel name sigcontext describe the same
// bytes). Field order and widths are load-bearing: this struct is never
// constructed by loom, only overlaid onto memory the kernel wrote.
type sigcontext64 struct {
	R8      uint64
	R9      uint64
	R10     uint64
	R11     uint64
	R12     uint64
	R13     uint64
	R14     uint64
	R15     uint64
	Rdi     uint64
	Rsi     uint64
	Rbp     uint64
	Rbx     uint64
	Rdx     uint64
	Rax     uint64
	Rcx     uint64
	Rsp     uint64
	Rip     uint64
	Eflags  uint64
	Cs      uint16
	Gs      uint16
	Fs      uint16
	Ss      uint16
	Err     uint64
	Trapno  uint64
	Oldmask uint64
	Cr2     uint64
	// Fpstate and the reserved trailer are unused here: loom never
	// touches FPU/vector state across a preemption, only the integer
	// registers the calling convention actually moves arguments in.
	Fpstate  uint64
	Reserved [8]uint64
}

type sigaltstackT struct {
	SS   uint64
	Flags int32
	_     [4]byte
	Size  uint64
}

type ucontext64 struct {
	Flags    uint64
	Link     uint64
	Stack    sigaltstackT
	Mcontext sigcontext64
	Sigmask  uint64
}

// sigctxt wraps the raw, kernel-owned memory a signal handler receives as
// its third argument so the handful of fields loom actually needs can be
// read and written without re-deriving offsets at every call site.
type sigctxt struct {
	uc *ucontext64
}

func newSigctxt(ctx unsafe.Pointer) sigctxt {
	return sigctxt{uc: (*ucontext64)(ctx)}
}

// CaptureFromSignal copies the integer registers, SP and PC out of the
// OS-delivered signal context into frame. This is the only save point in
// loom: the preemption signal handler calls it once, on the thread that
// was actually interrupted, using registers the kernel already captured
// for us.
func CaptureFromSignal(ctx unsafe.Pointer, frame *Frame) {
	c := newSigctxt(ctx)
	m := &c.uc.Mcontext

	frame.R[0] = m.Rax
	frame.R[1] = m.Rbx
	frame.R[2] = m.Rcx
	frame.R[3] = m.Rdx
	frame.R[4] = m.Rsi
	frame.R[5] = m.Rdi
	frame.R[6] = m.R8
	frame.R[7] = m.R9
	frame.R[8] = m.R10
	frame.R[9] = m.R11
	frame.R[10] = m.R12
	frame.R[11] = m.R13
	frame.R[12] = m.Rbp
	frame.R[13] = m.R14
	frame.R[14] = m.R15
	frame.SP = m.Rsp
	frame.PC = m.Rip
}
