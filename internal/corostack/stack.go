// Package corostack allocates the byte regions coroutines run on.
package corostack

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultSize is the fixed size of every coroutine stack.
const DefaultSize = 16 * 1024

// guardSize is mapped PROT_NONE immediately below every stack so a
// stack-overflowing coroutine faults at the boundary instead of
// corrupting whatever mapping happens to sit below it.
const guardSize = 4 * 1024

// Stack is an owned, contiguous byte region used as an alternate call
// stack. A Stack belongs to exactly one coroutine for its lifetime.
type Stack struct {
	region []byte // guard page + usable region, as mmap returned it
	usable []byte // the DefaultSize slice coroutines actually run on
}

// New mmaps a fresh stack with a leading guard page. The stack grows
// downward, so the high address of the usable region is what ends up in
// a register frame's initial stack pointer.
func New() (*Stack, error) {
	total := guardSize + DefaultSize

	region, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("corostack: mmap %d bytes: %w", total, err)
	}

	if err := unix.Mprotect(region[:guardSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("corostack: mprotect guard page: %w", err)
	}

	return &Stack{
		region: region,
		usable: region[guardSize:],
	}, nil
}

// High returns the initial stack-pointer value: the usable region's high
// address, aligned down to 16 bytes per the amd64/arm64 ABI requirement.
func (s *Stack) High() uintptr {
	high := uintptr(len(s.usable))
	base := uintptrOf(s.usable)
	top := base + high
	return top &^ 15
}

// Free releases the stack's backing memory, guard page included. The
// caller must guarantee no coroutine is executing on this stack.
func (s *Stack) Free() error {
	if s.region == nil {
		return nil
	}
	err := unix.Munmap(s.region)
	s.region = nil
	s.usable = nil
	return err
}
