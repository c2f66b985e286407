//go:build arm64

package arch

// restore is implemented in restore_arm64.s. arm64 exposes 31
// general-purpose registers (X0-X30), matching RegistersCount exactly,
// so Frame maps onto the architecture with no slots to spare.
//
//go:noescape
func restore(frame *Frame)
