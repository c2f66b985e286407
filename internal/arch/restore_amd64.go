//go:build amd64

package arch

// restore is implemented in restore_amd64.s. It loads Frame.R into the
// order of general registers chosen by the assembly (see the file for the
// exact mapping), sets RSP from Frame.SP and jumps to Frame.PC. It is
// deliberately not inlined: the calling convention below hard-codes the
// offsets of SP and PC within Frame, and inlining would make those
// offsets depend on the call site.
//
//go:noescape
func restore(frame *Frame)
