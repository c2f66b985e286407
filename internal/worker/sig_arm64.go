//go:build arm64 && linux

package worker

// arm64 has no SA_RESTORER convention: the kernel points the handler's
// return address at the vdso's own sigreturn trampoline.
const saRestorerFlag = 0

func sigRestorer() uintptr { return 0 }
