//go:build amd64 && linux

package worker

import "reflect"

// saRestorerFlag is SA_RESTORER, which the amd64 kernel requires when a
// handler is installed through raw rt_sigaction: signal return must go
// through a userspace stub that issues rt_sigreturn.
const saRestorerFlag = 0x04000000

// sigreturnStub is the rt_sigreturn stub (preempt_trampoline_amd64.s).
func sigreturnStub()

func sigRestorer() uintptr {
	return reflect.ValueOf(sigreturnStub).Pointer()
}
