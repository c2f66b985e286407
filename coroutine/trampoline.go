package coroutine

import "reflect"

// coroutineTrampoline is implemented in trampoline_GOARCH.s. It takes the
// coroutine pointer Create placed in Frame.R[0] (restored into a real
// register by arch.Restore) and turns it into a properly framed call to
// runEntry, so a returning user entry function lands back in Go code
// instead of running off the end of its stack into whatever bytes lie
// below it.
func coroutineTrampoline()

func trampolinePC() uint64 {
	return uint64(reflect.ValueOf(coroutineTrampoline).Pointer())
}
