package coroutine

import "fmt"

// ErrUnsupportedArgSize is returned by Create when an argument field's
// width isn't one of {1, 2, 4, 8} bytes. It is the only error this
// package's public API returns to its caller; the one other failure
// Create can hit, a failed stack allocation, panics with the underlying
// error instead.
type ErrUnsupportedArgSize struct {
	Index int
	Size  int
}

func (e *ErrUnsupportedArgSize) Error() string {
	return fmt.Sprintf("coroutine: argument %d has unsupported size %d bytes (want 1, 2, 4 or 8)", e.Index, e.Size)
}
