package loom

import "github.com/krolikladoshka/loom/coroutine"

// Handle is the opaque token Submit returns. It is not reference
// counted: it is valid only until the coroutine it
// names reaches Done, after which the coroutine may already have been
// destroyed and Handle's accessors report a stale snapshot from the
// instant Done was set.
type Handle struct {
	c *coroutine.Coroutine
}

// Location returns the diagnostic location string Submit was called
// with.
func (h *Handle) Location() string {
	return h.c.Location
}

// Done reports whether the coroutine has finished running. This is
// state inspection only - not a wait/join primitive, since none exists
// in this runtime.
func (h *Handle) Done() bool {
	return h.c.State() == coroutine.Done
}

// State returns the coroutine's current state as a diagnostic string.
func (h *Handle) State() string {
	return h.c.State().String()
}
