package worker

import (
	"testing"

	"github.com/krolikladoshka/loom/coroutine"
)

func dummy(t *testing.T) *coroutine.Coroutine {
	t.Helper()
	c, err := coroutine.Create("test", func(a [coroutine.MaxArgs]uint64) uintptr { return 0 }, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func TestNewCreatesSchedulerCoroutine(t *testing.T) {
	w, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.schedulerCoroutine == nil {
		t.Fatalf("New did not create a scheduler coroutine")
	}
	if w.State() != StateCreated {
		t.Fatalf("State() = %v, want StateCreated", w.State())
	}
}

func TestEnqueueLocalSetsOwnerAndRunnable(t *testing.T) {
	w, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := dummy(t)
	defer c.Destroy()

	w.EnqueueLocal(c)

	if c.State() != coroutine.Runnable {
		t.Fatalf("EnqueueLocal did not mark Runnable, got %v", c.State())
	}
	if (*Worker)(c.Owner()) != w {
		t.Fatalf("EnqueueLocal did not set owner to w")
	}
	if w.sched.Local.Len() != 1 {
		t.Fatalf("EnqueueLocal did not append to local queue")
	}
}

func TestWakeIdleDoesNotBlockOrPanic(t *testing.T) {
	w, err := New(3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Must not block or panic even though nobody is waiting yet: a
	// semaphore post with no waiter just leaves a permit available.
	w.WakeIdle()
}

func TestPreemptOnUnstartedWorkerIsNoop(t *testing.T) {
	w, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Tid is 0 until Run installs it; Preempt must not try to signal
	// thread 0.
	if err := w.Preempt(); err != nil {
		t.Fatalf("Preempt on unstarted worker: %v", err)
	}
}
