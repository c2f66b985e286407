package sched

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

func TestPickNextReturnsRunnable(t *testing.T) {
	var s Scheduler
	c := dummy(t)
	defer c.Destroy()
	c.SetState(coroutine.Runnable)
	s.Local.Append(c)

	got := PickNext(&s)
	if got != c {
		t.Fatalf("PickNext did not return the runnable coroutine")
	}
	if s.Local.Len() != 0 {
		t.Fatalf("PickNext did not detach the coroutine from the queue")
	}
	if s.Current != c {
		t.Fatalf("PickNext did not set Current")
	}
}

func TestPickNextDestroysDoneAndSkipsRunning(t *testing.T) {
	var s Scheduler

	done := dummy(t)
	done.SetState(coroutine.Done)
	s.Local.Append(done)

	running := dummy(t)
	defer running.Destroy()
	running.SetState(coroutine.Running)
	s.Local.Append(running)

	runnable := dummy(t)
	defer runnable.Destroy()
	runnable.SetState(coroutine.Runnable)
	s.Local.Append(runnable)

	got := PickNext(&s)
	if got != runnable {
		t.Fatalf("PickNext returned %v, want the runnable coroutine", got)
	}
}

func TestPickNextEmptyQueueReturnsNil(t *testing.T) {
	var s Scheduler
	if got := PickNext(&s); got != nil {
		t.Fatalf("PickNext on empty queue = %v, want nil", got)
	}
}

func TestPickNextAllBusyReturnsNil(t *testing.T) {
	var s Scheduler
	c := dummy(t)
	defer c.Destroy()
	c.SetState(coroutine.Running)
	s.Local.Append(c)

	if got := PickNext(&s); got != nil {
		t.Fatalf("PickNext = %v, want nil when nothing is runnable", got)
	}
	if s.Local.Len() != 1 {
		t.Fatalf("PickNext must not drop a Running coroutine, Len() = %d", s.Local.Len())
	}
}
