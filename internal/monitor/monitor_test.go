package monitor

import (
	"testing"

	"github.com/krolikladoshka/loom/coroutine"
	"github.com/krolikladoshka/loom/internal/worker"
)

func dummy(t *testing.T) *coroutine.Coroutine {
	t.Helper()
	c, err := coroutine.Create("test", func(a [coroutine.MaxArgs]uint64) uintptr { return 0 }, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.SetState(coroutine.Runnable)
	return c
}

func newWorkers(t *testing.T, n int) []*worker.Worker {
	t.Helper()
	ws := make([]*worker.Worker, n)
	for i := range ws {
		w, err := worker.New(i)
		if err != nil {
			t.Fatalf("worker.New: %v", err)
		}
		ws[i] = w
	}
	return ws
}

func TestSubmitAndGlobalLen(t *testing.T) {
	m := New(nil)
	c := dummy(t)
	defer c.Destroy()

	m.Submit(c)
	if got := m.GlobalLen(); got != 1 {
		t.Fatalf("GlobalLen() = %d, want 1", got)
	}
}

func TestDrainGlobalDistributesRoundRobin(t *testing.T) {
	ws := newWorkers(t, 2)
	m := New(ws)

	var cs []*coroutine.Coroutine
	for i := 0; i < 4; i++ {
		c := dummy(t)
		cs = append(cs, c)
		m.Submit(c)
	}
	defer func() {
		for _, c := range cs {
			c.Destroy()
		}
	}()

	m.drainGlobal()

	if m.GlobalLen() != 0 {
		t.Fatalf("drainGlobal left %d coroutines in the global queue", m.GlobalLen())
	}
	for i, w := range ws {
		if got := w.LocalLen(); got != 2 {
			t.Fatalf("worker %d LocalLen() = %d, want 2", i, got)
		}
	}
}

func TestDrainGlobalWithNoWorkersIsNoop(t *testing.T) {
	m := New(nil)
	c := dummy(t)
	defer c.Destroy()
	m.Submit(c)

	m.drainGlobal()

	if m.GlobalLen() != 1 {
		t.Fatalf("drainGlobal with no workers must leave the queue untouched")
	}
}

func TestDrainGlobalDestroysAlreadyDoneCoroutines(t *testing.T) {
	ws := newWorkers(t, 1)
	m := New(ws)

	c := dummy(t)
	c.SetState(coroutine.Done)
	m.Submit(c)

	m.drainGlobal()

	if ws[0].LocalLen() != 0 {
		t.Fatalf("a Done coroutine must not be handed to a worker")
	}
}

func TestWakeIdleToleratesMultiplePostsPerWorker(t *testing.T) {
	ws := newWorkers(t, 1)
	m := New(ws)

	for i := 0; i < 3; i++ {
		c := dummy(t)
		defer c.Destroy()
		m.Submit(c)
	}

	// Must not panic: *semaphore.Weighted panics on an over-release, and
	// a drain handing three coroutines to one idle worker would call
	// WakeIdle three times in a row with nothing consuming permits
	// in between.
	m.drainGlobal()
}
