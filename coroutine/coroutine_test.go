package coroutine

import "testing"

func noopEntry(args [MaxArgs]uint64) uintptr { return uintptr(args[0]) }

func TestCreateInitialState(t *testing.T) {
	c, err := Create("test:1", noopEntry, []int{8}, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Destroy()

	if got := c.State(); got != Created {
		t.Fatalf("State() = %v, want Created", got)
	}
	if c.Frame.SP == 0 {
		t.Fatalf("Frame.SP not set")
	}
	if c.Frame.PC == 0 {
		t.Fatalf("Frame.PC not set")
	}
	if c.Frame.SP%16 != 0 {
		t.Fatalf("Frame.SP = %#x, not 16-byte aligned", c.Frame.SP)
	}
}

func TestCreateRejectsUnsupportedArgSize(t *testing.T) {
	_, err := Create("test:2", noopEntry, []int{3}, []byte{1, 2, 3})
	if err == nil {
		t.Fatalf("expected ErrUnsupportedArgSize, got nil")
	}
	if _, ok := err.(*ErrUnsupportedArgSize); !ok {
		t.Fatalf("expected *ErrUnsupportedArgSize, got %T", err)
	}
}

func TestCreateRejectsTooManyArgs(t *testing.T) {
	sizes := make([]int, MaxArgs+1)
	for i := range sizes {
		sizes[i] = 1
	}
	_, err := Create("test:3", noopEntry, sizes, make([]byte, MaxArgs+1))
	if err == nil {
		t.Fatalf("expected error for too many args")
	}
}

func TestStateTransitions(t *testing.T) {
	c, err := Create("test:4", noopEntry, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Destroy()

	if !c.CompareAndSwapState(Created, Runnable) {
		t.Fatalf("CompareAndSwapState(Created, Runnable) failed")
	}
	if c.State() != Runnable {
		t.Fatalf("State() = %v, want Runnable", c.State())
	}
	if c.CompareAndSwapState(Created, Running) {
		t.Fatalf("CompareAndSwapState(Created, Running) should have failed, state is Runnable")
	}
}

func TestPackArgsZeroExtends(t *testing.T) {
	blob := []byte{0x11, 0x22, 0x22, 0x33, 0x33, 0x33, 0x33, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44}
	args, err := packArgs([]int{1, 2, 4, 8}, blob)
	if err != nil {
		t.Fatalf("packArgs: %v", err)
	}
	if args[0] != 0x11 {
		t.Fatalf("args[0] = %#x, want 0x11", args[0])
	}
	if args[1] != 0x2222 {
		t.Fatalf("args[1] = %#x, want 0x2222", args[1])
	}
	if args[2] != 0x33333333 {
		t.Fatalf("args[2] = %#x, want 0x33333333", args[2])
	}
	if args[3] != 0x4444444444444444 {
		t.Fatalf("args[3] = %#x, want 0x4444444444444444", args[3])
	}
}
