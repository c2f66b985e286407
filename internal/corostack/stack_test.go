package corostack

import "testing"

func TestNewAlignsHigh(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Free()

	high := s.High()
	if high%16 != 0 {
		t.Fatalf("High() = %#x, not 16-byte aligned", high)
	}
	if high == 0 {
		t.Fatalf("High() returned 0")
	}
}

func TestFreeIsIdempotent(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Free(); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	if err := s.Free(); err != nil {
		t.Fatalf("second Free: %v", err)
	}
}

func TestNewProducesUsableSize(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Free()

	if len(s.usable) != DefaultSize {
		t.Fatalf("usable region size = %d, want %d", len(s.usable), DefaultSize)
	}
}
