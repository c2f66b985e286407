package loom

import "testing"

func TestConfigDefaultsToOneWorker(t *testing.T) {
	var cfg Config
	if got := cfg.workers(); got != DefaultWorkers {
		t.Fatalf("zero Config.workers() = %d, want %d", got, DefaultWorkers)
	}
}

func TestWithWorkersZeroIsExplicit(t *testing.T) {
	cfg := WithWorkers(0)
	if got := cfg.workers(); got != 0 {
		t.Fatalf("WithWorkers(0).workers() = %d, want 0", got)
	}
}

func TestWithWorkersPositive(t *testing.T) {
	cfg := WithWorkers(4)
	if got := cfg.workers(); got != 4 {
		t.Fatalf("WithWorkers(4).workers() = %d, want 4", got)
	}
}
