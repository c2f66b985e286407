// Command loomdemo drives the loom runtime through a few end-to-end
// scenarios: fairness among
// several tight-loop coroutines, progress under preemption, and
// argument passing through the raw integer-register ABI. It is an
// application of the embedder API, not part of the runtime itself.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/krolikladoshka/loom"
	"github.com/krolikladoshka/loom/coroutine"
)

func main() {
	scenario := flag.String("scenario", "fairness", "fairness|progress|args")
	workers := flag.Int("workers", 1, "worker pool size")
	flag.Parse()

	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(*loom.RuntimeError); ok {
				log.Printf("loomdemo: fatal: %s", re)
				os.Exit(2)
			}
			panic(r)
		}
	}()

	rt := loom.Init(loom.WithWorkers(*workers))
	log.Printf("loomdemo: runtime initialized with %d worker(s)", *workers)

	switch *scenario {
	case "fairness":
		runFairness(rt)
	case "progress":
		runProgress(rt)
	case "args":
		runArgs(rt)
	default:
		log.Fatalf("loomdemo: unknown scenario %q", *scenario)
	}

	rt.Shutdown(loom.WithDrainDeadline(100 * time.Millisecond))
	log.Printf("loomdemo: shutdown complete")
}

// runFairness submits three coroutines that each spin incrementing their
// own counter and reports how evenly the single worker time-sliced
// between them.
func runFairness(rt *loom.Runtime) {
	var counts [3]atomic.Uint64
	deadline := time.Now().Add(time.Second)

	for i := 0; i < 3; i++ {
		idx := i
		entry := func(_ [coroutine.MaxArgs]uint64) uintptr {
			for time.Now().Before(deadline) {
				counts[idx].Add(1)
			}
			return 0
		}
		if _, err := rt.Submit(fmt.Sprintf("fairness[%d]", i), entry, nil, nil); err != nil {
			log.Fatalf("loomdemo: submit: %v", err)
		}
	}

	time.Sleep(time.Second + 50*time.Millisecond)
	log.Printf("loomdemo: fairness counts: A=%d B=%d C=%d", counts[0].Load(), counts[1].Load(), counts[2].Load())
}

// runProgress submits a single Fibonacci coroutine and reports how many
// iterations it completes under the 20ms quantum.
func runProgress(rt *loom.Runtime) {
	var iterations atomic.Uint64
	entry := func(_ [coroutine.MaxArgs]uint64) uintptr {
		a, b := uint64(0), uint64(1)
		deadline := time.Now().Add(250 * time.Millisecond)
		for time.Now().Before(deadline) {
			a, b = b, a+b
			iterations.Add(1)
		}
		return uintptr(a)
	}
	if _, err := rt.Submit("progress.fib", entry, nil, nil); err != nil {
		log.Fatalf("loomdemo: submit: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	log.Printf("loomdemo: fibonacci completed %d iterations in 250ms", iterations.Load())
}

// runArgs submits a coroutine with a mixed-width argument blob (one
// field of each supported size) and reports what it observed.
func runArgs(rt *loom.Runtime) {
	sizes := []int{1, 2, 4, 8}
	blob := []byte{
		0x11,
		0x22, 0x22,
		0x33, 0x33, 0x33, 0x33,
		0x44, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44,
	}

	done := make(chan [4]uint64, 1)
	entry := func(args [coroutine.MaxArgs]uint64) uintptr {
		done <- [4]uint64{args[0], args[1], args[2], args[3]}
		return 0
	}
	if _, err := rt.Submit("args.observe", entry, sizes, blob); err != nil {
		log.Fatalf("loomdemo: submit: %v", err)
	}

	select {
	case got := <-done:
		log.Printf("loomdemo: observed args: %#x %#x %#x %#x", got[0], got[1], got[2], got[3])
	case <-time.After(time.Second):
		log.Fatalf("loomdemo: args coroutine never ran")
	}
}
