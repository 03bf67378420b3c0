package ring

import "runtime"

// backoff implements a small bounded spin-then-yield strategy for failed
// CAS retries on the ring buffer hot path: a handful of CPU-pause spins
// before yielding the goroutine to the scheduler, never blocking on a
// channel or mutex.
type backoff struct {
	spins int
}

const maxSpins = 6

func (b *backoff) wait() {
	if b.spins < maxSpins {
		n := 1 << b.spins
		for i := 0; i < n; i++ {
			procyield()
		}
		b.spins++
		return
	}
	runtime.Gosched()
}

// procyield issues a handful of CPU-pause-equivalent no-ops. runtime.Gosched
// is too heavyweight to call on every spin iteration (it can park the
// goroutine), so a tight empty loop stands in for the hardware PAUSE
// instruction the original's backoff relies on.
func procyield() {
	for i := 0; i < 1; i++ {
	}
}
