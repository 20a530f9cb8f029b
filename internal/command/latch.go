package command

import (
	"sync"
	"sync/atomic"
)

// Latch holds at most one pending occurrence of each command kind. Raising a
// kind that is already pending is a no-op, so repeats between two drains
// collapse into one. Exit is sticky: once raised it survives every Drain.
//
// Raise may be called from any number of goroutines; Drain is meant for the
// single consumer. Neither blocks.
type Latch struct {
	bits atomic.Uint32

	exitOnce sync.Once
	exitCh   chan struct{}
}

func NewLatch() *Latch {
	return &Latch{exitCh: make(chan struct{})}
}

// Raise marks k as pending.
func (l *Latch) Raise(k Kind) {
	l.bits.Or(1 << k)
	if k == Exit {
		l.exitOnce.Do(func() { close(l.exitCh) })
	}
}

// Drain returns every kind raised since the previous Drain and clears them,
// except Exit.
func (l *Latch) Drain() Set {
	return Set(l.bits.And(1 << Exit))
}

// Pending reports the current set without clearing it.
func (l *Latch) Pending() Set {
	return Set(l.bits.Load())
}

// ExitRequested reports whether Exit has ever been raised.
func (l *Latch) ExitRequested() bool {
	return Set(l.bits.Load()).Has(Exit)
}

// Done is closed once Exit has been raised.
func (l *Latch) Done() <-chan struct{} {
	return l.exitCh
}
