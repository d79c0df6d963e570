package mqueue

import (
	"sync"
	"time"
)

// WakeCondition abstracts how a queue's owning goroutine parks and is
// woken. wait must release the supplied lock on entry and reacquire it
// before returning — condition-variable semantics — whether it blocks for a
// notify or for up to ms milliseconds, whichever comes first. notify wakes
// any goroutine currently parked in wait; both are always called with the
// queue's own lock held by the caller.
//
// The queue code treats WakeCondition opaquely, but Kind is preserved so a
// handler can inspect "what kind of loop am I in" — e.g. to detect it is
// running under a UI main loop rather than the default condvar.
type WakeCondition interface {
	Kind() string
	wait(ms int64)
	notify()
}

// condWake is the default WakeCondition, backed by a sync.Cond over the
// queue's own mutex.
type condWake struct {
	cond *sync.Cond
}

// NewCondWake builds the default condvar-backed WakeCondition over mu. mu
// must be the same mutex the owning QueueState otherwise guards itself
// with.
func NewCondWake(mu *sync.Mutex) WakeCondition {
	return &condWake{cond: sync.NewCond(mu)}
}

func (w *condWake) Kind() string { return "cond" }

func (w *condWake) wait(ms int64) {
	if ms <= 0 {
		return
	}
	if ms >= MaxWaitMs {
		w.cond.Wait()
		return
	}
	timer := time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		w.cond.L.Lock()
		w.cond.Broadcast()
		w.cond.L.Unlock()
	})
	w.cond.Wait()
	timer.Stop()
}

func (w *condWake) notify() { w.cond.Broadcast() }
