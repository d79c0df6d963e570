package mqueue

import "sync"

// AsyncResult is the handle returned by AsyncInvoke: a single-assignment
// future for a value produced on another queue's owning goroutine. It
// collapses the template specializations mars needs for R, void, R& and
// const R& into one generic type — for the void case, instantiate with
// struct{}.
//
// It also carries AsyncInvoke's completion-callback contract: a caller may
// register one or more callbacks via OnComplete, each fired with (value,
// true) every time the invocation produces a result, or with (zero, false)
// exactly once if the invocation is cancelled or its queue torn down before
// it ever ran.
type AsyncResult[R any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready bool // true once setValue has run at least once
	value R

	cancelled  bool // terminal: never ran, and never will
	onComplete []func(R, bool)
}

func newAsyncResult[R any]() *AsyncResult[R] {
	a := &AsyncResult[R]{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// setValue records a produced result, wakes any Wait()ers, and fires every
// registered completion callback with ok=true. A periodic AsyncInvoke calls
// this again on every re-arm, overwriting value each time.
func (a *AsyncResult[R]) setValue(v R) {
	a.mu.Lock()
	a.value = v
	a.ready = true
	cbs := append([]func(R, bool)(nil), a.onComplete...)
	a.cond.Broadcast()
	a.mu.Unlock()

	for _, cb := range cbs {
		cb(v, true)
	}
}

// notifyCancelled implements AsyncResult's destruction-time cancellation
// notification: if the invocation never ran even once, every registered
// completion callback fires with the zero value and ok=false, and any
// blocked Wait() is released. A no-op once the invocation has produced a
// value at least once — a periodic invocation that ran before being
// cancelled keeps its last value and does not get a trailing ok=false.
func (a *AsyncResult[R]) notifyCancelled() {
	a.mu.Lock()
	if a.ready || a.cancelled {
		a.mu.Unlock()
		return
	}
	a.cancelled = true
	cbs := append([]func(R, bool)(nil), a.onComplete...)
	a.cond.Broadcast()
	a.mu.Unlock()

	var zero R
	for _, cb := range cbs {
		cb(zero, false)
	}
}

// Wait blocks until the invocation has run at least once, or was cancelled
// before ever running, and returns its value (the zero value in the
// cancelled case).
func (a *AsyncResult[R]) Wait() R {
	a.mu.Lock()
	for !a.ready && !a.cancelled {
		a.cond.Wait()
	}
	v := a.value
	a.mu.Unlock()
	return v
}

// TryGet returns the value and true if the invocation has run at least
// once, or the zero value and false otherwise — including the cancelled
// case, where it will never become true.
func (a *AsyncResult[R]) TryGet() (R, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value, a.ready
}

// OnComplete registers cb to run every time the invocation produces a value
// (ok=true), or once with the zero value (ok=false) if it is cancelled or
// its queue is torn down before ever running. If that terminal state is
// already reached, cb fires immediately and synchronously.
func (a *AsyncResult[R]) OnComplete(cb func(R, bool)) {
	a.mu.Lock()
	switch {
	case a.ready:
		v := a.value
		a.mu.Unlock()
		cb(v, true)
	case a.cancelled:
		a.mu.Unlock()
		var zero R
		cb(zero, false)
	default:
		a.onComplete = append(a.onComplete, cb)
		a.mu.Unlock()
	}
}
