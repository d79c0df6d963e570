package mqueue

// RunLoop drives one QueueState's pass loop on the calling goroutine until
// it is told to stop. It is the direct analogue of mars's MessageQueue::Run:
// callers either adopt the current goroutine as a queue's owner and call
// Run themselves, or let MessageQueueCreater spawn a goroutine that does so
// internally.
type RunLoop struct {
	q *QueueState
}

// Run blocks the calling goroutine, repeatedly calling pass until the
// queue's break flag is set and its ready list has drained. Safe to call
// only from the goroutine that owns q (bound via BindCurrentThread or
// MessageQueueCreater).
func (rl *RunLoop) Run() {
	q := rl.q
	for {
		if rl.shouldBreak() {
			q.mu.Lock()
			q.breaking = true
			q.mu.Unlock()
		}
		if q.pass() == passBreak {
			return
		}
	}
}

// shouldBreak evaluates the optional embedder breaker predicate once per
// iteration head, outside the queue lock.
func (rl *RunLoop) shouldBreak() bool {
	rl.q.mu.Lock()
	f := rl.q.breakerFunc
	rl.q.mu.Unlock()
	return f != nil && f()
}

// RequestBreak asks the run-loop to exit once its ready list next drains.
// Safe to call from any goroutine.
func (q *QueueState) RequestBreak() {
	q.mu.Lock()
	q.breaking = true
	q.wake.notify()
	q.mu.Unlock()
}

// NewRunLoop builds a RunLoop bound to q. Most callers should use
// MessageQueueCreater instead of constructing one directly.
func NewRunLoop(q *QueueState) *RunLoop {
	return &RunLoop{q: q}
}
