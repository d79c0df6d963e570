package mqueue

import (
	"container/heap"
	"container/list"
	"sync"
)

// timerHeap orders pending timed/periodic entries by ascending due time,
// ties broken by insertion sequence — container/heap.Interface over
// *messageEntry, grounded on the due-time min-heap idiom used for delayed
// work queues (see DESIGN.md).
type timerHeap []*messageEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].dueTime != h[j].dueTime {
		return h[i].dueTime < h[j].dueTime
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*messageEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// QueueState holds everything belonging to one queue: its pending work, its
// currently running entry, and the primitives ("own lock") that protect
// them. All handlers sharing this queue run on exactly one owning
// goroutine.
type QueueState struct {
	id QueueID

	mu      sync.Mutex
	wake    WakeCondition
	waiters *sync.Cond // broadcasts on any postIndex/ready/timer mutation; wakes WaitMessage callers

	ready  *list.List // of *messageEntry, FIFO with head-insert support for FasterMessage
	timers timerHeap

	// postIndex maps a PostID to the messageEntry instance representing its
	// currently pending-or-running iteration. Absence means "not found"
	// used by FoundMessage.
	postIndex map[PostID]*messageEntry

	handlers     map[uint32]*HandlerRecord
	handlerOrder []uint32 // install order, for broadcast fan-out ordering

	running *messageEntry

	breaking bool // break flag requested
	stopped  bool // run-loop has fully exited

	breakerFunc func() bool // optional embedder predicate, evaluated once per loop iteration head

	clock Clock

	ownerDone chan struct{} // closed once the owning goroutine's RunLoop returns
}

func newQueueState(id QueueID, clock Clock) *QueueState {
	q := &QueueState{
		id:        id,
		ready:     list.New(),
		timers:    make(timerHeap, 0),
		postIndex: make(map[PostID]*messageEntry),
		handlers:  make(map[uint32]*HandlerRecord),
		clock:     clock,
		ownerDone: make(chan struct{}),
	}
	q.wake = NewCondWake(&q.mu)
	q.waiters = sync.NewCond(&q.mu)
	return q
}

// SetWakeCondition installs an embedder-provided WakeCondition in place of
// the default condvar. Must be called before the queue's run-loop starts.
func (q *QueueState) SetWakeCondition(w WakeCondition) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.wake = w
}

// SetBreaker installs a predicate evaluated once per run-loop iteration
// head; when it returns true the loop exits, draining has already happened
// for that pass. Must be called before the run-loop starts.
func (q *QueueState) SetBreaker(f func() bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.breakerFunc = f
}

// pushReadyBack, pushReadyFront and pushTimer all notify both the run-loop's
// WakeCondition (so the owning goroutine wakes to pick the new entry up)
// and the waiters condvar (so any WaitMessage caller can re-check). Must be
// called with q.mu held.

func (q *QueueState) pushReadyBack(e *messageEntry) {
	e.heapIndex = -1
	q.ready.PushBack(e)
	q.postIndex[e.postID] = e
	q.wake.notify()
	q.waiters.Broadcast()
}

func (q *QueueState) pushReadyFront(e *messageEntry) {
	e.heapIndex = -1
	q.ready.PushFront(e)
	q.postIndex[e.postID] = e
	q.wake.notify()
	q.waiters.Broadcast()
}

func (q *QueueState) pushTimer(e *messageEntry) {
	heap.Push(&q.timers, e)
	q.postIndex[e.postID] = e
	q.wake.notify()
	q.waiters.Broadcast()
}

// removeFromReady unlinks e from the ready list if present; returns true if
// found and removed.
func (q *QueueState) removeFromReady(e *messageEntry) bool {
	for el := q.ready.Front(); el != nil; el = el.Next() {
		if el.Value.(*messageEntry) == e {
			q.ready.Remove(el)
			return true
		}
	}
	return false
}

// removeFromTimers unlinks e from the timer heap if present; returns true
// if found and removed.
func (q *QueueState) removeFromTimers(e *messageEntry) bool {
	if e.heapIndex < 0 || e.heapIndex >= len(q.timers) || q.timers[e.heapIndex] != e {
		return false
	}
	heap.Remove(&q.timers, e.heapIndex)
	return true
}

// abandonPending drains every entry still sitting in the ready list or
// timer heap — left behind when RunLoop.Run breaks with outstanding timers —
// and returns them so the caller can fire their onCancel hooks once this
// queue is fully torn down. Must be called after the owning goroutine has
// exited (ownerDone closed); nothing else touches q.mu by then.
func (q *QueueState) abandonPending() []*messageEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var abandoned []*messageEntry
	for el := q.ready.Front(); el != nil; el = el.Next() {
		abandoned = append(abandoned, el.Value.(*messageEntry))
	}
	q.ready.Init()
	for _, e := range q.timers {
		abandoned = append(abandoned, e)
	}
	q.timers = q.timers[:0]
	for _, e := range abandoned {
		delete(q.postIndex, e.postID)
	}
	return abandoned
}

// findByHandlerTitle scans ready+timers for a pending entry addressed to
// handler with the given title (SingletonMessage coalescing lookup).
func (q *QueueState) findByHandlerTitle(handler HandlerID, title Title) *messageEntry {
	for el := q.ready.Front(); el != nil; el = el.Next() {
		e := el.Value.(*messageEntry)
		if e.handlerID == handler && e.title == title {
			return e
		}
	}
	for _, e := range q.timers {
		if e.handlerID == handler && e.title == title {
			return e
		}
	}
	return nil
}
