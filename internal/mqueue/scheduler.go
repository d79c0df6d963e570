package mqueue

import "container/heap"

// passOutcome reports what a single scheduler pass did, so RunLoop knows
// whether to keep iterating or exit.
type passOutcome int

const (
	passDispatched passOutcome = iota
	passParked
	passBreak
)

// pass executes one iteration of the run-loop: advance due timers, dispatch
// the ready head if any, otherwise park until the next due time or a notify.
// Called repeatedly by RunLoop.Run.
func (q *QueueState) pass() passOutcome {
	q.mu.Lock()

	q.advanceTimersLocked()

	if q.breaking && q.ready.Len() == 0 {
		q.stopped = true
		q.mu.Unlock()
		return passBreak
	}

	if q.ready.Len() == 0 {
		waitMs := q.nextWaitMsLocked()
		q.wake.wait(waitMs)
		q.mu.Unlock()
		return passParked
	}

	front := q.ready.Front()
	entry := front.Value.(*messageEntry)
	q.ready.Remove(front)
	prevRunning := q.running // non-nil only when pass is called re-entrantly from WaitMessage
	q.running = entry
	q.mu.Unlock()

	q.dispatch(entry)

	q.mu.Lock()
	q.running = prevRunning
	entry.ran = true

	if entry.timing.Kind == Period && !entry.cancelled {
		q.rearmPeriodLocked(entry)
	} else {
		delete(q.postIndex, entry.postID)
	}
	q.waiters.Broadcast()
	q.mu.Unlock()

	return passDispatched
}

// advanceTimersLocked moves every timer entry whose due time has arrived
// onto the tail of the ready list, in ascending (dueTime, seq) order. Must
// be called with q.mu held.
func (q *QueueState) advanceTimersLocked() {
	now := q.clock.NowMs()
	for len(q.timers) > 0 && q.timers[0].dueTime <= now {
		e := heap.Pop(&q.timers).(*messageEntry)
		q.ready.PushBack(e)
	}
}

// nextWaitMsLocked computes how long the run-loop should park: the delay
// until the next timer's due time, or MaxWaitMs if there is none. Must be
// called with q.mu held and the ready list already known empty.
func (q *QueueState) nextWaitMsLocked() int64 {
	if len(q.timers) == 0 {
		return MaxWaitMs
	}
	now := q.clock.NowMs()
	wait := q.timers[0].dueTime - now
	if wait < 0 {
		wait = 0
	}
	if wait > MaxWaitMs {
		wait = MaxWaitMs
	}
	return wait
}

// rearmPeriodLocked reinserts a periodic entry's next iteration under the
// same PostID. A fresh messageEntry models the new iteration so WaitMessage
// on this PostID, called before rearm, only ever waits for the iteration
// that was running when it started.
func (q *QueueState) rearmPeriodLocked(prev *messageEntry) {
	next := &messageEntry{
		postID:        prev.postID,
		handlerID:     prev.handlerID,
		title:         prev.title,
		body:          prev.body,
		timing:        prev.timing,
		seq:           prev.seq,
		recvBroadcast: prev.recvBroadcast,
		singleton:     prev.singleton,
		dueTime:       q.clock.NowMs() + prev.timing.PeriodMs,
		heapIndex:     -1,
		onCancel:      prev.onCancel,
	}
	heap.Push(&q.timers, next)
	q.postIndex[next.postID] = next
}

// dispatch invokes entry's target handler(s) with the queue's lock released.
// Broadcast entries fan out to every recvBroadcast-subscribed handler, in
// install order.
func (q *QueueState) dispatch(entry *messageEntry) {
	if entry.handlerID.Seq == invokeSeq {
		if fn, ok := entry.body.Body1.(func()); ok {
			fn()
		}
		return
	}

	if entry.handlerID.IsBroadcast() {
		q.mu.Lock()
		order := append([]uint32(nil), q.handlerOrder...)
		records := make([]HandlerRecord, 0, len(order))
		for _, seq := range order {
			if rec, ok := q.handlers[seq]; ok && rec.RecvBroadcast {
				records = append(records, *rec)
			}
		}
		q.mu.Unlock()

		for _, rec := range records {
			rec.Callback(entry.postID, &entry.body)
		}
		return
	}

	q.mu.Lock()
	rec, ok := q.handlers[entry.handlerID.Seq]
	q.mu.Unlock()
	if !ok {
		return
	}
	rec.Callback(entry.postID, &entry.body)
}
