package mqueue

import "container/heap"

// fireCancelled invokes onCancel for every entry that was removed pending
// (never dispatched), after the caller has released q.mu — onCancel may run
// arbitrary code (an AsyncResult's completion callbacks) and must never run
// while holding the queue lock.
func fireCancelled(entries []*messageEntry) {
	for _, e := range entries {
		if e.onCancel != nil {
			e.onCancel()
		}
	}
}

// cancelHandlerLocked removes every ready/timer entry addressed to handler
// (optionally further restricted by title), and — if the currently running
// entry matches — flags it so no further periodic re-arm happens. Must be
// called with q.mu held. Returns whether anything was cancelled or
// suppressed, plus the entries that were actually removed pending (for the
// caller to fire onCancel on once q.mu is released).
func (q *QueueState) cancelHandlerLocked(handler HandlerID, title *Title, hasTitle bool) (bool, []*messageEntry) {
	changed := false
	var cancelled []*messageEntry

	for el := q.ready.Front(); el != nil; {
		e := el.Value.(*messageEntry)
		next := el.Next()
		if e.handlerID == handler && (!hasTitle || e.title == *title) {
			q.ready.Remove(el)
			delete(q.postIndex, e.postID)
			cancelled = append(cancelled, e)
			changed = true
		}
		el = next
	}

	for i := 0; i < len(q.timers); {
		e := q.timers[i]
		if e.handlerID == handler && (!hasTitle || e.title == *title) {
			heap.Remove(&q.timers, i)
			delete(q.postIndex, e.postID)
			cancelled = append(cancelled, e)
			changed = true
			continue // heap.Remove swaps a new element into i; re-examine it
		}
		i++
	}

	if q.running != nil && q.running.handlerID == handler && (!hasTitle || q.running.title == *title) {
		if !q.running.cancelled {
			q.running.cancelled = true
			changed = true
		}
	}

	if changed {
		q.waiters.Broadcast()
	}
	return changed, cancelled
}

// cancelPost implements CancelMessage(PostId): idempotent removal of a
// single pending entry, or suppression of a running one's periodic re-arm.
func (q *QueueState) cancelPost(id PostID) bool {
	q.mu.Lock()

	e, ok := q.postIndex[id]
	if !ok {
		q.mu.Unlock()
		return false
	}

	if q.running == e {
		if e.cancelled {
			q.mu.Unlock()
			return false
		}
		e.cancelled = true
		q.waiters.Broadcast()
		q.mu.Unlock()
		return true
	}

	removed := q.removeFromReady(e) || q.removeFromTimers(e)
	if !removed {
		q.mu.Unlock()
		return false
	}
	delete(q.postIndex, id)
	q.waiters.Broadcast()
	q.mu.Unlock()

	if e.onCancel != nil {
		e.onCancel()
	}
	return true
}

// foundMessage implements FoundMessage: true iff the post is still pending
// or running.
func (q *QueueState) foundMessage(id PostID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.postIndex[id]
	return ok
}

// waitMessage implements WaitMessage, including the owner-thread re-entrant
// drain for a caller that already owns the target queue.
func (q *QueueState) waitMessage(id PostID, reentrant bool) bool {
	q.mu.Lock()
	target, ok := q.postIndex[id]
	if !ok {
		q.mu.Unlock()
		return false
	}

	if reentrant {
		q.mu.Unlock()
		for {
			q.mu.Lock()
			cur, stillPending := q.postIndex[id]
			done := !stillPending || cur != target
			breaking := q.breaking && q.ready.Len() == 0 && q.stopped
			q.mu.Unlock()
			if done || breaking {
				break
			}
			if q.pass() == passBreak {
				break
			}
		}
		return target.ran
	}

	for {
		cur, stillPending := q.postIndex[id]
		if !stillPending || cur != target {
			break
		}
		q.waiters.Wait()
	}
	q.mu.Unlock()
	return target.ran
}

// uninstallHandler drains every pending entry for seq, blocks until any
// currently running invocation of it returns, then removes the
// HandlerRecord.
func (q *QueueState) uninstallHandler(seq uint32) {
	handler := HandlerID{Queue: q.id, Seq: seq}

	q.mu.Lock()
	_, cancelled := q.cancelHandlerLocked(handler, nil, false)
	for q.running != nil && q.running.handlerID == handler {
		q.waiters.Wait()
	}
	delete(q.handlers, seq)
	for i, s := range q.handlerOrder {
		if s == seq {
			q.handlerOrder = append(q.handlerOrder[:i], q.handlerOrder[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	fireCancelled(cancelled)
}
