package mqueue

// insert builds a messageEntry for body/timing addressed to handler and
// files it into the ready list or timer heap, per timing.Kind. Returns
// NullPost if the queue is tearing down. front only takes effect for
// Immediately timing (FasterMessage's head-insert). onCancel, if non-nil, is
// invoked if this entry is ever removed without running — see
// messageEntry.onCancel.
func (q *QueueState) insert(handler HandlerID, body Body, timing Timing, recvBroadcast, front bool, onCancel func()) PostID {
	q.mu.Lock()
	if q.breaking {
		q.mu.Unlock()
		return NullPost
	}

	seq := defaultRegistry.nextPostSeqFor()
	postID := PostID{Handler: handler, Seq: seq}
	entry := &messageEntry{
		postID:        postID,
		handlerID:     handler,
		title:         body.Title,
		body:          body,
		timing:        timing,
		seq:           uint64(seq),
		recvBroadcast: recvBroadcast,
		heapIndex:     -1,
		onCancel:      onCancel,
	}

	switch timing.Kind {
	case After, Period:
		entry.dueTime = q.clock.NowMs() + timing.AfterMs
		q.pushTimer(entry)
	default: // Immediately
		if front {
			q.pushReadyFront(entry)
		} else {
			q.pushReadyBack(entry)
		}
	}

	q.mu.Unlock()
	return postID
}

// replaceSingleton looks for a pending entry already addressed to
// (handler, body.Title). If found and replace is false, its PostID is
// returned unchanged (the new post is dropped). If found and replace is
// true, the existing entry is cancelled first. If none is found, nil is
// returned and the caller should insert normally.
func (q *QueueState) singletonExisting(handler HandlerID, title Title, replace bool) (PostID, bool) {
	q.mu.Lock()
	e := q.findByHandlerTitle(handler, title)
	if e == nil {
		q.mu.Unlock()
		return NullPost, false
	}
	existing := e.postID
	if !replace {
		q.mu.Unlock()
		return existing, true
	}
	removed := q.removeFromReady(e) || q.removeFromTimers(e)
	if removed {
		delete(q.postIndex, existing)
	}
	q.waiters.Broadcast()
	q.mu.Unlock()

	if removed && e.onCancel != nil {
		e.onCancel()
	}
	return NullPost, false
}

func resolveQueue(qid QueueID) (*QueueState, bool) {
	return defaultRegistry.queueState(qid)
}

// PostMessage queues body for delivery to handler per timing, FIFO among
// entries that become ready at the same moment. Returns NullPost if
// handler's queue no longer exists or is tearing down.
func PostMessage(handler HandlerID, body Body, timing Timing) PostID {
	q, ok := resolveQueue(handler.Queue)
	if !ok {
		return NullPost
	}
	return q.insert(handler, body, timing, false, false, nil)
}

// SingletonMessage coalesces on (handler, body.Title): if a matching entry
// is already pending, replace controls whether the new post supersedes it
// (replace=true) or is dropped in favor of the existing one (replace=false,
// whose PostID is returned).
func SingletonMessage(replace bool, handler HandlerID, body Body, timing Timing) PostID {
	q, ok := resolveQueue(handler.Queue)
	if !ok {
		return NullPost
	}
	if existing, found := q.singletonExisting(handler, body.Title, replace); found {
		return existing
	}
	return q.insert(handler, body, timing, false, false, nil)
}

// BroadcastMessage delivers body to every handler on queue installed with
// recvBroadcast=true, in install order, each receiving the same Body value.
func BroadcastMessage(queue QueueID, body Body, timing Timing) PostID {
	q, ok := resolveQueue(queue)
	if !ok {
		return NullPost
	}
	handler := HandlerID{Queue: queue, Seq: 0}
	return q.insert(handler, body, timing, true, false, nil)
}

// FasterMessage behaves like PostMessage, except that when timing is
// Immediately the entry jumps to the head of the ready list rather than the
// tail — ahead of anything already queued for that same pass.
func FasterMessage(handler HandlerID, body Body, timing Timing) PostID {
	q, ok := resolveQueue(handler.Queue)
	if !ok {
		return NullPost
	}
	return q.insert(handler, body, timing, false, true, nil)
}

// CancelMessage cancels a single post by id. Idempotent: returns false if
// id is unknown or was already cancelled.
func CancelMessage(id PostID) bool {
	q, ok := resolveQueue(id.Handler.Queue)
	if !ok {
		return false
	}
	return q.cancelPost(id)
}

// CancelMessageHandler cancels every pending post addressed to handler,
// and suppresses re-arm of its currently running entry if any.
func CancelMessageHandler(handler HandlerID) bool {
	q, ok := resolveQueue(handler.Queue)
	if !ok {
		return false
	}
	q.mu.Lock()
	changed, cancelled := q.cancelHandlerLocked(handler, nil, false)
	q.mu.Unlock()
	fireCancelled(cancelled)
	return changed
}

// CancelMessageHandlerTitle cancels every pending post addressed to
// (handler, title) only.
func CancelMessageHandlerTitle(handler HandlerID, title Title) bool {
	q, ok := resolveQueue(handler.Queue)
	if !ok {
		return false
	}
	q.mu.Lock()
	changed, cancelled := q.cancelHandlerLocked(handler, &title, true)
	q.mu.Unlock()
	fireCancelled(cancelled)
	return changed
}

// WaitMessage blocks the calling goroutine until post has run (or been
// cancelled before running). If called from the owning goroutine of
// post.Handler.Queue itself (re-entrant use, typically from inside another
// handler on the same queue), it drains the queue directly instead of
// deadlocking on a condvar no one else will ever signal. Returns whether the
// post actually ran at least once.
func WaitMessage(post PostID) bool {
	q, ok := resolveQueue(post.Handler.Queue)
	if !ok {
		return false
	}
	reentrant := defaultRegistry.currentlyOwnsQueue(post.Handler.Queue)
	return q.waitMessage(post, reentrant)
}

// FoundMessage reports whether post is still pending or currently running.
func FoundMessage(post PostID) bool {
	q, ok := resolveQueue(post.Handler.Queue)
	if !ok {
		return false
	}
	return q.foundMessage(post)
}

// InstallMessageHandler registers cb on queue and returns its HandlerID.
// When recvBroadcast is true cb also receives every BroadcastMessage sent
// to queue. Returns NullHandler if queue is unknown.
func InstallMessageHandler(queue QueueID, cb HandlerFunc, recvBroadcast bool) HandlerID {
	return defaultRegistry.install(queue, cb, recvBroadcast)
}

// UnInstallMessageHandler drains every pending post addressed to id, waits
// for any in-flight invocation to finish, then removes it. Blocks; must
// never be called from within the handler being removed on its own queue
// (it would deadlock waiting on itself).
func UnInstallMessageHandler(id HandlerID) {
	defaultRegistry.uninstall(id)
}

// BindCurrentThread idempotently creates (or returns) the queue owned by
// the calling goroutine.
func BindCurrentThread() QueueID {
	return defaultRegistry.bindCurrentThread()
}

// CurrentThreadMessageQueue returns the queue owned by the calling
// goroutine, if bound.
func CurrentThreadMessageQueue() (QueueID, bool) {
	return defaultRegistry.currentQueue()
}
