package mqueue

// invokeSeq is the reserved HandlerID.Seq used for AsyncInvoke entries.
// Seq 0 is the broadcast pseudo-handler (see HandlerID.IsBroadcast);
// invokeSeq is the maximum uint32, which nextHandlerSeq (starting at 1 and
// counting up) will never reach in practice. dispatch special-cases it to
// call the posted func() directly instead of looking it up in q.handlers.
const invokeSeq uint32 = ^uint32(0)

func invokeHandler(queue QueueID) HandlerID {
	return HandlerID{Queue: queue, Seq: invokeSeq}
}

// AsyncInvoke posts fn to run on queue's owning goroutine at the given
// timing and returns a handle for its result plus the PostID of the
// invocation. If queue does not exist, is tearing down, or the invocation is
// later cancelled or abandoned before it ever runs, the returned PostID may
// be NullPost and the AsyncResult's registered OnComplete callbacks (if any)
// fire once with (zero value, false) instead of ever producing a value.
func AsyncInvoke[R any](queue QueueID, fn func() R) (*AsyncResult[R], PostID) {
	return asyncInvokeTiming(queue, fn, ImmediateTiming())
}

// AsyncInvokeAfter is AsyncInvoke with a one-shot delay.
func AsyncInvokeAfter[R any](queue QueueID, delayMs int64, fn func() R) (*AsyncResult[R], PostID) {
	return asyncInvokeTiming(queue, fn, AfterTiming(delayMs))
}

// AsyncInvokePeriod re-invokes fn every periodMs milliseconds (after an
// initial afterMs delay), overwriting the AsyncResult's value on each
// iteration; callers typically poll TryGet rather than Wait on a periodic
// invocation's result.
func AsyncInvokePeriod[R any](queue QueueID, afterMs, periodMs int64, fn func() R) (*AsyncResult[R], PostID) {
	return asyncInvokeTiming(queue, fn, PeriodTiming(afterMs, periodMs))
}

func asyncInvokeTiming[R any](queue QueueID, fn func() R, timing Timing) (*AsyncResult[R], PostID) {
	res := newAsyncResult[R]()
	q, ok := resolveQueue(queue)
	if !ok {
		res.notifyCancelled()
		return res, NullPost
	}
	body := Body{Body1: func() { res.setValue(fn()) }}
	post := q.insert(invokeHandler(queue), body, timing, false, false, res.notifyCancelled)
	if post.IsNull() {
		res.notifyCancelled()
	}
	return res, post
}

// WaitInvoke runs fn on queue's owning goroutine and returns its value. If
// the calling goroutine already owns queue, fn runs inline with no posting
// — mirroring mars's same-thread fast path. Otherwise fn is posted via
// AsyncInvoke and the caller blocks on WaitMessage until it has run.
func WaitInvoke[R any](queue QueueID, fn func() R) R {
	if defaultRegistry.currentlyOwnsQueue(queue) {
		return fn()
	}
	res, post := asyncInvokeTiming(queue, fn, ImmediateTiming())
	if post.IsNull() {
		var zero R
		return zero
	}
	WaitMessage(post)
	v, _ := res.TryGet()
	return v
}
