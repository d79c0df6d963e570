package mqueue

// MessageQueueCreater owns a queue spawned on a fresh goroutine, mirroring
// mars's MessageQueueCreater: construction starts the run-loop immediately;
// CancelAndWait requests it stop, blocks until the owning goroutine has
// actually returned, then forgets the queue. Use this when the caller wants
// a queue that runs independently rather than adopting its own goroutine
// (see BindCurrentThread + NewRunLoop for that case).
type MessageQueueCreater struct {
	id QueueID
	q  *QueueState
}

// CreateNewMessageQueue allocates a queue and spawns a goroutine running its
// RunLoop. The queue is registered synchronously, before the goroutine is
// spawned, so the returned QueueID is already usable — e.g. with
// InstallMessageHandler — the instant this call returns; only the
// owner-goroutine-id bookkeeping is filled in from inside the new goroutine,
// since it depends on that goroutine's own identity. The returned creater is
// the handle used to tear the queue down later.
func CreateNewMessageQueue() *MessageQueueCreater {
	qid := defaultRegistry.allocQueueID()
	q := newQueueState(qid, SystemClock)
	defaultRegistry.registerQueue(qid, q)
	c := &MessageQueueCreater{id: qid, q: q}

	go func() {
		defaultRegistry.bindOwner(qid, goroutineID())
		NewRunLoop(q).Run()
		close(q.ownerDone)
	}()

	return c
}

// QueueID returns the queue owned by this creater.
func (c *MessageQueueCreater) QueueID() QueueID { return c.id }

// CancelAndWait requests the queue's run-loop stop once its ready list
// drains, blocks until the owning goroutine has exited, then releases the
// queue from the registry. After it returns, c's QueueID is no longer
// valid — posting, installing or cancelling against it is a no-op.
func (c *MessageQueueCreater) CancelAndWait() {
	c.q.RequestBreak()
	<-c.q.ownerDone
	defaultRegistry.removeQueue(c.id)
}

// AdoptedQueue is the handle returned by AdoptCurrentThread: the calling
// goroutine becomes the queue's owner, but — unlike CreateNewMessageQueue —
// the caller is responsible for calling Run on its own RunLoop, typically
// as the body of its own main loop.
type AdoptedQueue struct {
	ID      QueueID
	RunLoop *RunLoop
}

// AdoptCurrentThread idempotently binds the calling goroutine as the owner
// of a queue (creating one on first call) and returns a RunLoop for it.
// Repeated calls from the same goroutine return a RunLoop over the same
// QueueState.
func AdoptCurrentThread() AdoptedQueue {
	qid := defaultRegistry.bindCurrentThread()
	q, _ := defaultRegistry.queueState(qid)
	return AdoptedQueue{ID: qid, RunLoop: NewRunLoop(q)}
}
