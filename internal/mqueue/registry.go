package mqueue

import (
	"sync"
	"sync/atomic"
)

// Registry is the process-wide, lock-protected map of queue-id ↔ owning
// goroutine and handler-id → (queue, callback, recv-broadcast). There is
// exactly one Registry per process (defaultRegistry); Attach/Install/Post
// all go through it. Dispatch never holds the Registry lock — only
// install/uninstall briefly take it before the per-queue lock.
type Registry struct {
	mu sync.RWMutex

	queues     map[QueueID]*QueueState
	queueOwner map[QueueID]uint64 // queue -> owning goroutine id
	ownerQueue map[uint64]QueueID // owning goroutine id -> queue

	nextQueueID    atomic.Uint64
	nextHandlerSeq atomic.Uint32
	nextPostSeq    atomic.Uint32
}

func newRegistry() *Registry {
	return &Registry{
		queues:     make(map[QueueID]*QueueState),
		queueOwner: make(map[QueueID]uint64),
		ownerQueue: make(map[uint64]QueueID),
	}
}

// defaultRegistry is the single process-wide registry instance. Modeled as
// an initialized-on-first-use object with no other global mutable state.
var defaultRegistry = newRegistry()

// bindCurrentThread idempotently associates the calling goroutine with a
// queue: repeated calls from the same goroutine return the same QueueID.
func (r *Registry) bindCurrentThread() QueueID {
	gid := goroutineID()

	r.mu.Lock()
	if qid, ok := r.ownerQueue[gid]; ok {
		r.mu.Unlock()
		return qid
	}
	qid := QueueID(r.nextQueueID.Add(1))
	q := newQueueState(qid, SystemClock)
	r.queues[qid] = q
	r.queueOwner[qid] = gid
	r.ownerQueue[gid] = qid
	r.mu.Unlock()
	return qid
}

// registerQueue makes qid resolvable through queueState/install the instant
// it returns — called by MessageQueueCreater on the calling goroutine,
// before its run-loop goroutine is spawned, so a caller that immediately
// does InstallMessageHandler(qid, ...) never races the goroutine's startup.
func (r *Registry) registerQueue(qid QueueID, q *QueueState) {
	r.mu.Lock()
	r.queues[qid] = q
	r.mu.Unlock()
}

// bindOwner records that goroutine gid — necessarily the calling goroutine,
// since gid comes from goroutineID() — owns qid. Called from inside the
// queue's own run-loop goroutine once it starts, after registerQueue has
// already made qid visible.
func (r *Registry) bindOwner(qid QueueID, gid uint64) {
	r.mu.Lock()
	r.queueOwner[qid] = gid
	r.ownerQueue[gid] = qid
	r.mu.Unlock()
}

func (r *Registry) allocQueueID() QueueID {
	return QueueID(r.nextQueueID.Add(1))
}

func (r *Registry) queueState(qid QueueID) (*QueueState, bool) {
	r.mu.RLock()
	q, ok := r.queues[qid]
	r.mu.RUnlock()
	return q, ok
}

// threadOf returns the goroutine id owning q.
func (r *Registry) threadOf(q QueueID) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gid, ok := r.queueOwner[q]
	return gid, ok
}

// queueOf returns the queue owned by the given goroutine, if any.
func (r *Registry) queueOf(gid uint64) (QueueID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	qid, ok := r.ownerQueue[gid]
	return qid, ok
}

// currentQueue returns the queue owned by the calling goroutine, if any.
func (r *Registry) currentQueue() (QueueID, bool) {
	return r.queueOf(goroutineID())
}

// currentlyOwnsQueue reports whether the calling goroutine is the owner of
// qid — the re-entrancy condition used by WaitMessage.
func (r *Registry) currentlyOwnsQueue(qid QueueID) bool {
	owner, ok := r.threadOf(qid)
	return ok && owner == goroutineID()
}

// install allocates a fresh nonzero handler seq and records the
// HandlerRecord on the target queue. Returns NullHandler if the queue is
// unknown.
func (r *Registry) install(qid QueueID, cb HandlerFunc, recvBroadcast bool) HandlerID {
	r.mu.Lock()
	q, ok := r.queues[qid]
	if !ok {
		r.mu.Unlock()
		return NullHandler
	}
	seq := r.nextHandlerSeq.Add(1)
	id := HandlerID{Queue: qid, Seq: seq}

	q.mu.Lock()
	q.handlers[seq] = &HandlerRecord{ID: id, Callback: cb, RecvBroadcast: recvBroadcast}
	q.handlerOrder = append(q.handlerOrder, seq)
	q.mu.Unlock()

	r.mu.Unlock()
	return id
}

// uninstall drains and removes the handler. The blocking drain happens
// without the Registry lock held (it may take an unbounded time if the
// handler is mid-callback).
func (r *Registry) uninstall(id HandlerID) {
	q, ok := r.queueState(id.Queue)
	if !ok {
		return
	}
	q.uninstallHandler(id.Seq)
}

// lookup returns the HandlerRecord for id, for diagnostics/tests — dispatch
// itself reads QueueState.handlers directly without going through the
// Registry lock.
func (r *Registry) lookup(id HandlerID) (HandlerRecord, bool) {
	q, ok := r.queueState(id.Queue)
	if !ok {
		return HandlerRecord{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.handlers[id.Seq]
	if !ok {
		return HandlerRecord{}, false
	}
	return *rec, true
}

func (r *Registry) nextPostSeqFor() uint32 {
	return r.nextPostSeq.Add(1)
}

// removeQueue forgets a torn-down queue entirely (called by
// MessageQueueCreater.CancelAndWait after the owning goroutine exits), and
// fires the onCancel hook of any entry RunLoop.Run abandoned mid-timer-heap
// when it broke — the only teardown path where a pending AsyncInvoke would
// otherwise go unnotified.
func (r *Registry) removeQueue(qid QueueID) {
	r.mu.Lock()
	q, ok := r.queues[qid]
	if gid, ok := r.queueOwner[qid]; ok {
		delete(r.ownerQueue, gid)
	}
	delete(r.queueOwner, qid)
	delete(r.queues, qid)
	r.mu.Unlock()

	if ok {
		fireCancelled(q.abandonPending())
	}
}
