// Package mqueue implements a thread-affine message queue and run-loop
// runtime: every queue is pinned to exactly one owning goroutine, handlers
// are installed on a queue, and messages are posted to a handler with
// optional timing (immediate, delayed, or periodic).
package mqueue

import "fmt"

// QueueID identifies a live queue. The zero value is never handed out to a
// real queue.
type QueueID uint64

// InvalidQueueID is the reserved, never-issued queue identifier.
const InvalidQueueID QueueID = 0

// HandlerID addresses a handler installed on a queue. Seq 0 is reserved for
// the queue's broadcast pseudo-handler; every installed handler gets a
// nonzero seq.
type HandlerID struct {
	Queue QueueID
	Seq   uint32
}

// IsBroadcast reports whether h addresses the broadcast pseudo-handler of
// its queue.
func (h HandlerID) IsBroadcast() bool { return h.Seq == 0 }

// NullHandler is the zero HandlerID, matching no installed handler.
var NullHandler = HandlerID{}

func (h HandlerID) String() string {
	return fmt.Sprintf("Handler(q=%d,seq=%d)", h.Queue, h.Seq)
}

// PostID uniquely identifies one posted message. Seq 0 is the null post,
// returned whenever a post could not be accepted.
type PostID struct {
	Handler HandlerID
	Seq     uint32
}

// NullPost is the zero PostID, returned by posting operations that failed.
var NullPost = PostID{}

// IsNull reports whether p is the null post.
func (p PostID) IsNull() bool { return p.Seq == 0 }

func (p PostID) String() string {
	return fmt.Sprintf("Post(%s,seq=%d)", p.Handler, p.Seq)
}

// Title is an opaque, bitwise-comparable tag used for singleton/coalescing
// posts and for title-scoped cancellation.
type Title int64

// Body is the type-erased payload carried by a message. Body1 and Body2 are
// opaque slots; AsyncInvoke uses Body1 to carry a shared invocable.
type Body struct {
	Title Title
	Body1 any
	Body2 any
}

// TimingKind tags the three ways a message can be scheduled.
type TimingKind int

const (
	// Immediately places the message straight onto the ready list.
	Immediately TimingKind = iota
	// After delays the message by a fixed number of milliseconds, going
	// through the timer list once, then the ready list. After(0) is
	// deliberately distinct from Immediately: see DESIGN.md Open Question 1.
	After
	// Period re-arms the message every PeriodMs milliseconds after an
	// initial AfterMs delay, until cancelled or its handler is uninstalled.
	Period
)

// Timing describes when a posted message becomes eligible for dispatch.
type Timing struct {
	Kind    TimingKind
	AfterMs int64
	// PeriodMs is only meaningful when Kind == Period. PeriodMs == 0
	// degenerates a periodic post into a one-shot with initial delay
	// AfterMs.
	PeriodMs int64
}

// ImmediateTiming is the default timing used when none is supplied.
func ImmediateTiming() Timing { return Timing{Kind: Immediately} }

// AfterTiming schedules a one-shot message delayMs milliseconds from now.
func AfterTiming(delayMs int64) Timing { return Timing{Kind: After, AfterMs: delayMs} }

// PeriodTiming schedules a recurring message: first fire afterMs from now,
// then every periodMs thereafter.
func PeriodTiming(afterMs, periodMs int64) Timing {
	return Timing{Kind: Period, AfterMs: afterMs, PeriodMs: periodMs}
}

// HandlerFunc is a callback installed on a queue. It runs on the queue's
// owning goroutine and receives the post identifying this dispatch plus the
// mutable body of the message.
type HandlerFunc func(post PostID, body *Body)

// HandlerRecord is the Registry's bookkeeping entry for one installed
// handler.
type HandlerRecord struct {
	ID            HandlerID
	Callback      HandlerFunc
	RecvBroadcast bool
}

// messageEntry is a single posted message (one dispatch iteration) as
// tracked by a QueueState. A periodic post is represented by a fresh
// messageEntry for each iteration; they share the same PostID.
type messageEntry struct {
	postID    PostID
	handlerID HandlerID
	title     Title
	body      Body
	timing    Timing
	dueTime   int64  // monotonic ms; meaningful while the entry sits in the timer list
	seq       uint64 // insertion sequence, for stable tie-breaking and heap bookkeeping

	recvBroadcast bool // true if posted via BroadcastMessage
	singleton     bool // true if posted via SingletonMessage
	cancelled     bool // set by CancelMessage; suppresses further periodic re-arming
	ran           bool // true once this iteration's callback has been invoked

	heapIndex int // maintained by container/heap; -1 when not on the timer heap

	// onCancel, if set, is invoked whenever this entry is removed pending
	// (never dispatched) — by CancelMessage, CancelMessageHandler(Title),
	// UnInstallMessageHandler's drain, or MessageQueueCreater.CancelAndWait
	// tearing down a queue with entries still in its timer heap. AsyncInvoke
	// wires this to the invocation's AsyncResult so a waiter always learns
	// the difference between "ran" and "never ran".
	onCancel func()
}
