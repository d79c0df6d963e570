package mqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeClock gives scheduler tests full control over NowMs without sleeping.
type fakeClock struct{ ms int64 }

func (f *fakeClock) NowMs() int64 { return f.ms }

func newTestQueue() (*QueueState, *fakeClock) {
	clk := &fakeClock{}
	q := newQueueState(QueueID(1), clk)
	return q, clk
}

func TestPassDispatchesReadyFIFO(t *testing.T) {
	q, _ := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	var order []int64
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(_ PostID, b *Body) {
		order = append(order, int64(b.Title))
	}}

	q.insert(h, Body{Title: 1}, ImmediateTiming(), false, false, nil)
	q.insert(h, Body{Title: 2}, ImmediateTiming(), false, false, nil)

	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, []int64{1, 2}, order)
}

// TestAfterZeroIsNotImmediately pins DESIGN.md Open Question 1: After(0)
// still goes through the timer heap and is only promoted to the ready tail
// at the next pass's advanceTimersLocked, so it never jumps ahead of an
// Immediately post made after it but dispatched in the same pass.
func TestAfterZeroIsNotImmediately(t *testing.T) {
	q, _ := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	var order []int64
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(_ PostID, b *Body) {
		order = append(order, int64(b.Title))
	}}

	q.insert(h, Body{Title: 1}, AfterTiming(0), false, false, nil)
	q.insert(h, Body{Title: 2}, ImmediateTiming(), false, false, nil)

	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, []int64{2, 1}, order)
}

// TestFasterMessageDoesNotOvertakeTimers pins DESIGN.md Open Question 2:
// the head-insert FasterMessage performs only applies to Immediately
// timing; a delayed FasterMessage post still waits its due time like any
// other timer entry.
func TestFasterMessageDoesNotOvertakeTimers(t *testing.T) {
	q, clk := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	var order []int64
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(_ PostID, b *Body) {
		order = append(order, int64(b.Title))
	}}

	q.insert(h, Body{Title: 1}, ImmediateTiming(), false, false, nil)
	q.insert(h, Body{Title: 2}, AfterTiming(1000), false, true, nil) // front=true ignored for After

	clk.ms = 0
	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, []int64{1}, order)

	clk.ms = 1000
	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, []int64{1, 2}, order)
}

func TestFasterMessageJumpsAheadOfReady(t *testing.T) {
	q, _ := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	var order []int64
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(_ PostID, b *Body) {
		order = append(order, int64(b.Title))
	}}

	q.insert(h, Body{Title: 1}, ImmediateTiming(), false, false, nil)
	q.insert(h, Body{Title: 2}, ImmediateTiming(), false, true, nil)

	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, []int64{2, 1}, order)
}

func TestPeriodicRearmUnderSamePostID(t *testing.T) {
	q, clk := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	count := 0
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(_ PostID, _ *Body) { count++ }}

	post := q.insert(h, Body{}, PeriodTiming(0, 100), false, false, nil)

	clk.ms = 0
	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, 1, count)
	require.True(t, q.foundMessage(post))

	clk.ms = 100
	require.Equal(t, passDispatched, q.pass())
	require.Equal(t, 2, count)
	require.True(t, q.foundMessage(post))

	require.True(t, q.cancelPost(post))
	require.False(t, q.foundMessage(post))
}

func TestCancelPostIsIdempotent(t *testing.T) {
	q, _ := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(_ PostID, _ *Body) {}}

	post := q.insert(h, Body{}, AfterTiming(1000), false, false, nil)
	require.True(t, q.cancelPost(post))
	require.False(t, q.cancelPost(post))
	require.False(t, q.foundMessage(post))
}

func TestCancelHandlerRemovesAllPendingForThatHandler(t *testing.T) {
	q, _ := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(_ PostID, _ *Body) {}}

	p1 := q.insert(h, Body{Title: 1}, ImmediateTiming(), false, false, nil)
	p2 := q.insert(h, Body{Title: 2}, AfterTiming(50), false, false, nil)

	q.mu.Lock()
	changed, _ := q.cancelHandlerLocked(h, nil, false)
	q.mu.Unlock()

	require.True(t, changed)
	require.False(t, q.foundMessage(p1))
	require.False(t, q.foundMessage(p2))
}
