package mqueue

import "testing"

func TestQueueDepthReflectsPendingEntries(t *testing.T) {
	q, _ := newTestQueue()
	h := HandlerID{Queue: q.id, Seq: 1}
	q.handlers[1] = &HandlerRecord{ID: h, Callback: func(PostID, *Body) {}}

	q.insert(h, Body{}, AfterTiming(1000), false, false, nil)
	q.insert(h, Body{}, AfterTiming(2000), false, false, nil)

	ready, timers := q.Depth()
	if ready != 0 || timers != 2 {
		t.Fatalf("got ready=%d timers=%d, want ready=0 timers=2", ready, timers)
	}
}

func TestQueueDepthUnknownQueue(t *testing.T) {
	if _, _, ok := QueueDepth(QueueID(999999)); ok {
		t.Fatal("expected ok=false for unknown queue")
	}
}
