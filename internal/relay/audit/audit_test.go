package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.relayqueue.dev/internal/mqueue"
)

type fakeRecorder struct {
	mu      sync.Mutex
	entries []*Entry
}

func (f *fakeRecorder) Record(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRecorder) snapshot() []*Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

func TestLoggerRecordsAsynchronously(t *testing.T) {
	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	fake := &fakeRecorder{}
	logger := NewLogger(fake, c.QueueID())

	logger.Log(Entry{Queue: "webhooks", Action: "deliver", Subject: "order-1", Outcome: OutcomeSuccess})

	require.Eventually(t, func() bool {
		return len(fake.snapshot()) == 1
	}, time.Second, time.Millisecond)

	got := fake.snapshot()[0]
	require.Equal(t, "webhooks", got.Queue)
	require.Equal(t, "order-1", got.Subject)
	require.Equal(t, OutcomeSuccess, got.Outcome)
}

func TestLoggerPreservesOrderPerQueue(t *testing.T) {
	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	fake := &fakeRecorder{}
	logger := NewLogger(fake, c.QueueID())

	for i := 0; i < 5; i++ {
		logger.Log(Entry{Queue: "webhooks", Action: "deliver", Subject: "order-n", Outcome: OutcomeSuccess})
	}

	require.Eventually(t, func() bool {
		return len(fake.snapshot()) == 5
	}, time.Second, time.Millisecond)
}
