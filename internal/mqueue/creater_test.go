package mqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInstallImmediatelyAfterCreateNeverRacesRegistration pins the
// synchronous-registration fix: InstallMessageHandler must see the queue the
// instant CreateNewMessageQueue returns, with no race against the run-loop
// goroutine's own startup. Run under -race to make the race window visible
// if this regresses.
func TestInstallImmediatelyAfterCreateNeverRacesRegistration(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := CreateNewMessageQueue()
		h := InstallMessageHandler(c.QueueID(), func(PostID, *Body) {}, false)
		require.NotEqual(t, NullHandler, h)
		c.CancelAndWait()
	}
}

func TestCreateNewMessageQueueQueueIDUsableImmediately(t *testing.T) {
	c := CreateNewMessageQueue()
	defer c.CancelAndWait()

	ready, timers, ok := QueueDepth(c.QueueID())
	require.True(t, ok, "queue must already be registered before CreateNewMessageQueue returns")
	require.Equal(t, 0, ready)
	require.Equal(t, 0, timers)

	h := InstallMessageHandler(c.QueueID(), func(PostID, *Body) {}, false)
	require.NotEqual(t, NullHandler, h)
}
