package secrets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.relayqueue.dev/internal/mqueue"
)

type fakeBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *fakeBackend) Fetch(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name], nil
}

func (f *fakeBackend) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func TestSyncFetchesInitialValues(t *testing.T) {
	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	backend := &fakeBackend{values: map[string]string{"db-password": "s3cret"}}
	sync := NewSync(backend, []string{"db-password"})

	require.NoError(t, sync.Start(context.Background(), c.QueueID(), time.Hour))
	defer sync.Stop()

	require.Equal(t, "s3cret", sync.Get("db-password"))
}

func TestSyncBroadcastsOnChange(t *testing.T) {
	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	backend := &fakeBackend{values: map[string]string{"api-key": "v1"}}
	sync := NewSync(backend, []string{"api-key"})

	changes := make(chan Changed, 4)
	mqueue.InstallMessageHandler(c.QueueID(), func(_ mqueue.PostID, body *mqueue.Body) {
		if c, ok := body.Body1.(Changed); ok {
			changes <- c
		}
	}, true)

	require.NoError(t, sync.Start(context.Background(), c.QueueID(), 10*time.Millisecond))
	defer sync.Stop()

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial broadcast")
	}

	backend.set("api-key", "v2")

	select {
	case got := <-changes:
		require.Equal(t, []string{"api-key"}, got.Names)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change broadcast")
	}

	require.Eventually(t, func() bool { return sync.Get("api-key") == "v2" }, time.Second, time.Millisecond)
}
