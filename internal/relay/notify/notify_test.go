package notify

import (
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"

	"go.relayqueue.dev/internal/mqueue"
)

func startTestServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go srv.Start()
	if !srv.ReadyForConnections(2 * time.Second) {
		t.Fatal("nats test server did not become ready")
	}
	return srv
}

func TestPublishAndRelay(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Shutdown()

	client, err := Connect(DefaultConfig(srv.ClientURL()))
	require.NoError(t, err)
	defer client.Close()

	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	received := make(chan []byte, 1)
	h := mqueue.InstallMessageHandler(c.QueueID(), func(_ mqueue.PostID, body *mqueue.Body) {
		received <- body.Body1.([]byte)
	}, false)

	unsub, err := client.Relay("events.order", h)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool {
		return client.Publish("events.order", []byte(`{"orderId":"1"}`)) == nil
	}, time.Second, 10*time.Millisecond)

	select {
	case b := <-received:
		require.JSONEq(t, `{"orderId":"1"}`, string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}
