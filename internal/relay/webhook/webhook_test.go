package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.relayqueue.dev/internal/mqueue"
)

func TestDeliverSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(Config{MaxRetries: 1, BaseBackoff: time.Millisecond, Timeout: time.Second})
	outcome := m.Deliver(&Delivery{ID: "1", TargetURL: srv.URL, Payload: `{}`})
	require.Equal(t, ResultSuccess, outcome.Result)
	require.Equal(t, http.StatusOK, outcome.StatusCode)
}

func TestDeliverClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	m := New(Config{MaxRetries: 3, BaseBackoff: time.Millisecond, Timeout: time.Second})
	outcome := m.Deliver(&Delivery{ID: "1", TargetURL: srv.URL, Payload: `{}`})
	require.Equal(t, ResultErrorConfig, outcome.Result)
	require.Equal(t, 1, calls)
}

func TestDeliverAckFalseRetriesWithDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ack := false
		resp, _ := json.Marshal(map[string]any{"ack": &ack, "delaySeconds": 5})
		w.WriteHeader(http.StatusOK)
		w.Write(resp)
	}))
	defer srv.Close()

	m := New(Config{MaxRetries: 1, BaseBackoff: time.Millisecond, Timeout: time.Second})
	outcome := m.Deliver(&Delivery{ID: "1", TargetURL: srv.URL, Payload: `{}`})
	require.Equal(t, ResultErrorProcess, outcome.Result)
	require.NotNil(t, outcome.ResponseAck)
	require.False(t, *outcome.ResponseAck)
	require.NotNil(t, outcome.Delay)
	require.Equal(t, 5*time.Second, *outcome.Delay)
}

func TestDeliverIsRateLimited(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(Config{
		MaxRetries:    1,
		BaseBackoff:   time.Millisecond,
		Timeout:       time.Second,
		RatePerSecond: 2,
		RateBurst:     1,
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		outcome := m.Deliver(&Delivery{ID: "1", TargetURL: srv.URL, Payload: `{}`})
		require.Equal(t, ResultSuccess, outcome.Result)
	}
	require.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, 3, calls)
}

func TestHandlerDeliversAndReportsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	h := mqueue.InstallMessageHandler(c.QueueID(), Handler(New(DefaultConfig())), false)

	outcomes := make(chan *Outcome, 1)
	post := mqueue.PostMessage(h, mqueue.Body{
		Body1: &Delivery{ID: "1", TargetURL: srv.URL, Payload: `{}`},
		Body2: (chan<- *Outcome)(outcomes),
	}, mqueue.ImmediateTiming())
	require.True(t, mqueue.WaitMessage(post))

	select {
	case o := <-outcomes:
		require.Equal(t, ResultSuccess, o.Result)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outcome")
	}
}
