package adminapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"go.relayqueue.dev/internal/mqueue"
)

func signToken(t *testing.T, secret []byte) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Config{JWTSecret: []byte("s")}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/q/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRejectMissingToken(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Config{JWTSecret: []byte("s")}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/queues/1/depth")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminQueueDepthWithValidToken(t *testing.T) {
	secret := []byte("s")
	srv := httptest.NewServer(NewRouter(Config{JWTSecret: secret}))
	defer srv.Close()

	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/admin/queues/%d/depth", srv.URL, c.QueueID()), nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminQueueDepthUnknownQueue(t *testing.T) {
	secret := []byte("s")
	srv := httptest.NewServer(NewRouter(Config{JWTSecret: secret}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/queues/999999/depth", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
