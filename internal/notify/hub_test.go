package notify

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, hub *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		hub.Serve(w, r, id)
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubFansOutToAllConnections(t *testing.T) {
	hub := NewHub("")
	url := newHubServer(t, hub)

	a := dial(t, url+"?user=1", nil)
	b := dial(t, url+"?user=1", nil)
	dial(t, url+"?user=2", nil)

	require.Eventually(t, func() bool { return hub.Connected(1) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Connected(2) == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, hub.Send(1, []byte(`{"hello":1}`)))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"hello":1}`, string(msg))
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub("")
	url := newHubServer(t, hub)

	conn := dial(t, url+"?user=5", nil)
	require.Eventually(t, func() bool { return hub.Connected(5) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connected(5) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Send(5, []byte("x")))
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub("https://library.example")
	url := newHubServer(t, hub)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url+"?user=1", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://library.example"}}
	dial(t, url+"?user=1", header)
}
