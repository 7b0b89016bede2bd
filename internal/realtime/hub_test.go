package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitConnected(t *testing.T, hub *Hub, user string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Connected(user) == n }, 2*time.Second, 10*time.Millisecond)
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestHubDeliversToEveryRecipientSocket(t *testing.T) {
	hub, srv := newTestHub(t)

	tab1 := dial(t, srv, "bob")
	tab2 := dial(t, srv, "bob")
	other := dial(t, srv, "carol")
	waitConnected(t, hub, "bob", 2)
	waitConnected(t, hub, "carol", 1)

	hub.NotifyMessage("bob", "alice")

	for _, ws := range []*websocket.Conn{tab1, tab2} {
		var event Event
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, ws.ReadJSON(&event))
		assert.Equal(t, Event{Type: "message", From: "alice"}, event)
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "carol should not receive bob's event")
}

func TestHubForgetsClosedSockets(t *testing.T) {
	hub, srv := newTestHub(t)

	ws := dial(t, srv, "bob")
	waitConnected(t, hub, "bob", 1)

	require.NoError(t, ws.Close())
	waitConnected(t, hub, "bob", 0)

	// no sockets left: nothing to deliver, nothing to fail
	hub.NotifyMessage("bob", "alice")
}

func TestHubShutdownClosesSockets(t *testing.T) {
	hub, srv := newTestHub(t)

	ws := dial(t, srv, "bob")
	waitConnected(t, hub, "bob", 1)

	hub.Shutdown()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	waitConnected(t, hub, "bob", 0)
}
