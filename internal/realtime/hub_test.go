package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub, owner string, streams ...string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(owner, streams, w, r)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.subscribed(streams[0], owner) }, time.Second, 10*time.Millisecond)
	return conn
}

func (h *Hub) subscribed(stream, owner string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[stream][owner]) > 0
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestPublishToOwner(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "u1", StreamPush)
	require.Equal(t, int64(1), hub.Clients())

	hub.Publish("u2", Message{Stream: StreamPush, Event: "push.received", Data: "other"})
	hub.Publish("u1", Message{Stream: "PUSH", Event: "push.received", Data: "mine"})

	msg := read(t, conn)
	require.Equal(t, StreamPush, msg.Stream)
	require.Equal(t, "mine", msg.Data)
}

func TestSubscribeControlAndDeviceWidePublish(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "device", StreamConnectivity)

	require.NoError(t, conn.WriteJSON(control{Action: "subscribe", Streams: []string{" Sync "}}))
	require.Eventually(t, func() bool { return hub.subscribed(StreamSync, "device") }, time.Second, 10*time.Millisecond)

	hub.Publish("", Message{Stream: StreamSync, Event: "sync.completed"})
	require.Equal(t, "sync.completed", read(t, conn).Event)

	require.NoError(t, conn.WriteJSON(control{Action: "unsubscribe", Streams: []string{StreamSync}}))
	require.Eventually(t, func() bool { return !hub.subscribed(StreamSync, "device") }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(control{Action: "ping"}))
	require.Equal(t, "pong", read(t, conn).Event)
}

func TestLateSubscriberReceivesRetainedState(t *testing.T) {
	hub := NewHub()
	hub.Publish("", Message{Stream: StreamConnectivity, Event: "connectivity.changed", Data: "offline"})
	hub.Publish("", Message{Stream: StreamConnectivity, Event: "connectivity.changed", Data: "online"})
	hub.Publish("u1", Message{Stream: StreamPush, Event: "push.received"})

	conn := dial(t, hub, "u1", StreamConnectivity, StreamPush)

	msg := read(t, conn)
	require.Equal(t, StreamConnectivity, msg.Stream)
	require.Equal(t, "online", msg.Data)

	// owner-scoped messages are not retained
	require.NoError(t, conn.WriteJSON(control{Action: "ping"}))
	require.Equal(t, "pong", read(t, conn).Event)
}

func TestUnknownStreamsAreIgnored(t *testing.T) {
	hub := NewHub(StreamSync)
	require.True(t, hub.Accepts(" SYNC"))
	require.False(t, hub.Accepts(StreamPush))

	hub.Publish("", Message{Stream: StreamPush, Event: "push.received"})
	hub.mu.Lock()
	_, retained := hub.latest[StreamPush]
	hub.mu.Unlock()
	require.False(t, retained)
}

func TestCloseUnregisters(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "u1", StreamPush)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.Clients() == 0 && !hub.subscribed(StreamPush, "u1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNormalizeStreams(t *testing.T) {
	require.Equal(t, []string{"push", "sync"}, NormalizeStreams([]string{" Push", "", "sync", "PUSH"}))
}

func TestSameHostOrLoopback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8080/ws", nil)
	require.True(t, sameHostOrLoopback(req))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, sameHostOrLoopback(req))

	req.Header.Set("Origin", "https://evil.example.com")
	require.False(t, sameHostOrLoopback(req))

	req.Host = "deals.local:8080"
	req.Header.Set("Origin", "http://deals.local")
	require.True(t, sameHostOrLoopback(req))
}
