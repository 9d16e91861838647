package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/handlers/testutil"
	"github.com/charlesng35/dealcache/internal/realtime"
	"github.com/charlesng35/dealcache/internal/services"
)

func TestPushReceiveListAndActions(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.MustSucceed(http.MethodPost, "/local/push", map[string]any{
		"user_id": "frank",
		"title":   "Price drop",
		"deal_id": "d-77",
	}, http.StatusCreated)
	var note services.PushNotificationDTO
	testutil.DecodeInto(t, resp.Data, &note)
	require.Equal(t, "/deals/d-77", note.DeepLink)
	require.ElementsMatch(t, []string{"view", "favorite", "dismiss"}, note.Actions)

	resp = env.MustSucceed(http.MethodGet, "/local/users/frank/push", nil, http.StatusOK)
	require.Equal(t, 1, resp.Meta.Count)

	resp = env.MustSucceed(http.MethodPost, "/local/push/"+note.ID+"/actions/view", nil, http.StatusOK)
	var viewed services.PushActionResult
	testutil.DecodeInto(t, resp.Data, &viewed)
	require.Equal(t, "/deals/d-77", viewed.Navigate)

	resp = env.MustSucceed(http.MethodPost, "/local/push/"+note.ID+"/actions/favorite", nil, http.StatusOK)
	var favored services.PushActionResult
	testutil.DecodeInto(t, resp.Data, &favored)
	require.NotNil(t, favored.Favorite)
	require.Equal(t, "d-77", favored.Favorite.DealID)

	resp = env.MustSucceed(http.MethodGet, "/local/users/frank/favorites", nil, http.StatusOK)
	var ids []string
	testutil.DecodeInto(t, resp.Data, &ids)
	require.Equal(t, []string{"d-77"}, ids)

	w := env.Request(http.MethodPost, "/local/push/"+note.ID+"/actions/share", nil)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/local/push/missing/actions/view", nil)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestPushRequiresUser(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/local/push", map[string]any{"title": "nobody"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestRealtimeStreamValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/ws", nil)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/ws?owner=frank&stream=chat", nil)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestRealtimeDeliversPushToOwner(t *testing.T) {
	env := testutil.NewEnv(t)

	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?owner=gina&stream=push"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// the pong is only written once the subscription is registered
	require.NoError(t, conn.WriteJSON(map[string]any{"action": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var pong realtime.Message
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong.Event)

	env.MustSucceed(http.MethodPost, "/local/push", map[string]any{
		"user_id": "gina",
		"title":   "Flash sale",
	}, http.StatusCreated)

	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.StreamPush, msg.Stream)
	require.Equal(t, "push.received", msg.Event)
}
