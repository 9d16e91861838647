package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/handlers/testutil"
	"github.com/charlesng35/dealcache/internal/models"
)

func TestFavoriteAddIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.MustSucceed(http.MethodPost, "/local/users/carol/favorites", map[string]any{"deal_id": "d-1"}, http.StatusCreated)
	var first models.Favorite
	testutil.DecodeInto(t, resp.Data, &first)
	require.Equal(t, "d-1", first.DealID)
	require.Equal(t, "carol", first.UserID)

	resp = env.MustSucceed(http.MethodPost, "/local/users/carol/favorites", map[string]any{"deal_id": "d-1"}, http.StatusOK)
	var second models.Favorite
	testutil.DecodeInto(t, resp.Data, &second)
	require.Equal(t, first.ID, second.ID)

	env.MustSucceed(http.MethodPost, "/local/users/carol/favorites", map[string]any{"deal_id": "d-2"}, http.StatusCreated)

	resp = env.MustSucceed(http.MethodGet, "/local/users/carol/favorites", nil, http.StatusOK)
	var ids []string
	testutil.DecodeInto(t, resp.Data, &ids)
	require.ElementsMatch(t, []string{"d-1", "d-2"}, ids)
}

func TestFavoriteRemoveQueuesDeleteOnceSynced(t *testing.T) {
	env := testutil.NewEnv(t)

	env.MustSucceed(http.MethodPost, "/local/users/carol/favorites", map[string]any{"deal_id": "d-1"}, http.StatusCreated)
	require.NoError(t, env.DB.Model(&models.Favorite{}).Where("deal_id = ?", "d-1").Update("synced", true).Error)

	resp := env.MustSucceed(http.MethodDelete, "/local/users/carol/favorites/d-1", nil, http.StatusOK)
	var removed struct {
		Removed bool `json:"removed"`
	}
	testutil.DecodeInto(t, resp.Data, &removed)
	require.True(t, removed.Removed)

	var ops []models.SyncOperation
	require.NoError(t, env.DB.Find(&ops).Error)
	require.Len(t, ops, 1)
	require.Equal(t, "/api/users/carol/favorites/d-1", ops[0].Endpoint)
}

func TestRecordAction(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.MustSucceed(http.MethodPost, "/local/users/dave/actions", map[string]any{
		"type":    "VIEW",
		"deal_id": "d-9",
	}, http.StatusCreated)
	var action models.UserAction
	testutil.DecodeInto(t, resp.Data, &action)
	require.Equal(t, "view", action.ActionType)
	require.Equal(t, "dave", action.UserID)
	require.False(t, action.Synced)

	w := env.Request(http.MethodPost, "/local/users/dave/actions", map[string]any{"type": "view"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}
