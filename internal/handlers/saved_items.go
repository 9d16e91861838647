package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/pkg/response"
)

// SavedItemHandler exposes the saved item store of the web client.
type SavedItemHandler struct {
	client *offline.Client
}

// NewSavedItemHandler constructs a saved item handler.
func NewSavedItemHandler(client *offline.Client) (*SavedItemHandler, error) {
	if client == nil {
		return nil, errors.New("saved item handler: offline client is required")
	}
	return &SavedItemHandler{client: client}, nil
}

type saveItemRequest struct {
	Item json.RawMessage `json:"item" validate:"required"`
}

type markSyncedRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500"`
}

// List returns every saved item of the owner.
func (h *SavedItemHandler) List(c *gin.Context) {
	items, err := h.client.ListSavedItems(c.Request.Context(), param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Count:   len(items),
		Offline: !h.client.Monitor().IsOnline(),
	})
}

// Save stores an item for the owner, replacing any previous copy with the same id.
func (h *SavedItemHandler) Save(c *gin.Context) {
	var req saveItemRequest
	if !bind(c, &req) {
		return
	}

	item, err := h.client.SaveItem(c.Request.Context(), req.Item, param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// Unsynced returns the owner's items that have not reached the remote API yet.
func (h *SavedItemHandler) Unsynced(c *gin.Context) {
	items, err := h.client.GetUnsyncedItems(c.Request.Context(), param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Count: len(items)})
}

// IsSaved reports whether the owner saved the item.
func (h *SavedItemHandler) IsSaved(c *gin.Context) {
	saved, err := h.client.IsItemSaved(c.Request.Context(), param(c, "id"), param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": saved})
}

// Remove deletes a saved item.
func (h *SavedItemHandler) Remove(c *gin.Context) {
	removed, err := h.client.RemoveSavedItem(c.Request.Context(), param(c, "id"), param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

// MarkSynced flags items as delivered.
func (h *SavedItemHandler) MarkSynced(c *gin.Context) {
	var req markSyncedRequest
	if !bind(c, &req) {
		return
	}

	updated, err := h.client.MarkItemsSynced(c.Request.Context(), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
