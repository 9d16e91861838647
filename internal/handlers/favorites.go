package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/pkg/response"
)

// FavoriteHandler exposes offline favorites and the action log of the mobile client.
type FavoriteHandler struct {
	client *offline.Client
}

// NewFavoriteHandler constructs a favorite handler.
func NewFavoriteHandler(client *offline.Client) (*FavoriteHandler, error) {
	if client == nil {
		return nil, errors.New("favorite handler: offline client is required")
	}
	return &FavoriteHandler{client: client}, nil
}

type addFavoriteRequest struct {
	DealID string `json:"deal_id" validate:"required"`
}

type recordActionRequest struct {
	Type   string `json:"type" validate:"required"`
	DealID string `json:"deal_id" validate:"required"`
}

// Add records a favorite. Adding an existing favorite answers 200 instead of 201.
func (h *FavoriteHandler) Add(c *gin.Context) {
	var req addFavoriteRequest
	if !bind(c, &req) {
		return
	}

	favorite, created, err := h.client.AddFavoriteOffline(c.Request.Context(), req.DealID, param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, favorite)
}

// List returns the favorited deal ids of the owner.
func (h *FavoriteHandler) List(c *gin.Context) {
	ids, err := h.client.GetOfflineFavorites(c.Request.Context(), param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, ids, &response.Meta{Count: len(ids)})
}

// Remove deletes a favorite.
func (h *FavoriteHandler) Remove(c *gin.Context) {
	removed, err := h.client.RemoveFavorite(c.Request.Context(), param(c, "deal"), param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

// RecordAction appends to the owner's action log.
func (h *FavoriteHandler) RecordAction(c *gin.Context) {
	var req recordActionRequest
	if !bind(c, &req) {
		return
	}

	action, err := h.client.RecordAction(c.Request.Context(), req.Type, req.DealID, param(c, "owner"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, action)
}
