package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/internal/services"
	"github.com/charlesng35/dealcache/pkg/response"
)

const defaultPushLimit = 25

// PushHandler receives push messages and applies notification actions.
type PushHandler struct {
	client *offline.Client
}

// NewPushHandler constructs a push handler.
func NewPushHandler(client *offline.Client) (*PushHandler, error) {
	if client == nil {
		return nil, errors.New("push handler: offline client is required")
	}
	return &PushHandler{client: client}, nil
}

// Receive stores an incoming push message and announces it on the push stream.
func (h *PushHandler) Receive(c *gin.Context) {
	var req services.PushPayload
	if !bind(c, &req) {
		return
	}

	dto, err := h.client.ReceivePush(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}

// List returns the owner's notifications, newest first.
func (h *PushHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPushLimit)

	items, err := h.client.ListPush(c.Request.Context(), param(c, "owner"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Count: len(items), Limit: limit})
}

// Act applies view, favorite or dismiss to a notification.
func (h *PushHandler) Act(c *gin.Context) {
	result, err := h.client.HandlePushAction(c.Request.Context(), param(c, "id"), param(c, "action"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
