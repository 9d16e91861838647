package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/pkg/response"
)

// PreferenceHandler reads and writes user preferences.
type PreferenceHandler struct {
	client *offline.Client
}

// NewPreferenceHandler constructs a preference handler.
func NewPreferenceHandler(client *offline.Client) (*PreferenceHandler, error) {
	if client == nil {
		return nil, errors.New("preference handler: offline client is required")
	}
	return &PreferenceHandler{client: client}, nil
}

type setPreferenceRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`
}

// Set stores the value under :key.
func (h *PreferenceHandler) Set(c *gin.Context) {
	var req setPreferenceRequest
	if !bind(c, &req) {
		return
	}

	pref, err := h.client.SetPreference(c.Request.Context(), param(c, "key"), req.Value)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

// Get returns the preference stored under :key.
func (h *PreferenceHandler) Get(c *gin.Context) {
	pref, err := h.client.GetPreference(c.Request.Context(), param(c, "key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}
