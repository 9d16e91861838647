package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/pkg/response"
)

// ConnectivityHandler reads and overrides the reachability state.
type ConnectivityHandler struct {
	monitor *connectivity.Monitor
}

// NewConnectivityHandler constructs a connectivity handler.
func NewConnectivityHandler(monitor *connectivity.Monitor) (*ConnectivityHandler, error) {
	if monitor == nil {
		return nil, errors.New("connectivity handler: monitor is required")
	}
	return &ConnectivityHandler{monitor: monitor}, nil
}

type setConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// Get returns the current state.
func (h *ConnectivityHandler) Get(c *gin.Context) {
	response.Success(c, http.StatusOK, h.monitor.State())
}

// Set records a state reported by the client, e.g. from a browser online/offline event.
func (h *ConnectivityHandler) Set(c *gin.Context) {
	var req setConnectivityRequest
	if !bind(c, &req) {
		return
	}

	changed := h.monitor.SetFrom(*req.Online, "client")
	response.Success(c, http.StatusOK, gin.H{
		"state":   h.monitor.State(),
		"changed": changed,
	})
}
