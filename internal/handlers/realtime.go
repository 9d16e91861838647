package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/dealcache/internal/realtime"
	appErrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/response"
)

// RealtimeHandler upgrades /ws requests into hub connections. The local API listens on the
// loopback interface, so the owner comes from the query string.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) (*RealtimeHandler, error) {
	if hub == nil {
		return nil, errors.New("realtime handler: hub is required")
	}
	return &RealtimeHandler{hub: hub}, nil
}

// Stream accepts ?owner=...&streams=a,b or repeated ?stream=... parameters. Without any
// stream the client is subscribed to every stream of the hub.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	owner := strings.TrimSpace(c.Query("owner"))
	if owner == "" {
		response.Error(c, appErrors.NewBadRequest("owner is required"))
		return
	}

	requested := c.QueryArray("stream")
	if raw := c.Query("streams"); raw != "" {
		requested = append(requested, strings.Split(raw, ",")...)
	}
	streams := realtime.NormalizeStreams(requested)
	for _, stream := range streams {
		if !h.hub.Accepts(stream) {
			response.Error(c, appErrors.ErrNotFound.WithMessage("unknown stream "+stream))
			return
		}
	}
	if len(streams) == 0 {
		streams = realtime.DefaultStreams
	}

	h.hub.Serve(owner, streams, c.Writer, c.Request)
}
