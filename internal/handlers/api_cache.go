package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/charlesng35/dealcache/internal/offline"
	appErrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/response"
)

// APICacheHandler exposes the keyed API response cache.
type APICacheHandler struct {
	client *offline.Client
}

// NewAPICacheHandler constructs an API cache handler.
func NewAPICacheHandler(client *offline.Client) (*APICacheHandler, error) {
	if client == nil {
		return nil, errors.New("api cache handler: offline client is required")
	}
	return &APICacheHandler{client: client}, nil
}

type cacheResponseRequest struct {
	URL        string          `json:"url" validate:"required"`
	Data       json.RawMessage `json:"data" validate:"required"`
	TTLSeconds int             `json:"ttl_seconds" validate:"gte=0"`
}

// Put caches a response body for url. A zero ttl uses the default of one hour.
func (h *APICacheHandler) Put(c *gin.Context) {
	var req cacheResponseRequest
	if !bind(c, &req) {
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	envelope, err := h.client.CacheAPIResponse(c.Request.Context(), req.URL, req.Data, ttl)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, envelope)
}

// Get returns the cached body for ?url= while it is fresh.
func (h *APICacheHandler) Get(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		response.Error(c, appErrors.NewBadRequest("url is required"))
		return
	}

	data, ok, err := h.client.GetCachedAPIResponse(c.Request.Context(), url)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, appErrors.ErrNotFound.WithMessage("no fresh cached response"))
		return
	}
	response.Success(c, http.StatusOK, data)
}
