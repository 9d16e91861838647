package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/internal/syncer"
	appErrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/response"
)

var errSyncUnavailable = appErrors.New("SYNC_UNAVAILABLE", "Synchronisation is not configured", http.StatusServiceUnavailable)

// Synchronizer runs a sync pass.
type Synchronizer interface {
	Synchronize(ctx context.Context) (syncer.Report, error)
}

// SyncHandler exposes the sync queue, manual synchronisation and store housekeeping.
type SyncHandler struct {
	client *offline.Client
	engine Synchronizer
}

// NewSyncHandler constructs a sync handler. engine may be nil, in which case manual
// synchronisation answers 503.
func NewSyncHandler(client *offline.Client, engine Synchronizer) (*SyncHandler, error) {
	if client == nil {
		return nil, errors.New("sync handler: offline client is required")
	}
	return &SyncHandler{client: client, engine: engine}, nil
}

type enqueueRequest struct {
	Type     string          `json:"type" validate:"required,oneof=create update delete"`
	Endpoint string          `json:"endpoint" validate:"required,endpoint"`
	Payload  json.RawMessage `json:"payload"`
}

// Enqueue appends a generic operation to the sync queue.
func (h *SyncHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if !bind(c, &req) {
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	op, err := h.client.EnqueueSyncOperation(c.Request.Context(), req.Type, req.Endpoint, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, op)
}

// Stalled lists operations that exhausted their retries.
func (h *SyncHandler) Stalled(c *gin.Context) {
	ops, err := h.client.ListStalledOperations(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, ops, &response.Meta{Count: len(ops)})
}

// Synchronize runs a pass and returns its report. A pass skipped while offline still answers 200.
func (h *SyncHandler) Synchronize(c *gin.Context) {
	if h.engine == nil {
		response.Error(c, errSyncUnavailable)
		return
	}

	report, err := h.engine.Synchronize(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, report, &response.Meta{Offline: report.Skipped})
}

// Stats reports row counts per table.
func (h *SyncHandler) Stats(c *gin.Context) {
	stats, err := h.client.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// Cleanup purges expired API cache entries and prunes listings.
func (h *SyncHandler) Cleanup(c *gin.Context) {
	result, err := h.client.Cleanup(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
