package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/internal/services"
	"github.com/charlesng35/dealcache/pkg/response"
)

const defaultDealAgeDays = 7

// ListingHandler exposes the listing and deal read-through caches.
type ListingHandler struct {
	client *offline.Client
}

// NewListingHandler constructs a listing handler.
func NewListingHandler(client *offline.Client) (*ListingHandler, error) {
	if client == nil {
		return nil, errors.New("listing handler: offline client is required")
	}
	return &ListingHandler{client: client}, nil
}

type cacheListingsRequest struct {
	Category string            `json:"category"`
	Items    []json.RawMessage `json:"items" validate:"required,min=1,max=500"`
}

type cacheDealRequest struct {
	Deal json.RawMessage `json:"deal" validate:"required"`
}

// CacheBatch stores a batch of listings. The whole batch is rejected when one item is malformed.
func (h *ListingHandler) CacheBatch(c *gin.Context) {
	var req cacheListingsRequest
	if !bind(c, &req) {
		return
	}

	rows, err := h.client.CacheListingBatch(c.Request.Context(), req.Items, req.Category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusCreated, rows, &response.Meta{
		Count:    len(rows),
		Category: strings.TrimSpace(req.Category),
	})
}

// List returns cached listings by recency, optionally restricted to a category.
func (h *ListingHandler) List(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))
	limit := queryInt(c, "limit", services.DefaultListingLimit)

	rows, err := h.client.GetCachedListings(c.Request.Context(), category, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rows, &response.Meta{
		Count:    len(rows),
		Limit:    limit,
		Category: category,
		Offline:  !h.client.Monitor().IsOnline(),
	})
}

// CacheDeal upserts a single deal.
func (h *ListingHandler) CacheDeal(c *gin.Context) {
	var req cacheDealRequest
	if !bind(c, &req) {
		return
	}

	row, err := h.client.CacheDeal(c.Request.Context(), req.Deal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, row)
}

// Deals returns the most recently updated deals.
func (h *ListingHandler) Deals(c *gin.Context) {
	limit := queryInt(c, "limit", services.DefaultListingLimit)

	rows, err := h.client.GetCachedDeals(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rows, &response.Meta{
		Count:   len(rows),
		Limit:   limit,
		Offline: !h.client.Monitor().IsOnline(),
	})
}

// ClearDeals removes deals not updated within ?days= days.
func (h *ListingHandler) ClearDeals(c *gin.Context) {
	days := queryInt(c, "days", defaultDealAgeDays)

	removed, err := h.client.ClearOldCache(c.Request.Context(), days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed, "days": days})
}
