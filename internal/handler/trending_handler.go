package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shortforge/trending-pipeline/internal/models"
)

// CatalogService is the catalog builder surface the trending routes use.
type CatalogService interface {
	Fetch(ctx context.Context, p models.Platform, niche string, maxResults int) ([]*models.TrendingVideo, error)
	Top(ctx context.Context, p models.Platform, niche string, limit int) ([]*models.TrendingVideo, error)
}

// TrendingHandler serves trending catalog queries.
type TrendingHandler struct {
	catalog CatalogService
}

// NewTrendingHandler creates a new TrendingHandler instance.
func NewTrendingHandler(catalog CatalogService) *TrendingHandler {
	return &TrendingHandler{catalog: catalog}
}

// Register mounts the trending routes on rg.
func (h *TrendingHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/trending", h.Fetch)
	rg.GET("/trending/top", h.Top)
}

// Fetch runs a live fetch: GET /trending?platform=&niche=&maxResults=
func (h *TrendingHandler) Fetch(c *gin.Context) {
	n, ok := intQuery(c, "maxResults")
	if !ok {
		return
	}

	videos, err := h.catalog.Fetch(c.Request.Context(), models.Platform(c.Query("platform")), c.Query("niche"), n)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, videos)
}

// Top reads the latest persisted batch: GET /trending/top?platform=&niche=&limit=
func (h *TrendingHandler) Top(c *gin.Context) {
	n, ok := intQuery(c, "limit")
	if !ok {
		return
	}

	videos, err := h.catalog.Top(c.Request.Context(), models.Platform(c.Query("platform")), c.Query("niche"), n)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, videos)
}

// intQuery reads an optional non-negative integer query parameter. Absent
// means 0, which the catalog treats as its default.
func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(c, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
