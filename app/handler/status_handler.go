package handler

import (
	"net/http"
	"strconv"

	"sdrwatch/internal/model"
	"sdrwatch/internal/service"
	"sdrwatch/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusHandler serves on-demand receiver checks and cache statistics
type StatusHandler struct {
	statusService  *service.StatusService
	persistService *service.PersistService
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(statusService *service.StatusService, persistService *service.PersistService) *StatusHandler {
	return &StatusHandler{
		statusService:  statusService,
		persistService: persistService,
	}
}

// Check probes a single receiver
// POST /v1/check
func (h *StatusHandler) Check(c *gin.Context) {
	var req model.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.statusService.CheckStatus(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// CheckBatch probes a small ad-hoc batch
// POST /v1/check/batch
func (h *StatusHandler) CheckBatch(c *gin.Context) {
	var req model.CheckBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.statusService.CheckBatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"results": results,
	})
}

// CacheStats reports result cache effectiveness
// GET /v1/cache/stats
func (h *StatusHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusService.CacheStats())
}

// ListReceivers returns the persisted fleet registry with rolling
// uptime aggregates
// GET /v1/receivers
func (h *StatusHandler) ListReceivers(c *gin.Context) {
	if !h.persistService.Enabled() {
		c.JSON(http.StatusOK, gin.H{"count": 0, "receivers": []struct{}{}, "persistence": "disabled"})
		return
	}

	receivers, err := h.persistService.ListReceivers(c.Request.Context())
	if err != nil {
		logger.Errorf("failed to list receivers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(receivers),
		"receivers": receivers,
	})
}

// ReceiverHistory returns the recorded check history of one receiver
// plus its live 24h window uptime
// GET /v1/receivers/history?url=...&limit=100
func (h *StatusHandler) ReceiverHistory(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	out, err := h.persistService.GetReceiverHistory(c.Request.Context(), rawURL, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListCycles returns the most recent scan cycles, newest first
// GET /v1/cycles?limit=50
func (h *StatusHandler) ListCycles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	cycles, err := h.persistService.ListRecentCycles(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("failed to list scan cycles: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(cycles),
		"cycles": cycles,
	})
}
