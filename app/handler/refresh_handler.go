package handler

import (
	"net/http"

	"sdrwatch/internal/service"

	"github.com/gin-gonic/gin"
)

// RefreshHandler serves auto-refresh scheduler operations
type RefreshHandler struct {
	refreshService *service.RefreshService
}

// NewRefreshHandler creates a new refresh handler
func NewRefreshHandler(refreshService *service.RefreshService) *RefreshHandler {
	return &RefreshHandler{refreshService: refreshService}
}

// Status reports the scheduler state
// GET /v1/refresh/status
func (h *RefreshHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.refreshService.Status())
}

// Force starts a refresh cycle immediately, rejected while one runs
// POST /v1/refresh/force
func (h *RefreshHandler) Force(c *gin.Context) {
	jobID, err := h.refreshService.ForceRefresh()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// Stop disarms the scheduler; a cycle in flight still finishes
// POST /v1/refresh/stop
func (h *RefreshHandler) Stop(c *gin.Context) {
	c.JSON(http.StatusOK, h.refreshService.Stop())
}
