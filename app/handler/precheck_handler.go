package handler

import (
	"net/http"
	"strconv"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/internal/service"

	"github.com/gin-gonic/gin"
)

// PrecheckHandler serves full-fleet batch precheck operations
type PrecheckHandler struct {
	refreshService *service.RefreshService
}

// NewPrecheckHandler creates a new precheck handler
func NewPrecheckHandler(refreshService *service.RefreshService) *PrecheckHandler {
	return &PrecheckHandler{refreshService: refreshService}
}

// Start registers the fleet and launches a full scan
// POST /v1/precheck
func (h *PrecheckHandler) Start(c *gin.Context) {
	var req model.PrecheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, total, err := h.refreshService.StartPrecheck(req.Receivers)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":    jobID,
		"total":     total,
		"submitted": len(req.Receivers),
	})
}

// Status reports the current (or a specific) precheck job
// GET /v1/precheck/status?job_id=...
func (h *PrecheckHandler) Status(c *gin.Context) {
	snap, ok := h.refreshService.PrecheckStatus(c.Query("job_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such precheck job"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Since returns only results recorded after the given unix-millisecond
// timestamp, for incremental polling
// GET /v1/precheck/since?ts=1716899000000
func (h *PrecheckHandler) Since(c *gin.Context) {
	tsParam := c.Query("ts")
	var since time.Time
	if tsParam != "" {
		ms, err := strconv.ParseInt(tsParam, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ts must be unix milliseconds"})
			return
		}
		since = time.UnixMilli(ms)
	}

	snap, ok := h.refreshService.PrecheckResultsSince(since)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no precheck job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":    snap.JobID,
		"total":     snap.Total,
		"checked":   snap.Checked,
		"running":   snap.Running,
		"cancelled": snap.Cancelled,
		"results":   snap.Results,
		"ts":        time.Now().UnixMilli(),
	})
}

// Cancel aborts the live precheck job
// POST /v1/precheck/cancel
func (h *PrecheckHandler) Cancel(c *gin.Context) {
	if !h.refreshService.CancelPrecheck() {
		c.JSON(http.StatusConflict, gin.H{"error": "no precheck job running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}
