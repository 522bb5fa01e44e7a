package handler

import (
	"errors"
	"net/http"

	"sdrwatch/internal/service"

	"github.com/gin-gonic/gin"
)

// respondError maps service failures onto HTTP statuses: validation
// rejects with 400 before any probe, an exhausted check budget with
// 429, scheduler state conflicts with 409, unknown receivers with
// 404, everything else is a 500.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRefreshRunning),
		errors.Is(err, service.ErrRefreshNotStarted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrReceiverNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
