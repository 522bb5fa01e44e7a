package router

import (
	"sdrwatch/app/handler"
	"sdrwatch/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	statusHandler   *handler.StatusHandler
	precheckHandler *handler.PrecheckHandler
	refreshHandler  *handler.RefreshHandler
	wsHandler       *handler.WSHandler
}

// NewRouter creates a new Router
func NewRouter(statusHandler *handler.StatusHandler, precheckHandler *handler.PrecheckHandler, refreshHandler *handler.RefreshHandler, wsHandler *handler.WSHandler) *Router {
	return &Router{
		statusHandler:   statusHandler,
		precheckHandler: precheckHandler,
		refreshHandler:  refreshHandler,
		wsHandler:       wsHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// V1 API - status checks and fleet management
	v1 := engine.Group("/v1")
	{
		// On-demand checks
		v1.POST("/check", r.statusHandler.Check)
		v1.POST("/check/batch", r.statusHandler.CheckBatch)
		v1.GET("/cache/stats", r.statusHandler.CacheStats)

		// Fleet registry (persisted state with uptime aggregates)
		v1.GET("/receivers", r.statusHandler.ListReceivers)
		v1.GET("/receivers/history", r.statusHandler.ReceiverHistory)
		v1.GET("/cycles", r.statusHandler.ListCycles)

		// Full-fleet precheck
		precheck := v1.Group("/precheck")
		{
			precheck.POST("", r.precheckHandler.Start)
			precheck.GET("/status", r.precheckHandler.Status)
			precheck.GET("/since", r.precheckHandler.Since)
			precheck.POST("/cancel", r.precheckHandler.Cancel)
		}

		// Auto-refresh scheduler; mutations sit behind token auth
		refresh := v1.Group("/refresh")
		{
			refresh.GET("/status", r.refreshHandler.Status)

			controlled := refresh.Group("")
			controlled.Use(middleware.AuthMiddleware())
			{
				controlled.POST("/force", r.refreshHandler.Force)
				controlled.POST("/stop", r.refreshHandler.Stop)
			}
		}
	}

	// Live precheck progress stream
	engine.GET("/ws/precheck", r.wsHandler.PrecheckStream)

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
