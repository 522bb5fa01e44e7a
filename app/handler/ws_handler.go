package handler

import (
	"net/http"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/internal/service"
	"sdrwatch/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, production should use stricter checks
	},
}

// precheckStreamer is the slice of the refresh service the stream
// polls for incremental results.
type precheckStreamer interface {
	PrecheckResultsSince(since time.Time) (model.BatchSnapshot, bool)
}

var _ precheckStreamer = (*service.RefreshService)(nil)

// WSHandler streams live precheck progress over a websocket
type WSHandler struct {
	refreshService precheckStreamer
	pollInterval   time.Duration
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(refreshService precheckStreamer) *WSHandler {
	return &WSHandler{
		refreshService: refreshService,
		pollInterval:   time.Second,
	}
}

// PrecheckStream pushes incremental precheck results until the job
// settles or the client disconnects. Each frame carries only results
// recorded since the previous frame.
// GET /ws/precheck
func (h *WSHandler) PrecheckStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("failed to upgrade to websocket: %v", err)
		return
	}
	defer ws.Close()

	// Drain client frames so close messages are processed
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	lastSent := time.Time{}
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		// The cursor is captured before the poll. A result recorded
		// while the poll runs may then appear in two frames, but can
		// never fall between frames.
		cursor := time.Now()
		snap, ok := h.refreshService.PrecheckResultsSince(lastSent)
		if !ok {
			if err := ws.WriteJSON(gin.H{"error": "no precheck job"}); err != nil {
				return
			}
			continue
		}
		lastSent = cursor

		if err := ws.WriteJSON(snap); err != nil {
			return
		}
		if !snap.Running {
			// Final frame sent, close cleanly
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "precheck finished"))
			return
		}
	}
}
