package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jack-merrell/offley.fm/internal/presence"
)

// SyncHandler serves the presence endpoints: listener heartbeats and
// per-station counts.
type SyncHandler struct {
	tracker *presence.Tracker
}

func NewSyncHandler(tracker *presence.Tracker) *SyncHandler {
	return &SyncHandler{tracker: tracker}
}

// Sync records a heartbeat and returns the live listener count for the
// station, caller included.
func (h *SyncHandler) Sync(c *gin.Context) {
	var body struct {
		Station  string `json:"station" binding:"required"`
		ClientID string `json:"clientId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station and clientId are required"})
		return
	}

	count := h.tracker.Heartbeat(body.Station, body.ClientID)
	c.JSON(http.StatusOK, gin.H{
		"station":   body.Station,
		"listeners": count,
	})
}

// Listeners reports the current count without registering presence.
func (h *SyncHandler) Listeners(c *gin.Context) {
	station := c.Query("station")
	if station == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station query parameter is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station":   station,
		"listeners": h.tracker.Count(station),
	})
}
