package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	database "github.com/jack-merrell/offley.fm/internal/db"
)

// IngestLogHandler exposes the admin audit log of ingestion attempts.
type IngestLogHandler struct {
	db *database.Client
}

func NewIngestLogHandler(db *database.Client) *IngestLogHandler {
	return &IngestLogHandler{db: db}
}

func (h *IngestLogHandler) GetIngests(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-500"})
			return
		}
		limit = n
	}

	events, err := h.db.RecentIngests(limit)
	if err != nil {
		slog.Error("Failed to fetch ingest log", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit log unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ingests": events})
}
