package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/jack-merrell/offley.fm/internal/storage"
)

// AssetHandler streams published loops and artwork out of storage.
type AssetHandler struct {
	storage *storage.Client
}

func NewAssetHandler(store *storage.Client) *AssetHandler {
	return &AssetHandler{storage: store}
}

func (h *AssetHandler) StreamAudio(c *gin.Context) {
	h.stream(c, "audio/"+path.Base(c.Param("file")))
}

func (h *AssetHandler) StreamArt(c *gin.Context) {
	h.stream(c, "art/"+path.Base(c.Param("file")))
}

func (h *AssetHandler) stream(c *gin.Context, key string) {
	obj, err := h.storage.DownloadAsset(key)
	if err != nil {
		if storage.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such asset"})
			return
		}
		slog.Error("Failed to fetch asset", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	// Always close the storage stream to prevent connection leaks.
	defer obj.Body.Close()
	if seeker, ok := obj.Body.(io.ReadSeeker); ok {
		c.Header("Cache-Control", "public, max-age=31536000")
		http.ServeContent(c.Writer, c.Request, path.Base(key), obj.LastModified, seeker)
		return
	}

	// Fallback for non-seekable streams.
	extraHeaders := map[string]string{
		"Cache-Control": "public, max-age=31536000",
		"Accept-Ranges": "none",
	}
	c.DataFromReader(http.StatusOK, obj.ContentLength, obj.ContentType, obj.Body, extraHeaders)
}
