package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jack-merrell/offley.fm/internal/audio"
	"github.com/jack-merrell/offley.fm/internal/catalog"
	"github.com/jack-merrell/offley.fm/internal/ingest"
)

// StationHandler owns the public catalog read and the admin write path.
type StationHandler struct {
	catalog  *catalog.Store
	pipeline *ingest.Pipeline
	tempDir  string
}

func NewStationHandler(cat *catalog.Store, pipeline *ingest.Pipeline, tempDir string) *StationHandler {
	return &StationHandler{catalog: cat, pipeline: pipeline, tempDir: tempDir}
}

// GetStations serves the catalog document exactly as persisted, already
// sorted by frequency.
func (h *StationHandler) GetStations(c *gin.Context) {
	doc, err := h.catalog.Read()
	if err != nil {
		slog.Error("Failed to read catalog", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// CreateStation ingests a multipart admin upload. With ?stream=1 the
// response is NDJSON progress events ending in a result or error event;
// otherwise a single JSON document when the pipeline finishes.
func (h *StationHandler) CreateStation(c *gin.Context) {
	sub, cleanup, err := h.parseSubmission(c)
	defer cleanup()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("stream") == "1" {
		h.ingestStreaming(c, sub)
		return
	}

	st, err := h.pipeline.Ingest(sub, nil)
	if err != nil {
		c.JSON(ingestStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, st)
}

// ingestStreaming writes one NDJSON line per progress step. The HTTP
// status is committed before the pipeline runs, so failures surface as
// an error event rather than a status code.
func (h *StationHandler) ingestStreaming(c *gin.Context, sub ingest.Submission) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	emit := func(ev any) {
		if err := enc.Encode(ev); err != nil {
			return
		}
		c.Writer.Flush()
	}

	st, err := h.pipeline.Ingest(sub, func(pct int, stage string) {
		emit(gin.H{"type": "progress", "percent": pct, "stage": stage})
	})
	if err != nil {
		emit(gin.H{"type": "error", "error": err.Error()})
		return
	}
	emit(gin.H{"type": "result", "station": st})
}

// Analyze sniffs embedded tags from an uploaded audio file so the admin
// form can pre-fill title and host before the real ingest.
func (h *StationHandler) Analyze(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}

	path, err := h.spool(fileHeader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not buffer upload"})
		return
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not buffer upload"})
		return
	}
	defer f.Close()

	tags, err := audio.ReadTags(f)
	if err != nil {
		// No tags is not an error worth failing the form over.
		c.JSON(http.StatusOK, gin.H{"title": "", "host": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"title": tags.Title,
		"host":  tags.Artist,
		"genre": tags.Genre,
	})
}

// parseSubmission spools the multipart parts to temp files. The caller
// always runs cleanup, which removes whatever was spooled.
func (h *StationHandler) parseSubmission(c *gin.Context) (ingest.Submission, func(), error) {
	var spooled []string
	cleanup := func() {
		for _, p := range spooled {
			os.Remove(p)
		}
	}

	sub := ingest.Submission{
		ID:        c.PostForm("id"),
		Title:     c.PostForm("title"),
		Host:      c.PostForm("host"),
		Frequency: c.PostForm("frequency"),
		Area:      c.PostForm("area"),
	}

	if tags := c.PostForm("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			sub.Tags = append(sub.Tags, strings.TrimSpace(tag))
		}
	}
	if signal := c.PostForm("signal"); signal != "" {
		n, err := strconv.Atoi(signal)
		if err != nil {
			return sub, cleanup, fmt.Errorf("invalid signal %q", signal)
		}
		sub.Signal = n
	}
	if lat, lon := c.PostForm("lat"), c.PostForm("lon"); lat != "" && lon != "" {
		latF, err1 := strconv.ParseFloat(lat, 64)
		lonF, err2 := strconv.ParseFloat(lon, 64)
		if err1 != nil || err2 != nil {
			return sub, cleanup, fmt.Errorf("invalid coordinates %q,%q", lat, lon)
		}
		sub.Lat, sub.Lon = &latF, &lonF
	}

	audioHeader, err := c.FormFile("audio")
	if err != nil {
		return sub, cleanup, fmt.Errorf("audio file is required")
	}
	audioPath, err := h.spool(audioHeader)
	if err != nil {
		return sub, cleanup, err
	}
	spooled = append(spooled, audioPath)
	sub.AudioPath, sub.AudioName = audioPath, audioHeader.Filename

	artHeader, err := c.FormFile("art")
	if err != nil {
		return sub, cleanup, fmt.Errorf("art file is required")
	}
	artPath, err := h.spool(artHeader)
	if err != nil {
		return sub, cleanup, err
	}
	spooled = append(spooled, artPath)
	sub.ArtPath, sub.ArtName = artPath, artHeader.Filename

	return sub, cleanup, nil
}

func (h *StationHandler) spool(header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(h.tempDir, "upload_*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	log.Printf("📥 Spooled %s (%d bytes)", header.Filename, header.Size)
	return tmp.Name(), nil
}

func ingestStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrTranscode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
