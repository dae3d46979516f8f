// Package ingest admits new or edited stations into the shared catalog:
// archive -> transcode -> tempo estimate (best effort) -> artwork ->
// catalog upsert, with a detached one-shot retry for tempo enrichment.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jack-merrell/offley.fm/internal/audio"
	"github.com/jack-merrell/offley.fm/internal/catalog"
	"github.com/jack-merrell/offley.fm/internal/config"
	database "github.com/jack-merrell/offley.fm/internal/db"
	"github.com/jack-merrell/offley.fm/internal/storage"
)

var (
	ErrValidation = errors.New("validation error")
	ErrTranscode  = errors.New("transcode error")
)

var (
	jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_ingest_jobs_total",
			Help: "Total ingest jobs",
		},
		[]string{"status"},
	)
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radio_ingest_duration_seconds",
			Help:    "Processing time",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(jobs, jobDuration)
}

// Transcoder and TempoEstimator are the two out-of-process
// collaborators, injectable so tests can substitute fakes.
type Transcoder interface {
	Transcode(input, output string) error
}

type TempoEstimator interface {
	Estimate(trackPath string) (int, error)
}

// Progress reports a monotonically non-decreasing completion fraction
// with a stage label. Purely a UX affordance; may be nil.
type Progress func(percent int, stage string)

// Submission is one admin upload. Audio and art have already been
// spooled to temp files by the HTTP layer, which owns their cleanup.
type Submission struct {
	ID        string
	Title     string
	Host      string
	Frequency string
	Tags      []string
	Signal    int
	Lat, Lon  *float64
	Area      string // optional place name, geocoded when lat/lon absent

	AudioPath string
	AudioName string
	ArtPath   string
	ArtName   string
}

type Pipeline struct {
	tempDir    string
	storage    *storage.Client
	catalog    *catalog.Store
	db         *database.Client
	transcoder Transcoder
	tempo      TempoEstimator
	retryDelay time.Duration

	// Geocode resolves an area name to coordinates; best effort.
	Geocode func(area string) (*catalog.Location, error)
}

func New(cfg *config.Config, store *storage.Client, cat *catalog.Store, db *database.Client, tr Transcoder, te TempoEstimator) *Pipeline {
	return &Pipeline{
		tempDir:    cfg.Server.TempDir,
		storage:    store,
		catalog:    cat,
		db:         db,
		transcoder: tr,
		tempo:      te,
		retryDelay: time.Duration(cfg.Ingest.TempoRetryMS) * time.Millisecond,
		Geocode:    GeocodeArea,
	}
}

// Ingest runs the full pipeline and returns the station as persisted.
// Tempo estimation failure is non-fatal; every other step failure aborts
// before the catalog is touched.
func (p *Pipeline) Ingest(sub Submission, report Progress) (catalog.Station, error) {
	timer := prometheus.NewTimer(jobDuration)
	defer timer.ObserveDuration()

	step := func(pct int, stage string) {
		if report != nil {
			report(pct, stage)
		}
	}

	// 1. Validate
	step(5, "validate")
	st, err := p.validate(sub)
	if err != nil {
		p.fail("", sub, "validation_error", err)
		return catalog.Station{}, err
	}

	// 2. Archive the original, unmodified, keyed by station id alone so
	// a re-ingest overwrites the prior original even when the upload's
	// container format changed.
	step(15, "archive")
	if err := p.uploadFile(sub.AudioPath, func(f *os.File) error {
		return p.storage.UploadArchive(st.ID, f, "application/octet-stream")
	}); err != nil {
		p.fail(st.ID, sub, "archive_error", err)
		return catalog.Station{}, fmt.Errorf("archive: %w", err)
	}

	// 3. Transcode to the canonical loop format.
	step(45, "transcode")
	loopPath := filepath.Join(p.tempDir, "loop_"+st.ID+".mp3")
	defer os.Remove(loopPath)
	if err := p.transcoder.Transcode(sub.AudioPath, loopPath); err != nil {
		p.fail(st.ID, sub, "transcode_error", err)
		return catalog.Station{}, fmt.Errorf("%w: %v", ErrTranscode, err)
	}
	if err := audio.StampMP3(loopPath, st.Title, st.Host); err != nil {
		log.Printf("⚠️ Could not stamp %s: %v", st.ID, err)
	}

	// 4. Tempo estimation, best effort.
	step(60, "tempo")
	bpm, tempoErr := p.tempo.Estimate(loopPath)
	if tempoErr != nil {
		log.Printf("⚠️ Tempo estimation failed for %s (will retry once): %v", st.ID, tempoErr)
	} else {
		st.BPM = bpm
	}

	version := time.Now().UTC().Unix()

	// 5. Publish the loop.
	trackKey := "audio/" + st.ID + ".mp3"
	if err := p.uploadFile(loopPath, func(f *os.File) error {
		return p.storage.UploadAsset(trackKey, f, "audio/mpeg", "public, max-age=31536000")
	}); err != nil {
		p.fail(st.ID, sub, "publish_error", err)
		return catalog.Station{}, fmt.Errorf("publish track: %w", err)
	}
	st.Track = fmt.Sprintf("/%s?v=%d", trackKey, version)

	// 6. Artwork.
	step(75, "artwork")
	artKey := "art/" + st.ID + strings.ToLower(filepath.Ext(sub.ArtName))
	if err := p.uploadFile(sub.ArtPath, func(f *os.File) error {
		return p.storage.UploadAsset(artKey, f, artContentType(sub.ArtName), "public, max-age=31536000")
	}); err != nil {
		p.fail(st.ID, sub, "publish_error", err)
		return catalog.Station{}, fmt.Errorf("publish art: %w", err)
	}
	st.Art = fmt.Sprintf("/%s?v=%d", artKey, version)

	// 7. Catalog upsert (re-sorts on write).
	step(90, "catalog")
	final, err := p.catalog.Upsert(st)
	if err != nil {
		p.fail(st.ID, sub, "catalog_error", err)
		return catalog.Station{}, fmt.Errorf("catalog: %w", err)
	}

	jobs.WithLabelValues("success").Inc()
	p.db.RecordIngest(database.IngestEvent{
		StationID: final.ID, Title: final.Title, Frequency: final.Frequency,
		BPM: final.BPM, Status: "ok",
	})

	// 8. One detached tempo retry. Fire-and-forget: must never block or
	// fail this response.
	if tempoErr != nil {
		p.scheduleTempoRetry(final.ID)
	}

	step(100, "done")
	log.Printf("✅ INGESTED %s (%s MHz)", final.ID, final.Frequency)
	return final, nil
}

func (p *Pipeline) validate(sub Submission) (catalog.Station, error) {
	if strings.TrimSpace(sub.Title) == "" {
		return catalog.Station{}, fmt.Errorf("%w: missing title", ErrValidation)
	}

	id := strings.TrimSpace(sub.ID)
	if id == "" {
		id = catalog.Slugify(sub.Title)
	} else {
		id = catalog.Slugify(id)
	}
	if id == "" {
		return catalog.Station{}, fmt.Errorf("%w: cannot derive id from title %q", ErrValidation, sub.Title)
	}

	freq, err := catalog.NormalizeFrequency(sub.Frequency)
	if err != nil {
		return catalog.Station{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if sub.AudioPath == "" {
		return catalog.Station{}, fmt.Errorf("%w: missing audio file", ErrValidation)
	}
	if !audio.IsSupportedFormat(sub.AudioName) {
		return catalog.Station{}, fmt.Errorf("%w: unsupported audio format %q", ErrValidation, sub.AudioName)
	}
	if sub.ArtPath == "" {
		return catalog.Station{}, fmt.Errorf("%w: missing art file", ErrValidation)
	}
	if !audio.IsSupportedArtwork(sub.ArtName) {
		return catalog.Station{}, fmt.Errorf("%w: unsupported artwork %q", ErrValidation, sub.ArtName)
	}

	st := catalog.Station{
		ID:        id,
		Title:     strings.TrimSpace(sub.Title),
		Host:      strings.TrimSpace(sub.Host),
		Frequency: freq,
		Tags:      catalog.NormalizeTags(sub.Tags),
		Signal:    catalog.ClampSignal(sub.Signal),
	}

	if sub.Lat != nil && sub.Lon != nil {
		st.Location = &catalog.Location{
			Lat: catalog.RoundCoordinate(*sub.Lat),
			Lon: catalog.RoundCoordinate(*sub.Lon),
		}
	} else if sub.Area != "" && p.Geocode != nil {
		if loc, err := p.Geocode(sub.Area); err != nil {
			log.Printf("⚠️ Geocoding %q failed: %v", sub.Area, err)
		} else {
			st.Location = loc
		}
	}

	return st, nil
}

// scheduleTempoRetry re-runs estimation against the published asset
// after a fixed backoff and patches only the bpm. Exactly one attempt;
// failures are logged and dropped.
func (p *Pipeline) scheduleTempoRetry(id string) {
	time.AfterFunc(p.retryDelay, func() {
		if err := p.retryTempo(id); err != nil {
			log.Printf("⚠️ Tempo retry for %s gave up: %v", id, err)
		}
	})
}

func (p *Pipeline) retryTempo(id string) error {
	obj, err := p.storage.DownloadAsset("audio/" + id + ".mp3")
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	tmp, err := os.CreateTemp(p.tempDir, "tempo_retry_*.mp3")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, obj.Body); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	bpm, err := p.tempo.Estimate(tmp.Name())
	if err != nil {
		return err
	}

	if err := p.catalog.PatchBPM(id, bpm); err != nil {
		return err
	}
	log.Printf("✨ Tempo retry patched %s to %d BPM", id, bpm)
	return nil
}

func (p *Pipeline) fail(stationID string, sub Submission, status string, err error) {
	jobs.WithLabelValues("failure").Inc()
	p.db.RecordIngest(database.IngestEvent{
		StationID: stationID, Title: sub.Title, Frequency: sub.Frequency,
		Status: status, Detail: err.Error(),
	})
}

func (p *Pipeline) uploadFile(path string, put func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return put(f)
}

func artContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
