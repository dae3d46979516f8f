package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jack-merrell/offley.fm/internal/catalog"
	"github.com/jack-merrell/offley.fm/internal/config"
	database "github.com/jack-merrell/offley.fm/internal/db"
	"github.com/jack-merrell/offley.fm/internal/ingest"
	"github.com/jack-merrell/offley.fm/internal/phase"
	"github.com/jack-merrell/offley.fm/internal/presence"
	"github.com/jack-merrell/offley.fm/internal/storage"
)

type copyTranscoder struct{ fail bool }

func (f *copyTranscoder) Transcode(input, output string) error {
	if f.fail {
		return errors.New("ffmpeg exploded")
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

type fixedTempo struct{ bpm int }

func (f *fixedTempo) Estimate(string) (int, error) {
	if f.bpm == 0 {
		return 0, errors.New("bpm unavailable")
	}
	return f.bpm, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *catalog.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.TempDir = t.TempDir()
	cfg.Ingest.TempoRetryMS = 10
	cfg.Presence.TTLMS = 45000

	store := storage.NewWithProvider(storage.NewLocalProvider(t.TempDir()), "archive", "assets")
	cat := catalog.NewStore(store)
	tracker := presence.New(&phase.RealClock{}, 45*time.Second)
	db := database.NewInMemory()
	db.AutoMigrate()

	pipeline := ingest.New(cfg, store, cat, db, &copyTranscoder{}, &fixedTempo{bpm: 120})
	pipeline.Geocode = nil

	srv := New(cfg, cat, pipeline, tracker, store, db)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, cat
}

func multipartSubmission(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	audio, err := w.CreateFormFile("audio", "upload.mp3")
	if err != nil {
		t.Fatal(err)
	}
	audio.Write([]byte("not really mpeg"))
	art, err := w.CreateFormFile("art", "cover.jpg")
	if err != nil {
		t.Fatal(err)
	}
	art.Write([]byte("not really jpeg"))

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
}

func TestCreateAndListStations(t *testing.T) {
	ts, _ := newTestServer(t)

	body, contentType := multipartSubmission(t, map[string]string{
		"title":     "Night Swim FM",
		"frequency": "91.5",
		"tags":      "ambient, jazz",
	})
	resp, err := http.Post(ts.URL+"/api/stations", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("create = %d: %s", resp.StatusCode, raw)
	}

	var created catalog.Station
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID != "night-swim-fm" || created.Frequency != "91.50" || created.BPM != 120 {
		t.Errorf("unexpected station: %+v", created)
	}

	list, err := http.Get(ts.URL + "/api/stations")
	if err != nil {
		t.Fatal(err)
	}
	defer list.Body.Close()
	var doc catalog.Document
	if err := json.NewDecoder(list.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Stations) != 1 || doc.Stations[0].ID != "night-swim-fm" {
		t.Errorf("catalog listing wrong: %+v", doc)
	}
}

func TestCreateStationValidationError(t *testing.T) {
	ts, _ := newTestServer(t)

	body, contentType := multipartSubmission(t, map[string]string{
		"frequency": "91.5", // no title
	})
	resp, err := http.Post(ts.URL+"/api/stations", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("validation error should be 400, got %d", resp.StatusCode)
	}
}

func TestCreateStationStreamsNDJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	body, contentType := multipartSubmission(t, map[string]string{
		"title":     "Pier End",
		"frequency": "99.9",
	})
	resp, err := http.Post(ts.URL+"/api/stations?stream=1", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-ndjson") {
		t.Fatalf("content type = %q", ct)
	}

	var events []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}

	if len(events) < 2 {
		t.Fatalf("want progress events plus a result, got %v", events)
	}
	last := events[len(events)-1]
	if last["type"] != "result" {
		t.Fatalf("stream should end with a result event, got %v", last)
	}
	for _, ev := range events[:len(events)-1] {
		if ev["type"] != "progress" {
			t.Errorf("unexpected event before result: %v", ev)
		}
	}
}

func TestSyncAndListeners(t *testing.T) {
	ts, _ := newTestServer(t)

	hb := func(clientID string) int {
		t.Helper()
		body, _ := json.Marshal(map[string]string{"station": "dusk", "clientId": clientID})
		resp, err := http.Post(ts.URL+"/api/sync", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out struct {
			Listeners int `json:"listeners"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out.Listeners
	}

	if n := hb("a"); n != 1 {
		t.Errorf("lone listener = %d, want 1", n)
	}
	if n := hb("b"); n != 2 {
		t.Errorf("two listeners = %d, want 2", n)
	}

	resp, err := http.Get(ts.URL + "/api/listeners?station=dusk")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Listeners int `json:"listeners"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Listeners != 2 {
		t.Errorf("listeners = %d, want 2", out.Listeners)
	}
}

func TestSyncRejectsIncompleteBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/sync", "application/json", strings.NewReader(`{"station":"dusk"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing clientId should be 400, got %d", resp.StatusCode)
	}
}

func TestAssetStreaming(t *testing.T) {
	ts, _ := newTestServer(t)

	body, contentType := multipartSubmission(t, map[string]string{
		"title":     "Night Swim FM",
		"frequency": "91.5",
	})
	resp, err := http.Post(ts.URL+"/api/stations", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	audio, err := http.Get(ts.URL + "/audio/night-swim-fm.mp3?v=1")
	if err != nil {
		t.Fatal(err)
	}
	defer audio.Body.Close()
	if audio.StatusCode != http.StatusOK {
		t.Fatalf("audio stream = %d", audio.StatusCode)
	}
	data, _ := io.ReadAll(audio.Body)
	if string(data) != "not really mpeg" {
		t.Errorf("audio bytes mangled: %q", data)
	}

	missing, err := http.Get(ts.URL + "/audio/nobody.mp3")
	if err != nil {
		t.Fatal(err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing asset = %d, want 404", missing.StatusCode)
	}
}

func TestIngestAuditLog(t *testing.T) {
	ts, _ := newTestServer(t)

	body, contentType := multipartSubmission(t, map[string]string{
		"title":     "Night Swim FM",
		"frequency": "91.5",
	})
	resp, err := http.Post(ts.URL+"/api/stations", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	audit, err := http.Get(ts.URL + "/api/ingests")
	if err != nil {
		t.Fatal(err)
	}
	defer audit.Body.Close()
	var out struct {
		Ingests []database.IngestEvent `json:"ingests"`
	}
	if err := json.NewDecoder(audit.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Ingests) != 1 || out.Ingests[0].Status != "ok" {
		t.Errorf("audit log wrong: %+v", out.Ingests)
	}
}
