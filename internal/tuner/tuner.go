// Package tuner keeps a listener's playback aligned with the published
// catalog: it polls the station list, re-resolves the current station
// by frequency then id, retunes when its assets change, and sends
// presence heartbeats while tuned.
package tuner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jack-merrell/offley.fm/internal/catalog"
)

// Consumer is the playback side the tuner drives.
type Consumer interface {
	TuneTo(st catalog.Station)
	Station() (catalog.Station, bool)
}

type Tuner struct {
	baseURL  string
	clientID string
	client   *http.Client
	consumer Consumer

	mu          sync.Mutex
	pendingFreq string // deep-link target, armed until a station at it is tuned
	stations    []catalog.Station
}

func New(baseURL, clientID string, consumer Consumer) *Tuner {
	return &Tuner{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
		consumer: consumer,
	}
}

// SetPendingFrequency arms a deep-link target. The target stays armed
// across polls until a station owning that frequency appears and is
// tuned; only that tune consumes it.
func (t *Tuner) SetPendingFrequency(freq string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingFreq = freq
}

// Stations returns the last successfully fetched catalog.
func (t *Tuner) Stations() []catalog.Station {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]catalog.Station(nil), t.stations...)
}

// Sync fetches the catalog and reconciles playback against it. A fetch
// failure leaves the previous catalog and playback untouched; the radio
// keeps looping on stale data rather than going silent.
func (t *Tuner) Sync(ctx context.Context) error {
	doc, err := t.fetch(ctx)
	if err != nil {
		return err
	}

	doc = doc.Valid()
	doc.Sort()

	t.mu.Lock()
	t.stations = doc.Stations
	pending := t.pendingFreq
	t.mu.Unlock()

	if pending != "" {
		if st, ok := doc.FindByFrequency(pending); ok {
			t.mu.Lock()
			// Re-check so a target re-armed mid-poll is not lost.
			if t.pendingFreq == pending {
				t.pendingFreq = ""
			}
			t.mu.Unlock()
			t.consumer.TuneTo(st)
			return nil
		}
		// Nobody owns that frequency yet. Keep the target armed: the
		// station may simply not be ingested yet.
		log.Printf("⚠️ No station at %s MHz yet", pending)
	}

	prev, tuned := t.consumer.Station()
	if !tuned {
		return nil
	}

	cur, ok := doc.Resolve(prev)
	if !ok {
		// Station withdrawn; keep the current loop running rather than
		// cutting to silence.
		return nil
	}

	if cur.Track != prev.Track || cur.Art != prev.Art {
		log.Printf("🔁 %s changed underneath us, retuning", cur.ID)
		t.consumer.TuneTo(cur)
	}
	return nil
}

// RunPoll drives Sync until the context ends. Failures are logged and
// swallowed.
func (t *Tuner) RunPoll(ctx context.Context, interval time.Duration) {
	if err := t.Sync(ctx); err != nil {
		log.Printf("⚠️ Catalog poll failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Sync(ctx); err != nil {
				log.Printf("⚠️ Catalog poll failed: %v", err)
			}
		}
	}
}

// Heartbeat reports presence for the currently tuned station and
// returns the live listener count, self included.
func (t *Tuner) Heartbeat(ctx context.Context) (int, error) {
	st, tuned := t.consumer.Station()
	if !tuned {
		return 0, nil
	}

	body, _ := json.Marshal(map[string]string{
		"station":  st.ID,
		"clientId": t.clientID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/sync", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("sync: status %d", resp.StatusCode)
	}

	var out struct {
		Station   string `json:"station"`
		Listeners int    `json:"listeners"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Listeners, nil
}

// RunHeartbeat reports presence on a fixed cadence until the context
// ends. The first beat fires immediately so a fresh listener shows up
// in the counts without waiting out a full interval.
func (t *Tuner) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if _, err := t.Heartbeat(ctx); err != nil {
		log.Printf("⚠️ Heartbeat failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Heartbeat(ctx); err != nil {
				log.Printf("⚠️ Heartbeat failed: %v", err)
			}
		}
	}
}

func (t *Tuner) fetch(ctx context.Context) (catalog.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/stations", nil)
	if err != nil {
		return catalog.Document{}, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return catalog.Document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return catalog.Document{}, fmt.Errorf("stations: status %d", resp.StatusCode)
	}

	var doc catalog.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return catalog.Document{}, err
	}
	return doc, nil
}
