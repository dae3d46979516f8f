// Package presence counts listeners per station from stateless
// heartbeats. No persistent connections: an entry lives until its TTL
// runs out, so the count is approximate and rebuilds itself from future
// heartbeats after any restart.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jack-merrell/offley.fm/internal/phase"
)

var listeners = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{Name: "radio_listeners", Help: "Approximate live listeners per station"},
	[]string{"station"},
)

func RegisterMetrics() {
	prometheus.MustRegister(listeners)
}

// Tracker keys entries by (station, clientID) -> last seen. Heartbeats
// to the same key are last-write-wins on the timestamp.
type Tracker struct {
	mu      sync.Mutex
	clock   phase.Clock
	ttl     time.Duration
	entries map[string]map[string]time.Time
}

func New(clock phase.Clock, ttl time.Duration) *Tracker {
	return &Tracker{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]map[string]time.Time),
	}
}

// Heartbeat refreshes one listener and returns the post-prune live
// count for the station. The caller's fresh entry is part of the count,
// so a lone listener sees 1.
func (t *Tracker) Heartbeat(station, clientID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	clients, ok := t.entries[station]
	if !ok {
		clients = make(map[string]time.Time)
		t.entries[station] = clients
	}
	clients[clientID] = now

	count := t.prune(station, now)
	listeners.WithLabelValues(station).Set(float64(count))
	return count
}

// Count returns the current live count without refreshing anyone.
func (t *Tracker) Count(station string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prune(station, t.clock.Now())
}

// prune drops expired entries; an emptied station is removed entirely so
// abandoned stations do not pin memory. Callers hold t.mu.
func (t *Tracker) prune(station string, now time.Time) int {
	clients, ok := t.entries[station]
	if !ok {
		return 0
	}
	for id, seen := range clients {
		if now.Sub(seen) > t.ttl {
			delete(clients, id)
		}
	}
	if len(clients) == 0 {
		delete(t.entries, station)
		listeners.DeleteLabelValues(station)
		return 0
	}
	return len(clients)
}

// Sweep prunes every known station, independent of queries.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	for station := range t.entries {
		if n := t.prune(station, now); n > 0 {
			listeners.WithLabelValues(station).Set(float64(n))
		}
	}
}

// Run sweeps in the background until the context ends.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Presence sweep running every %s (TTL %s)", interval, t.ttl)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
