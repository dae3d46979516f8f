// Package player drives one audio output from wall-clock time. The
// controller owns a small state machine for tuning, switching and
// resync; it never signals other listeners, it only chases the shared
// phase the clock implies.
package player

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jack-merrell/offley.fm/internal/catalog"
	"github.com/jack-merrell/offley.fm/internal/phase"
)

type State int

const (
	StateUntuned State = iota
	StateTuning
	StatePlaying
	StateTransitioning
	StateMutedFallback
)

func (s State) String() string {
	switch s {
	case StateUntuned:
		return "UNTUNED"
	case StateTuning:
		return "TUNING"
	case StatePlaying:
		return "PLAYING"
	case StateTransitioning:
		return "TRANSITIONING"
	case StateMutedFallback:
		return "MUTED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrTrackLoad       = errors.New("track load error")
	ErrMetadataTimeout = errors.New("track metadata timeout")
)

// Output loads station assets into playable handles.
type Output interface {
	// Load fetches the asset and blocks until duration metadata is
	// known, or until ctx expires.
	Load(ctx context.Context, ref string) (Handle, error)
}

// Handle is one loaded, seekable loop.
type Handle interface {
	Duration() time.Duration
	Seek(offset time.Duration) error
	Play() error
	Position() (time.Duration, error)
	Close() error
}

type Options struct {
	MetadataTimeout time.Duration // default 10s
	ResyncInterval  time.Duration // default 30s
	DriftThreshold  float64       // seconds, default 0.9
}

func (o *Options) fill() {
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = 10 * time.Second
	}
	if o.ResyncInterval <= 0 {
		o.ResyncInterval = 30 * time.Second
	}
	if o.DriftThreshold <= 0 {
		o.DriftThreshold = 0.9
	}
}

type Controller struct {
	out   Output
	clock phase.Clock
	opts  Options

	mu         sync.Mutex
	state      State
	station    catalog.Station
	tuned      bool
	handle     Handle
	generation uint64
}

func New(out Output, clock phase.Clock, opts Options) *Controller {
	opts.fill()
	return &Controller{out: out, clock: clock, opts: opts, state: StateUntuned}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Station returns the station this controller is (or was last) tuned
// to. It stays set in muted fallback so the synchronizer can still
// resolve it and retune when the broken asset is replaced.
func (c *Controller) Station() (catalog.Station, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.station, c.tuned
}

// TuneTo loads a station and starts it at the shared phase. Failures
// never propagate to the caller: the controller degrades to muted
// fallback instead. Every call stamps a new generation; if a newer tune
// starts before this one's metadata wait resolves, this one's result is
// discarded, never applied.
func (c *Controller) TuneTo(st catalog.Station) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	old := c.handle
	c.handle = nil
	if c.state == StatePlaying || c.state == StateTransitioning {
		c.state = StateTransitioning
	} else {
		c.state = StateTuning
	}
	c.station = st
	c.tuned = true
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.MetadataTimeout)
	defer cancel()
	h, err := c.out.Load(ctx, st.Track)

	c.mu.Lock()
	if gen != c.generation {
		// Superseded while loading: a stale continuation must not seek
		// the newly selected station.
		c.mu.Unlock()
		if h != nil {
			h.Close()
		}
		return
	}

	if err != nil {
		c.state = StateMutedFallback
		c.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("🔇 %s: %v (%v)", st.ID, ErrMetadataTimeout, err)
		} else {
			log.Printf("🔇 %s: %v (%v)", st.ID, ErrTrackLoad, err)
		}
		return
	}

	// Always a fresh phase for the new track; never carry over the old
	// track's position.
	duration := h.Duration()
	offset := phase.Compute(duration.Seconds(), c.clock.Now())
	if err := h.Seek(secondsToDuration(offset)); err == nil {
		err = h.Play()
	}
	if err != nil {
		c.state = StateMutedFallback
		c.mu.Unlock()
		h.Close()
		log.Printf("🔇 %s: %v (%v)", st.ID, ErrTrackLoad, err)
		return
	}

	c.handle = h
	c.state = StatePlaying
	c.mu.Unlock()
	log.Printf("📻 %s @ %.1fs of %.0fs loop", st.ID, offset, duration.Seconds())
}

// Resync compares the actual position against the expected phase and
// force-seeks when the circular drift exceeds the threshold. Buffering
// stalls and clock skew otherwise accumulate unbounded.
func (c *Controller) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying || c.handle == nil {
		return
	}

	duration := c.handle.Duration().Seconds()
	expected := phase.Compute(duration, c.clock.Now())
	pos, err := c.handle.Position()
	if err != nil {
		return
	}

	if drift := phase.Drift(expected, pos.Seconds(), duration); drift > c.opts.DriftThreshold {
		log.Printf("⏩ drift %.2fs on %s, re-anchoring", drift, c.station.ID)
		_ = c.handle.Seek(secondsToDuration(expected))
	}
}

// Run periodically resyncs until the context ends.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.C:
			c.Resync()
		}
	}
}

func (c *Controller) Close() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.state = StateUntuned
	c.mu.Unlock()

	if h != nil {
		h.Close()
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
