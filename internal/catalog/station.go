package catalog

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Station is one broadcast channel entry in the shared catalog.
type Station struct {
	ID        string    `json:"id"`
	Frequency string    `json:"frequency"` // canonical 2-decimal string, primary sort key
	Title     string    `json:"title"`
	Host      string    `json:"host,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Signal    int       `json:"signal,omitempty"` // clamped to [1,4]
	Track     string    `json:"track"`
	Art       string    `json:"art"`
	BPM       int       `json:"bpm,omitempty"` // may arrive asynchronously after creation
	Location  *Location `json:"location,omitempty"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Vocabulary is the fixed set of tags a station may carry.
var Vocabulary = []string{
	"ambient", "classical", "downtempo", "electronic", "experimental",
	"field", "jazz", "soul", "talk", "world",
}

const (
	MinSignal     = 1
	MaxSignal     = 4
	DefaultSignal = 2
)

// FormatFrequency renders a dial position in its canonical 2-decimal form.
func FormatFrequency(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// ParseFrequency accepts any decimal rendering ("88", "88.0", "88.00").
func ParseFrequency(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("bad frequency %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("bad frequency %q", s)
	}
	return f, nil
}

// NormalizeFrequency re-renders a frequency string canonically.
func NormalizeFrequency(s string) (string, error) {
	f, err := ParseFrequency(s)
	if err != nil {
		return "", err
	}
	return FormatFrequency(f), nil
}

// NormalizeTags filters tags down to the vocabulary, deduplicates, and
// sorts so tag sets compare order-insensitively.
func NormalizeTags(tags []string) []string {
	allowed := make(map[string]bool, len(Vocabulary))
	for _, v := range Vocabulary {
		allowed[v] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || !allowed[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ClampSignal forces a signal strength into [1,4]; zero (unset) takes
// the default.
func ClampSignal(s int) int {
	if s == 0 {
		s = DefaultSignal
	}
	if s < MinSignal {
		return MinSignal
	}
	if s > MaxSignal {
		return MaxSignal
	}
	return s
}

// RoundCoordinate truncates a lat/lon to 6 decimals.
func RoundCoordinate(c float64) float64 {
	return math.Round(c*1e6) / 1e6
}

var slugJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a stable station id from a title.
// "Night Swim FM!" -> "night-swim-fm"
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugJunk.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Validate checks the fields a station cannot live without. Entries
// failing validation are dropped by readers and rejected by the ingest
// pipeline.
func (s Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("station missing id")
	}
	if s.Title == "" {
		return fmt.Errorf("station %s missing title", s.ID)
	}
	if s.Track == "" {
		return fmt.Errorf("station %s missing track", s.ID)
	}
	if s.Art == "" {
		return fmt.Errorf("station %s missing art", s.ID)
	}
	if _, err := ParseFrequency(s.Frequency); err != nil {
		return fmt.Errorf("station %s: %w", s.ID, err)
	}
	return nil
}
