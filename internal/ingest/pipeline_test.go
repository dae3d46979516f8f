package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jack-merrell/offley.fm/internal/catalog"
	"github.com/jack-merrell/offley.fm/internal/config"
	"github.com/jack-merrell/offley.fm/internal/storage"
)

type fakeTranscoder struct {
	fail  bool
	calls int
}

func (f *fakeTranscoder) Transcode(input, output string) error {
	f.calls++
	if f.fail {
		return errors.New("ffmpeg exploded")
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

// fakeTempo pops one scripted result per call.
type fakeTempo struct {
	mu      sync.Mutex
	results []int // 0 means "fail this call"
	calls   int
}

func (f *fakeTempo) Estimate(trackPath string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return 0, errors.New("no estimate")
	}
	r := f.results[0]
	f.results = f.results[1:]
	if r == 0 {
		return 0, errors.New("bpm unavailable")
	}
	return r, nil
}

func newTestPipeline(t *testing.T, tr Transcoder, te TempoEstimator) (*Pipeline, *catalog.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.TempDir = t.TempDir()
	cfg.Ingest.TempoRetryMS = 10

	store := storage.NewWithProvider(storage.NewLocalProvider(t.TempDir()), "archive", "assets")
	cat := catalog.NewStore(store)

	p := New(cfg, store, cat, nil, tr, te)
	p.Geocode = nil
	return p, cat
}

func testSubmission(t *testing.T, title, freq string) Submission {
	t.Helper()
	dir := t.TempDir()

	audioPath := filepath.Join(dir, "upload.mp3")
	if err := os.WriteFile(audioPath, []byte("not really mpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	artPath := filepath.Join(dir, "cover.jpg")
	if err := os.WriteFile(artPath, []byte("not really jpeg"), 0644); err != nil {
		t.Fatal(err)
	}

	return Submission{
		Title:     title,
		Frequency: freq,
		Tags:      []string{"ambient", "Ambient", "polka"},
		AudioPath: audioPath,
		AudioName: "upload.mp3",
		ArtPath:   artPath,
		ArtName:   "cover.jpg",
	}
}

func TestIngestHappyPath(t *testing.T) {
	p, cat := newTestPipeline(t, &fakeTranscoder{}, &fakeTempo{results: []int{121}})

	var percents []int
	st, err := p.Ingest(testSubmission(t, "Night Swim FM", "91.5"), func(pct int, stage string) {
		percents = append(percents, pct)
	})
	if err != nil {
		t.Fatal(err)
	}

	if st.ID != "night-swim-fm" {
		t.Errorf("id not derived from title: %q", st.ID)
	}
	if st.Frequency != "91.50" {
		t.Errorf("frequency not canonical: %q", st.Frequency)
	}
	if st.BPM != 121 {
		t.Errorf("bpm not set: %d", st.BPM)
	}
	if len(st.Tags) != 1 || st.Tags[0] != "ambient" {
		t.Errorf("tags not normalized: %v", st.Tags)
	}
	if st.Track == "" || st.Art == "" {
		t.Errorf("asset references missing: %+v", st)
	}

	doc, _ := cat.Read()
	if len(doc.Stations) != 1 {
		t.Fatalf("catalog should hold one station, got %d", len(doc.Stations))
	}

	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress went backwards: %v", percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("progress should end at 100: %v", percents)
	}
}

func TestIngestValidationFailure(t *testing.T) {
	p, cat := newTestPipeline(t, &fakeTranscoder{}, &fakeTempo{})

	sub := testSubmission(t, "", "91.5")
	_, err := p.Ingest(sub, nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}

	doc, _ := cat.Read()
	if len(doc.Stations) != 0 {
		t.Error("validation failure must not touch the catalog")
	}
}

func TestIngestTranscodeFailureAbortsBeforeCatalog(t *testing.T) {
	p, cat := newTestPipeline(t, &fakeTranscoder{fail: true}, &fakeTempo{})

	_, err := p.Ingest(testSubmission(t, "Pier End", "99.9"), nil)
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("want ErrTranscode, got %v", err)
	}

	doc, _ := cat.Read()
	if len(doc.Stations) != 0 {
		t.Error("transcode failure must abort before any catalog mutation")
	}
}

func TestIngestReingestSameIDIsIdempotent(t *testing.T) {
	p, cat := newTestPipeline(t, &fakeTranscoder{}, &fakeTempo{results: []int{121, 121}})

	for i := 0; i < 2; i++ {
		if _, err := p.Ingest(testSubmission(t, "Night Swim FM", "91.5"), nil); err != nil {
			t.Fatal(err)
		}
	}

	doc, _ := cat.Read()
	if len(doc.Stations) != 1 {
		t.Fatalf("re-ingest must yield exactly one entry, got %d", len(doc.Stations))
	}
}

func TestIngestOutOfOrderFrequenciesSortOnWrite(t *testing.T) {
	p, cat := newTestPipeline(t, &fakeTranscoder{}, &fakeTempo{results: []int{100, 100}})

	if _, err := p.Ingest(testSubmission(t, "Late Night", "90.10"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Ingest(testSubmission(t, "Dawn Chorus", "88.00"), nil); err != nil {
		t.Fatal(err)
	}

	doc, _ := cat.Read()
	if doc.Stations[0].Frequency != "88.00" || doc.Stations[1].Frequency != "90.10" {
		t.Errorf("catalog out of order: %+v", doc.Stations)
	}
}

func TestArchiveOverwrittenAcrossContainerFormats(t *testing.T) {
	provider := storage.NewLocalProvider(t.TempDir())
	store := storage.NewWithProvider(provider, "archive", "assets")
	cat := catalog.NewStore(store)

	cfg := &config.Config{}
	cfg.Server.TempDir = t.TempDir()
	cfg.Ingest.TempoRetryMS = 10

	p := New(cfg, store, cat, nil, &fakeTranscoder{}, &fakeTempo{results: []int{100, 100}})
	p.Geocode = nil

	first := testSubmission(t, "Night Swim FM", "91.5")
	first.AudioName = "session.wav"
	if _, err := p.Ingest(first, nil); err != nil {
		t.Fatal(err)
	}

	// Same station, different upload container: the archive must hold
	// one object per station, not one per format.
	second := testSubmission(t, "Night Swim FM", "91.5")
	second.AudioName = "session.mp3"
	if _, err := p.Ingest(second, nil); err != nil {
		t.Fatal(err)
	}

	keys, err := provider.List("archive", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "night-swim-fm" {
		t.Errorf("archive should hold exactly night-swim-fm, got %v", keys)
	}
}

func TestTempoRetryPatchesBPM(t *testing.T) {
	tempo := &fakeTempo{results: []int{0, 117}} // fail once, then succeed
	p, cat := newTestPipeline(t, &fakeTranscoder{}, tempo)

	st, err := p.Ingest(testSubmission(t, "Night Swim FM", "91.5"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.BPM != 0 {
		t.Fatalf("first estimate should have failed, got bpm %d", st.BPM)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		doc, _ := cat.Read()
		got, _ := doc.Find("night-swim-fm")
		if got.BPM == 117 {
			doc.Sort()
			if doc.Stations[0].ID != got.ID {
				t.Error("catalog lost its sort after the bpm patch")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("retry never patched bpm (estimator calls: %d)", tempo.calls)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIngestGeocodesAreaWhenCoordinatesAbsent(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeTranscoder{}, &fakeTempo{results: []int{100}})
	p.Geocode = func(area string) (*catalog.Location, error) {
		return &catalog.Location{Lat: 51.949463, Lon: -0.278611}, nil
	}

	sub := testSubmission(t, "Pier End", "99.9")
	sub.Area = "Hitchin, UK"
	st, err := p.Ingest(sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Location == nil || st.Location.Lat != 51.949463 {
		t.Errorf("area not geocoded: %+v", st.Location)
	}
}
