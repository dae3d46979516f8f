package catalog

import (
	"reflect"
	"testing"
)

func station(id, freq string) Station {
	return Station{
		ID:        id,
		Frequency: freq,
		Title:     id,
		Track:     "/audio/" + id + ".mp3",
		Art:       "/art/" + id + ".jpg",
	}
}

func TestSortInvariant(t *testing.T) {
	doc := Document{Stations: []Station{
		station("zulu", "102.30"),
		station("alpha", "88.00"),
		station("mike", "91.50"),
		station("bravo", "91.50"), // tie on frequency, id decides
	}}
	doc.Sort()

	want := []string{"alpha", "bravo", "mike", "zulu"}
	for i, id := range want {
		if doc.Stations[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, doc.Stations[i].ID, id)
		}
	}
}

func TestUpsertOutOfOrderFrequencies(t *testing.T) {
	// Ingestions for 90.10 then 88.00 arrive out of order; the catalog
	// must still list 88.00 first.
	doc := Document{}
	doc.Upsert(station("late-night", "90.10"))
	doc.Upsert(station("dawn-chorus", "88.00"))

	if doc.Stations[0].Frequency != "88.00" || doc.Stations[1].Frequency != "90.10" {
		t.Errorf("catalog not sorted by frequency: %+v", doc.Stations)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	doc := Document{}
	doc.Upsert(station("pier-end", "99.90"))
	doc.Upsert(station("pier-end", "99.90"))

	if len(doc.Stations) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(doc.Stations))
	}
}

func TestUpsertMergePreservesBPMAndLocation(t *testing.T) {
	doc := Document{}
	prior := station("pier-end", "99.90")
	prior.BPM = 118
	prior.Location = &Location{Lat: 51.923748, Lon: -0.194521}
	doc.Upsert(prior)

	// Re-ingest with no bpm (estimation failed) and no coordinates.
	next := station("pier-end", "99.90")
	next.Title = "Pier End (revived)"
	doc.Upsert(next)

	got, _ := doc.Find("pier-end")
	if got.BPM != 118 {
		t.Errorf("bpm lost on merge: got %d", got.BPM)
	}
	if got.Location == nil || got.Location.Lat != 51.923748 {
		t.Errorf("location lost on merge: %+v", got.Location)
	}
	if got.Title != "Pier End (revived)" {
		t.Errorf("new fields must win: %q", got.Title)
	}
}

func TestResolvePriority(t *testing.T) {
	doc := Document{Stations: []Station{
		station("alpha", "88.00"),
		station("mike", "91.50"),
	}}

	// Frequency match wins even when the id changed.
	prev := station("old-name", "91.50")
	got, ok := doc.Resolve(prev)
	if !ok || got.ID != "mike" {
		t.Errorf("frequency resolution failed: %+v ok=%v", got, ok)
	}

	// Frequency edited away: fall back to id.
	prev = station("alpha", "107.70")
	got, ok = doc.Resolve(prev)
	if !ok || got.ID != "alpha" {
		t.Errorf("id fallback failed: %+v ok=%v", got, ok)
	}

	// Gone entirely.
	prev = station("vanished", "66.60")
	if _, ok := doc.Resolve(prev); ok {
		t.Error("resolved a station that no longer exists")
	}
}

func TestFindByFrequencyNumericMatch(t *testing.T) {
	doc := Document{Stations: []Station{station("mike", "91.50")}}
	if _, ok := doc.FindByFrequency("91.5"); !ok {
		t.Error("91.5 should match 91.50")
	}
	if _, ok := doc.FindByFrequency("91.51"); ok {
		t.Error("91.51 should not match 91.50")
	}
}

func TestValidDropsBrokenEntries(t *testing.T) {
	broken := station("broken", "95.00")
	broken.Track = ""
	doc := Document{Stations: []Station{station("alpha", "88.00"), broken}}

	got := doc.Valid()
	if len(got.Stations) != 1 || got.Stations[0].ID != "alpha" {
		t.Errorf("expected only alpha to survive, got %+v", got.Stations)
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{"Jazz", "jazz", " ambient ", "vaporwave", "", "talk"})
	want := []string{"ambient", "jazz", "talk"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestFrequencyFormatting(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"88", "88.00"},
		{"91.5", "91.50"},
		{"102.35", "102.35"},
	}
	for _, tt := range tests {
		got, err := NormalizeFrequency(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("NormalizeFrequency(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []string{"", "abc", "-3", "0"} {
		if _, err := NormalizeFrequency(bad); err == nil {
			t.Errorf("NormalizeFrequency(%q) should fail", bad)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Night Swim FM", "night-swim-fm"},
		{"  Pier   End!  ", "pier-end"},
		{"Ätherwellen 3000", "therwellen-3000"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClampSignal(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultSignal}, {-2, 1}, {1, 1}, {4, 4}, {9, 4},
	}
	for _, tt := range tests {
		if got := ClampSignal(tt.in); got != tt.want {
			t.Errorf("ClampSignal(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
