package catalog

import "sort"

// Document is the full shared catalog: the single source of truth every
// listener polls. Stations are kept non-decreasing by numeric frequency,
// ties broken by ascending id; the invariant is re-established on every
// write.
type Document struct {
	Stations []Station `json:"stations"`
}

// Sort re-establishes the catalog ordering invariant.
func (d *Document) Sort() {
	sort.SliceStable(d.Stations, func(i, j int) bool {
		fi, erri := ParseFrequency(d.Stations[i].Frequency)
		fj, errj := ParseFrequency(d.Stations[j].Frequency)
		if erri != nil || errj != nil {
			return d.Stations[i].ID < d.Stations[j].ID
		}
		if fi != fj {
			return fi < fj
		}
		return d.Stations[i].ID < d.Stations[j].ID
	})
}

// Upsert merges a station over any prior record with the same id and
// re-sorts. bpm and location survive from the prior record when the new
// one carries none (tempo estimation may have failed, coordinates are
// optional); everything else is replaced.
func (d *Document) Upsert(st Station) {
	for i, prev := range d.Stations {
		if prev.ID != st.ID {
			continue
		}
		if st.BPM == 0 {
			st.BPM = prev.BPM
		}
		if st.Location == nil {
			st.Location = prev.Location
		}
		d.Stations[i] = st
		d.Sort()
		return
	}
	d.Stations = append(d.Stations, st)
	d.Sort()
}

// Find returns the station with the given id.
func (d *Document) Find(id string) (Station, bool) {
	for _, st := range d.Stations {
		if st.ID == id {
			return st, true
		}
	}
	return Station{}, false
}

// FindByFrequency matches a dial position numerically, so "91.5" finds
// a station stored as "91.50".
func (d *Document) FindByFrequency(freq string) (Station, bool) {
	want, err := ParseFrequency(freq)
	if err != nil {
		return Station{}, false
	}
	for _, st := range d.Stations {
		if f, err := ParseFrequency(st.Frequency); err == nil && f == want {
			return st, true
		}
	}
	return Station{}, false
}

// Resolve locates a previously-tuned station in a newer catalog
// snapshot. Frequency wins first so a station keeps its dial position
// across id edits; id is the fallback so a frequency edit does not lose
// the listener.
func (d *Document) Resolve(prev Station) (Station, bool) {
	if st, ok := d.FindByFrequency(prev.Frequency); ok {
		return st, true
	}
	return d.Find(prev.ID)
}

// Valid returns a copy holding only entries that pass validation.
func (d Document) Valid() Document {
	out := Document{}
	for _, st := range d.Stations {
		if st.Validate() == nil {
			out.Stations = append(out.Stations, st)
		}
	}
	return out
}
