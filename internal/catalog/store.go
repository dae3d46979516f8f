package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jack-merrell/offley.fm/internal/storage"
)

// ObjectKey is where the catalog document lives in the assets bucket.
const ObjectKey = "catalog.json"

// Store reads and writes the shared catalog document.
//
// Writes are serialized within the process by a mutex, which closes the
// race between an ingest and its detached bpm retry. Across processes
// the document is last-write-wins: acceptable for a low-write-rate admin
// tool, and deliberately not upgraded to external locking.
type Store struct {
	mu      sync.Mutex
	storage *storage.Client
}

func NewStore(st *storage.Client) *Store {
	return &Store{storage: st}
}

// Read returns the current catalog. A catalog that does not exist yet
// reads as empty; it is created on first write.
func (s *Store) Read() (Document, error) {
	obj, err := s.storage.DownloadAsset(ObjectKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("catalog read: %w", err)
	}
	defer obj.Body.Close()

	var doc Document
	if err := json.NewDecoder(obj.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("catalog decode: %w", err)
	}
	return doc, nil
}

// Write re-sorts and persists the whole document.
func (s *Store) Write(doc Document) error {
	doc.Sort()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog encode: %w", err)
	}
	data = append(data, '\n')

	if err := s.storage.UploadAsset(ObjectKey, bytes.NewReader(data), "application/json", "no-cache"); err != nil {
		return fmt.Errorf("catalog write: %w", err)
	}
	return nil
}

// Upsert merges one station into the catalog under the write lock and
// returns the record as persisted.
func (s *Store) Upsert(st Station) (Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Read()
	if err != nil {
		return Station{}, err
	}
	doc.Upsert(st)
	if err := s.Write(doc); err != nil {
		return Station{}, err
	}

	final, _ := doc.Find(st.ID)
	return final, nil
}

// PatchBPM performs an independent read-modify-write that touches only
// the bpm of one station. Used by the detached tempo retry.
func (s *Store) PatchBPM(id string, bpm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Read()
	if err != nil {
		return err
	}
	st, ok := doc.Find(id)
	if !ok {
		return fmt.Errorf("catalog patch: station %s not found", id)
	}
	st.BPM = bpm
	doc.Upsert(st)
	return s.Write(doc)
}
