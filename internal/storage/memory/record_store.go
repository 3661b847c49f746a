package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/storage"
)

// RecordStore keeps the latest record per ID.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]intel.DealershipIntel
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]intel.DealershipIntel)}
}

// Write stores rec, replacing any earlier record with the same ID.
func (s *RecordStore) Write(_ context.Context, rec intel.DealershipIntel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Get returns the record stored under id or storage.ErrNotFound.
func (s *RecordStore) Get(_ context.Context, id string) (intel.DealershipIntel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return intel.DealershipIntel{}, storage.ErrNotFound
	}
	return rec, nil
}

// List returns every record ordered by domain.
func (s *RecordStore) List() []intel.DealershipIntel {
	s.mu.RLock()
	out := make([]intel.DealershipIntel, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}
