package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/council-da-scraper/internal/da"
)

// RecordStore is a map-backed da.RecordStore keyed by council reference.
type RecordStore struct {
	mu          sync.RWMutex
	records     map[string]da.Record
	compactions int
	closed      bool
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]da.Record)}
}

var errClosed = errors.New("record store is closed")

// Upsert inserts or replaces the record with the same council reference.
func (s *RecordStore) Upsert(_ context.Context, record da.Record) error {
	if record.CouncilReference == "" {
		return errors.New("council reference is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	record.DateScraped = da.DateOf(record.DateScraped)
	s.records[record.CouncilReference] = record
	return nil
}

// CountOlderThan counts records scraped before cutoff and reports the oldest date.
func (s *RecordStore) CountOlderThan(_ context.Context, cutoff time.Time) (int64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, time.Time{}, errClosed
	}
	cutoff = da.DateOf(cutoff)
	var (
		count  int64
		oldest time.Time
	)
	for _, r := range s.records {
		if !r.DateScraped.Before(cutoff) {
			continue
		}
		count++
		if oldest.IsZero() || r.DateScraped.Before(oldest) {
			oldest = r.DateScraped
		}
	}
	return count, oldest, nil
}

// DeleteOlderThan removes records scraped before cutoff.
func (s *RecordStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	cutoff = da.DateOf(cutoff)
	var deleted int64
	for key, r := range s.records {
		if r.DateScraped.Before(cutoff) {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// Compact only counts invocations; there is no space to reclaim.
func (s *RecordStore) Compact(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.compactions++
	return nil
}

// Close marks the store unusable.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Get returns the record stored under ref.
func (s *RecordStore) Get(ref string) (da.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[ref]
	return r, ok
}

// Records returns all records ordered by council reference.
func (s *RecordStore) Records() []da.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]da.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CouncilReference < out[j].CouncilReference })
	return out
}

// Compactions reports how many times Compact ran.
func (s *RecordStore) Compactions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compactions
}
