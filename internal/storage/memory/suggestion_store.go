package memory

import (
	"context"
	"sort"
	"sync"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/storage"
)

// SuggestionStore is an in-memory implementation of storage.SuggestionStore.
type SuggestionStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.SuggestionRecord // keyed by cycle_time
}

// NewSuggestionStore creates a new in-memory suggestion store.
func NewSuggestionStore() *SuggestionStore {
	return &SuggestionStore{
		data: make(map[int64]*domain.SuggestionRecord),
	}
}

// Compile-time interface check.
var _ storage.SuggestionStore = (*SuggestionStore)(nil)

// Insert appends a record. Returns ErrDuplicateKey if cycle_time exists.
func (s *SuggestionStore) Insert(_ context.Context, r *domain.SuggestionRecord) error {
	if r == nil || r.CycleTime <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.CycleTime]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.CycleTime] = cloneSuggestion(r)
	return nil
}

// Latest returns the record with the highest cycle_time.
func (s *SuggestionStore) Latest(_ context.Context) (*domain.SuggestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SuggestionRecord
	for _, r := range s.data {
		if latest == nil || r.CycleTime > latest.CycleTime {
			latest = r
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSuggestion(latest), nil
}

// GetByTimeRange retrieves records within [start, end] (inclusive), ordered by cycle_time ASC.
func (s *SuggestionStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SuggestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SuggestionRecord
	for _, r := range s.data {
		if r.CycleTime >= start && r.CycleTime <= end {
			result = append(result, cloneSuggestion(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CycleTime < result[j].CycleTime
	})

	return result, nil
}

func cloneSuggestion(r *domain.SuggestionRecord) *domain.SuggestionRecord {
	c := *r
	if r.QueryData != nil {
		c.QueryData = append([]byte(nil), r.QueryData...)
	}
	return &c
}
