package memory

import (
	"context"
	"sort"
	"sync"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/storage"
)

// TipSnapshotStore is an in-memory implementation of storage.TipSnapshotStore.
type TipSnapshotStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]*domain.TipSnapshot // query_id -> cycle_time -> snapshot
}

// NewTipSnapshotStore creates a new in-memory tip snapshot store.
func NewTipSnapshotStore() *TipSnapshotStore {
	return &TipSnapshotStore{
		data: make(map[string]map[int64]*domain.TipSnapshot),
	}
}

// Compile-time interface check.
var _ storage.TipSnapshotStore = (*TipSnapshotStore)(nil)

// InsertBulk adds snapshots atomically. Fails entire batch on any duplicate.
func (s *TipSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.TipSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		queryID   string
		cycleTime int64
	}
	batchKeys := make(map[key]struct{}, len(snapshots))

	// First pass: validate and check duplicates (existing + intra-batch)
	for _, p := range snapshots {
		if p == nil || p.QueryID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[p.QueryID][p.CycleTime]; exists {
			return storage.ErrDuplicateKey
		}
		k := key{p.QueryID, p.CycleTime}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range snapshots {
		if s.data[p.QueryID] == nil {
			s.data[p.QueryID] = make(map[int64]*domain.TipSnapshot)
		}
		c := *p
		s.data[p.QueryID][p.CycleTime] = &c
	}

	return nil
}

// GetByTimeRange retrieves snapshots of a query within [start, end] (inclusive), ordered by cycle_time ASC.
func (s *TipSnapshotStore) GetByTimeRange(_ context.Context, queryID string, start, end int64) ([]*domain.TipSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TipSnapshot
	for t, p := range s.data[queryID] {
		if t >= start && t <= end {
			c := *p
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CycleTime < result[j].CycleTime
	})

	return result, nil
}
