package storage

import (
	"context"

	"autopay-tips/internal/domain"
)

// SuggestionStore provides access to the suggestions log.
type SuggestionStore interface {
	// Insert appends the outcome of a cycle. Returns ErrDuplicateKey if a
	// record for the same cycle_time exists.
	Insert(ctx context.Context, r *domain.SuggestionRecord) error

	// Latest returns the record with the highest cycle_time. Returns
	// ErrNotFound when the log is empty.
	Latest(ctx context.Context) (*domain.SuggestionRecord, error)

	// GetByTimeRange retrieves records with cycle_time within [start, end]
	// (inclusive), ordered by cycle_time ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SuggestionRecord, error)
}

// TipSnapshotStore provides access to the tip_snapshots timeseries.
type TipSnapshotStore interface {
	// InsertBulk adds the snapshots of one cycle. Fails entire batch on a
	// duplicate (query_id, cycle_time).
	InsertBulk(ctx context.Context, snapshots []*domain.TipSnapshot) error

	// GetByTimeRange retrieves snapshots of a query within [start, end]
	// (inclusive), ordered by cycle_time ASC.
	GetByTimeRange(ctx context.Context, queryID string, start, end int64) ([]*domain.TipSnapshot, error)
}
