package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/storage"
)

// SuggestionStore implements storage.SuggestionStore using PostgreSQL.
type SuggestionStore struct {
	pool *Pool
}

// NewSuggestionStore creates a new SuggestionStore.
func NewSuggestionStore(pool *Pool) *SuggestionStore {
	return &SuggestionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SuggestionStore = (*SuggestionStore)(nil)

const suggestionColumns = `cycle_time, query_id, query_data, tip_amount::text, feed_count, candidates, created_at`

// Insert appends a record. Returns ErrDuplicateKey if cycle_time exists.
func (s *SuggestionStore) Insert(ctx context.Context, r *domain.SuggestionRecord) (err error) {
	if r == nil || r.CycleTime <= 0 {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_suggestion", time.Now(), &err)

	tip := r.TipAmount
	if tip == "" {
		tip = "0"
	}

	query := `
		INSERT INTO suggestions (
			cycle_time, query_id, query_data, tip_amount, feed_count, candidates, created_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
	`

	_, err = s.pool.Exec(ctx, query,
		r.CycleTime, r.QueryID, r.QueryData, tip, r.FeedCount, r.Candidates, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

// Latest returns the record with the highest cycle_time.
func (s *SuggestionStore) Latest(ctx context.Context) (_ *domain.SuggestionRecord, err error) {
	defer observeQuery("latest_suggestion", time.Now(), &err)

	query := `SELECT ` + suggestionColumns + ` FROM suggestions ORDER BY cycle_time DESC LIMIT 1`

	r, err := scanSuggestion(s.pool.QueryRow(ctx, query))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest suggestion: %w", err)
	}
	return r, nil
}

// GetByTimeRange retrieves records within [start, end] (inclusive), ordered by cycle_time ASC.
func (s *SuggestionStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.SuggestionRecord, err error) {
	defer observeQuery("suggestions_by_time", time.Now(), &err)

	query := `SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE cycle_time >= $1 AND cycle_time <= $2
		ORDER BY cycle_time ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query suggestions by time range: %w", err)
	}
	defer rows.Close()

	var result []*domain.SuggestionRecord
	for rows.Next() {
		r, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestion rows: %w", err)
	}

	return result, nil
}

func scanSuggestion(row pgx.Row) (*domain.SuggestionRecord, error) {
	var r domain.SuggestionRecord
	err := row.Scan(
		&r.CycleTime, &r.QueryID, &r.QueryData, &r.TipAmount,
		&r.FeedCount, &r.Candidates, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
