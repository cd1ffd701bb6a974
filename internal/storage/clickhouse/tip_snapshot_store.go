package clickhouse

import (
	"context"
	"fmt"
	"time"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/storage"
)

// TipSnapshotStore implements storage.TipSnapshotStore using ClickHouse.
type TipSnapshotStore struct {
	conn *Conn
}

// NewTipSnapshotStore creates a new TipSnapshotStore.
func NewTipSnapshotStore(conn *Conn) *TipSnapshotStore {
	return &TipSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TipSnapshotStore = (*TipSnapshotStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (query_id, cycle_time).
func (s *TipSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.TipSnapshot) (err error) {
	if len(snapshots) == 0 {
		return nil
	}
	defer observeQuery("insert_tip_snapshots", time.Now(), &err)

	// Check for intra-batch duplicates
	type key struct {
		queryID   string
		cycleTime int64
	}
	seen := make(map[key]struct{})
	for _, p := range snapshots {
		if p == nil || p.QueryID == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.QueryID, p.CycleTime}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range snapshots {
		exists, err := s.exists(ctx, p.QueryID, p.CycleTime)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tip_snapshots (
			query_id, query_type, cycle_time, feed_tip, one_time_tip, total, feed_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range snapshots {
		err = batch.Append(
			p.QueryID, p.QueryType, p.CycleTime,
			orZero(p.FeedTip), orZero(p.OneTimeTip), orZero(p.Total), uint32(p.FeedCount),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves snapshots for a query within [start, end] (inclusive).
func (s *TipSnapshotStore) GetByTimeRange(ctx context.Context, queryID string, start, end int64) (_ []*domain.TipSnapshot, err error) {
	defer observeQuery("tip_snapshots_by_time", time.Now(), &err)

	query := `
		SELECT query_id, query_type, cycle_time, feed_tip, one_time_tip, total, feed_count
		FROM tip_snapshots
		WHERE query_id = ? AND cycle_time >= ? AND cycle_time <= ?
		ORDER BY cycle_time ASC
	`

	rows, err := s.conn.Query(ctx, query, queryID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTipSnapshots(rows)
}

// exists checks if a snapshot with the given key exists.
func (s *TipSnapshotStore) exists(ctx context.Context, queryID string, cycleTime int64) (bool, error) {
	query := `
		SELECT count(*) FROM tip_snapshots
		WHERE query_id = ? AND cycle_time = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, queryID, cycleTime).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanTipSnapshots scans multiple rows.
func scanTipSnapshots(rows chRows) ([]*domain.TipSnapshot, error) {
	var snapshots []*domain.TipSnapshot

	for rows.Next() {
		var p domain.TipSnapshot
		var feedCount uint32

		err := rows.Scan(
			&p.QueryID, &p.QueryType, &p.CycleTime,
			&p.FeedTip, &p.OneTimeTip, &p.Total, &feedCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		p.FeedCount = int(feedCount)
		snapshots = append(snapshots, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return snapshots, nil
}

func orZero(amount string) string {
	if amount == "" {
		return "0"
	}
	return amount
}
