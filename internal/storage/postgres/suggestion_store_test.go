package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/storage"
	"autopay-tips/internal/storage/postgres"
)

func createTestSuggestion(cycleTime int64, queryID, tip string) *domain.SuggestionRecord {
	return &domain.SuggestionRecord{
		CycleTime:  cycleTime,
		QueryID:    queryID,
		QueryData:  []byte{0x01, 0x02},
		TipAmount:  tip,
		FeedCount:  2,
		Candidates: 5,
		CreatedAt:  cycleTime * 1000,
	}
}

func TestSuggestionStore_InsertAndLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSuggestionStore(pool)

	first := createTestSuggestion(1_700_000_000, "83a7f3d4", "1000000000000000000")
	second := createTestSuggestion(1_700_000_060, "d9134067", "123456789012345678901234567890")

	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)

	assert.Equal(t, second.CycleTime, latest.CycleTime)
	assert.Equal(t, second.QueryID, latest.QueryID)
	assert.Equal(t, second.QueryData, latest.QueryData)
	assert.Equal(t, second.TipAmount, latest.TipAmount)
	assert.Equal(t, second.FeedCount, latest.FeedCount)
	assert.Equal(t, second.Candidates, latest.Candidates)
	assert.Equal(t, second.CreatedAt, latest.CreatedAt)
}

func TestSuggestionStore_EmptyCycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSuggestionStore(pool)

	empty := &domain.SuggestionRecord{CycleTime: 1_700_000_000, Candidates: 3, CreatedAt: 1}
	require.NoError(t, store.Insert(ctx, empty))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Empty())
	assert.Equal(t, "0", latest.TipAmount)
}

func TestSuggestionStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSuggestionStore(pool)

	r := createTestSuggestion(1_700_000_000, "83a7f3d4", "10")
	require.NoError(t, store.Insert(ctx, r))

	err := store.Insert(ctx, r)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSuggestionStore_LatestNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSuggestionStore(pool)

	_, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSuggestionStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSuggestionStore(pool)

	for _, ts := range []int64{300, 100, 200, 400} {
		require.NoError(t, store.Insert(ctx, createTestSuggestion(ts, "83a7f3d4", "1")))
	}

	got, err := store.GetByTimeRange(ctx, 100, 300)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(100), got[0].CycleTime)
	assert.Equal(t, int64(200), got[1].CycleTime)
	assert.Equal(t, int64(300), got[2].CycleTime)

	got, err = store.GetByTimeRange(ctx, 500, 600)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestionStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSuggestionStore(pool)

	err := store.Insert(context.Background(), &domain.SuggestionRecord{CycleTime: 0})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
