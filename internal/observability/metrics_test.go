package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCycle(t *testing.T) {
	suggested := testutil.ToFloat64(DefaultMetrics.CyclesTotal.WithLabelValues("suggested"))
	failed := testutil.ToFloat64(DefaultMetrics.CyclesTotal.WithLabelValues("error"))

	RecordCycle("suggested", 0.2, 1_700_000_000, 1.5)
	assert.Equal(t, suggested+1, testutil.ToFloat64(DefaultMetrics.CyclesTotal.WithLabelValues("suggested")))
	assert.Equal(t, float64(1_700_000_000), testutil.ToFloat64(DefaultMetrics.LatestBlockTime))
	assert.Equal(t, 1.5, testutil.ToFloat64(DefaultMetrics.BestTip))

	// Failed cycles leave the gauges alone
	RecordCycle("error", 0.1, 42, 0)
	assert.Equal(t, failed+1, testutil.ToFloat64(DefaultMetrics.CyclesTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1_700_000_000), testutil.ToFloat64(DefaultMetrics.LatestBlockTime))
	assert.Equal(t, 1.5, testutil.ToFloat64(DefaultMetrics.BestTip))
}

func TestRecordBatch(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.BatchFailures)

	RecordBatch(10, nil)
	assert.Equal(t, before, testutil.ToFloat64(DefaultMetrics.BatchFailures))

	RecordBatch(10, errors.New("timeout"))
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.BatchFailures))
}

func TestRecordDBQuery(t *testing.T) {
	counter := DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op")
	before := testutil.ToFloat64(counter)

	RecordDBQuery("postgres", "test_op", 0.01, nil)
	RecordDBQuery("postgres", "test_op", 0.01, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRecordStage(t *testing.T) {
	RecordStage("eligible", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(DefaultMetrics.CandidatesStage.WithLabelValues("eligible")))
}
