// Package watch runs suggestion cycles on a schedule or on new chain heads
// and keeps their outcomes in the suggestion log and tip snapshot stores.
package watch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/ethrpc"
	"autopay-tips/internal/observability"
	"autopay-tips/internal/storage"
	"autopay-tips/internal/suggest"
)

// Cycle statuses reported to metrics.
const (
	StatusSuggested = "suggested"
	StatusEmpty     = "empty"
	StatusError     = "error"
)

// tokenDecimals scales the best tip gauge to whole tokens.
const tokenDecimals = 18

// Suggester runs one suggestion cycle.
type Suggester interface {
	Run(ctx context.Context, now uint64) (*suggest.Cycle, error)
}

// Runner drives suggestion cycles.
type Runner struct {
	suggester    Suggester
	clock        Clock
	suggestions  storage.SuggestionStore
	snapshots    storage.TipSnapshotStore
	heads        ethrpc.WSClient
	schedule     string
	cycleTimeout time.Duration
	wallClock    func() time.Time
	logger       *zap.Logger

	mu sync.Mutex // one cycle at a time
}

// Options contains configuration for creating a Runner.
type Options struct {
	Suggester   Suggester
	Clock       Clock
	Suggestions storage.SuggestionStore
	Snapshots   storage.TipSnapshotStore

	// Heads triggers a cycle per new head when set. The head timestamp is
	// used as the cycle time.
	Heads ethrpc.WSClient
	// Schedule is a standard cron spec, empty disables scheduled cycles.
	Schedule     string
	CycleTimeout time.Duration
	Logger       *zap.Logger
}

// NewRunner creates a new Runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		suggester:    opts.Suggester,
		clock:        opts.Clock,
		suggestions:  opts.Suggestions,
		snapshots:    opts.Snapshots,
		heads:        opts.Heads,
		schedule:     opts.Schedule,
		cycleTimeout: opts.CycleTimeout,
		wallClock:    time.Now,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, running cycles on the schedule and on
// every new head.
func (r *Runner) Run(ctx context.Context) error {
	if r.schedule == "" && r.heads == nil {
		return errors.New("watch: no schedule and no head subscription")
	}

	if r.schedule != "" {
		sugar := r.logger.Sugar()
		c := cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{sugar}),
			cron.Recover(cronLogger{sugar}),
		))
		if _, err := c.AddFunc(r.schedule, func() { r.scheduled(ctx) }); err != nil {
			return fmt.Errorf("watch schedule %q: %w", r.schedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		r.logger.Info("cron started", zap.String("schedule", r.schedule))
	}

	var heads <-chan ethrpc.Head
	if r.heads != nil {
		var err error
		heads, err = r.heads.SubscribeNewHeads(ctx)
		if err != nil {
			return fmt.Errorf("subscribe new heads: %w", err)
		}
		r.logger.Info("subscribed to new heads")
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("watch stopping")
			return ctx.Err()

		case head, ok := <-heads:
			if !ok {
				return errors.New("new heads channel closed")
			}
			observability.RecordHead()
			r.logger.Debug("new head", zap.Uint64("number", head.Number), zap.Uint64("timestamp", head.Timestamp))

			cctx, cancel := r.cycleContext(ctx)
			if _, err := r.RunAt(cctx, head.Timestamp); err != nil && ctx.Err() == nil {
				r.logger.Error("cycle failed", zap.Uint64("block", head.Number), zap.Error(err))
			}
			cancel()
		}
	}
}

func (r *Runner) scheduled(ctx context.Context) {
	cctx, cancel := r.cycleContext(ctx)
	defer cancel()
	if _, err := r.RunOnce(cctx); err != nil && ctx.Err() == nil {
		r.logger.Error("cycle failed", zap.Error(err))
	}
}

func (r *Runner) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cycleTimeout > 0 {
		return context.WithTimeout(ctx, r.cycleTimeout)
	}
	return context.WithCancel(ctx)
}

// RunOnce runs a cycle at the clock's current time.
func (r *Runner) RunOnce(ctx context.Context) (*suggest.Cycle, error) {
	now, err := r.clock.Now(ctx)
	if err != nil {
		observability.RecordCycle(StatusError, 0, 0, 0)
		return nil, err
	}
	return r.RunAt(ctx, now)
}

// RunAt runs a cycle evaluated at now, records it and updates metrics.
func (r *Runner) RunAt(ctx context.Context, now uint64) (*suggest.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	cycle, err := r.suggester.Run(ctx, now)
	if err != nil {
		observability.RecordCycle(StatusError, time.Since(start).Seconds(), now, 0)
		return nil, fmt.Errorf("suggest at %d: %w", now, err)
	}

	if err := r.record(ctx, cycle); err != nil {
		observability.RecordCycle(StatusError, time.Since(start).Seconds(), now, 0)
		return cycle, err
	}

	status := StatusEmpty
	var best float64
	fields := []zap.Field{
		zap.Uint64("now", now),
		zap.Int("funded", cycle.Funded),
		zap.Int("tipped", cycle.Tipped),
		zap.Int("eligible", cycle.Eligible),
		zap.Int("reconciled", cycle.Reconciled),
		zap.Duration("took", time.Since(start)),
	}
	if rec := cycle.Recommendation; rec != nil {
		status = StatusSuggested
		best = decimal.NewFromBigInt(rec.TipAmount, -tokenDecimals).InexactFloat64()
		fields = append(fields,
			zap.String("query_id", rec.QueryID.Hex()),
			zap.String("tip", rec.TipAmount.String()),
			zap.Int("feeds", len(rec.FeedIDs)),
		)
	}

	observability.RecordCycle(status, time.Since(start).Seconds(), now, best)
	observability.MarkCycleSuccess(r.wallClock().Unix())
	r.logger.Info("cycle finished", fields...)

	return cycle, nil
}

// record appends the cycle to the suggestion log and the tip snapshots.
// A cycle at an already recorded time (two triggers in one block) is skipped.
func (r *Runner) record(ctx context.Context, cycle *suggest.Cycle) error {
	rec := suggestionRecord(cycle, r.wallClock())

	if r.suggestions != nil {
		prev, err := r.suggestions.Latest(ctx)
		switch {
		case err == nil:
			if repeats(prev, rec) {
				r.logger.Info("same query suggested again, no report landed since",
					zap.String("query_id", rec.QueryID),
					zap.Int64("first_suggested", prev.CycleTime),
					zap.String("tip", rec.TipAmount),
				)
			}
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("read latest suggestion: %w", err)
		}

		if err := r.suggestions.Insert(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				r.logger.Debug("cycle already recorded", zap.Int64("cycle_time", rec.CycleTime))
				return nil
			}
			return fmt.Errorf("insert suggestion: %w", err)
		}
	}

	if r.snapshots != nil {
		if err := r.snapshots.InsertBulk(ctx, tipSnapshots(cycle)); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil
			}
			return fmt.Errorf("insert tip snapshots: %w", err)
		}
	}
	return nil
}

// repeats reports whether rec suggests the same query for the same tip as
// prev, which means no report consumed the reward in between.
func repeats(prev, rec *domain.SuggestionRecord) bool {
	return !rec.Empty() && prev.QueryID == rec.QueryID && prev.TipAmount == rec.TipAmount
}

func suggestionRecord(cycle *suggest.Cycle, createdAt time.Time) *domain.SuggestionRecord {
	rec := &domain.SuggestionRecord{
		CycleTime:  int64(cycle.Now),
		TipAmount:  "0",
		Candidates: cycle.Funded,
		CreatedAt:  createdAt.UnixMilli(),
	}
	if best := cycle.Recommendation; best != nil {
		rec.QueryID = best.QueryID.Hex()
		rec.QueryData = best.QueryData
		rec.TipAmount = best.TipAmount.String()
		rec.FeedCount = len(best.FeedIDs)
	}
	return rec
}

func tipSnapshots(cycle *suggest.Cycle) []*domain.TipSnapshot {
	out := make([]*domain.TipSnapshot, 0, len(cycle.Totals))
	for _, t := range cycle.Totals {
		out = append(out, &domain.TipSnapshot{
			QueryID:    t.Query.ID.Hex(),
			QueryType:  t.Query.Type,
			CycleTime:  int64(cycle.Now),
			FeedTip:    amount(t.FeedTip),
			OneTimeTip: amount(t.OneTimeTip),
			Total:      t.Total().String(),
			FeedCount:  len(t.FeedIDs),
		})
	}
	return out
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
