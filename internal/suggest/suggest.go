// Package suggest runs one reporting cycle: it finds the funded query that
// pays the most for a report submitted now.
// Flow: discovery → current values → window evaluation → reconciliation → selection
package suggest

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/fetcher"
	"autopay-tips/internal/idhash"
	"autopay-tips/internal/observability"
	"autopay-tips/internal/reconcile"
	"autopay-tips/internal/registry"
	"autopay-tips/internal/selector"
	"autopay-tips/internal/window"
)

// Pipeline stages, used as metric labels.
const (
	StageFunded     = "funded"
	StageTipped     = "tipped"
	StageEligible   = "eligible"
	StageReconciled = "reconciled"
)

// Suggester picks the query to report next.
type Suggester struct {
	fetcher    *fetcher.Fetcher
	evaluator  *window.Evaluator
	reconciler *reconcile.Reconciler
	registry   *registry.Registry
	logger     *zap.Logger
}

// Options for creating Suggester.
type Options struct {
	Fetcher    *fetcher.Fetcher
	Evaluator  *window.Evaluator
	Reconciler *reconcile.Reconciler
	Registry   *registry.Registry
	Logger     *zap.Logger
}

// New creates a new Suggester.
func New(opts Options) *Suggester {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{
		fetcher:    opts.Fetcher,
		evaluator:  opts.Evaluator,
		reconciler: opts.Reconciler,
		registry:   opts.Registry,
		logger:     logger,
	}
}

// Cycle is the full outcome of one reporting cycle.
type Cycle struct {
	Now            uint64
	Recommendation *domain.Recommendation // nil when nothing is eligible
	Totals         []*domain.QueryTotal   // per query, sorted by query id
	Funded         int
	Tipped         int
	Eligible       int
	Reconciled     int
}

// SuggestReport returns the query to report at now and the tip it pays.
// It returns nil and no error when nothing is eligible. Errors are transport
// failures; the cycle yields no partial result.
func (s *Suggester) SuggestReport(ctx context.Context, now uint64) (*domain.Recommendation, error) {
	cycle, err := s.Run(ctx, now)
	if err != nil {
		return nil, err
	}
	return cycle.Recommendation, nil
}

// Run executes one cycle.
// Phases:
//  1. Discover funded feeds and one-time tips
//  2. Load the latest report before now for every feed query
//  3. Keep feeds a report at now would earn
//  4. Net out rewards owed to unclaimed past reports
//  5. Sum per query and select the best
func (s *Suggester) Run(ctx context.Context, now uint64) (*Cycle, error) {
	cycle := &Cycle{Now: now}

	// Phase 1: Discovery
	snap, err := s.fetcher.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (discovery) failed: %w", err)
	}
	cycle.Funded = len(snap.Feeds)
	cycle.Tipped = len(snap.Tips)
	observability.RecordStage(StageFunded, cycle.Funded)
	observability.RecordStage(StageTipped, cycle.Tipped)

	feeds, err := s.evaluateFeeds(ctx, snap.Feeds, now)
	if err != nil {
		return nil, err
	}
	cycle.Eligible = len(feeds)
	observability.RecordStage(StageEligible, cycle.Eligible)

	// Phase 4: Reconciliation
	feeds, err = s.reconciler.Reconcile(ctx, feeds, now)
	if err != nil {
		return nil, fmt.Errorf("phase 4 (reconciliation) failed: %w", err)
	}
	cycle.Reconciled = len(feeds)
	observability.RecordStage(StageReconciled, cycle.Reconciled)

	// Phase 5: Selection
	cycle.Totals = selector.Aggregate(feeds, snap.Tips)
	cycle.Recommendation = selector.Best(cycle.Totals)

	fields := []zap.Field{
		zap.Uint64("now", now),
		zap.Int("funded", cycle.Funded),
		zap.Int("tipped", cycle.Tipped),
		zap.Int("eligible", cycle.Eligible),
		zap.Int("reconciled", cycle.Reconciled),
	}
	if rec := cycle.Recommendation; rec != nil {
		fields = append(fields,
			zap.String("query_id", rec.QueryID.Hex()),
			zap.String("tip", rec.TipAmount.String()))
		if s.registry != nil {
			if entry, ok := s.registry.Lookup(rec.QueryID); ok {
				fields = append(fields, zap.String("tag", entry.Tag))
			}
		}
	}
	s.logger.Info("cycle complete", fields...)

	return cycle, nil
}

// evaluateFeeds loads current values and keeps the feeds a report at now
// would earn, with Tip set to the payable reward.
func (s *Suggester) evaluateFeeds(ctx context.Context, feeds []*domain.FeedCandidate, now uint64) ([]*domain.FeedCandidate, error) {
	if len(feeds) == 0 {
		return nil, nil
	}

	// Phase 2: Current values
	if err := s.fetcher.LoadCurrentValues(ctx, feeds, now); err != nil {
		return nil, fmt.Errorf("phase 2 (current values) failed: %w", err)
	}

	// Phase 3: Window evaluation
	eligible := make([]*domain.FeedCandidate, 0, len(feeds))
	for _, c := range feeds {
		d := s.evaluator.Evaluate(ctx, c, now)
		if !d.Eligible {
			s.logger.Debug("feed not eligible",
				zap.String("feed_id", c.FeedID.Hex()),
				zap.String("reason", string(d.Reason)))
			continue
		}
		c.Tip = d.Reward
		eligible = append(eligible, c)
	}
	return eligible, nil
}

// TipForQuery returns the reward a report of queryData at now would earn:
// its one-time tip plus every eligible feed of the query.
func (s *Suggester) TipForQuery(ctx context.Context, queryData []byte, now uint64) (*domain.QueryTotal, error) {
	query, err := s.describe(queryData)
	if err != nil {
		return nil, err
	}

	feeds, tip, err := s.fetcher.QueryFeeds(ctx, query)
	if err != nil {
		return nil, err
	}

	feeds, err = s.evaluateFeeds(ctx, feeds, now)
	if err != nil {
		return nil, err
	}
	feeds, err = s.reconciler.Reconcile(ctx, feeds, now)
	if err != nil {
		return nil, fmt.Errorf("reconcile query feeds: %w", err)
	}

	totals := selector.Aggregate(feeds, []domain.OneTimeTip{{Query: query, Amount: tip}})
	for _, t := range totals {
		if t.Query.ID == query.ID {
			return t, nil
		}
	}
	return &domain.QueryTotal{Query: query, FeedTip: new(big.Int), OneTimeTip: new(big.Int)}, nil
}

// describe resolves query data through the registry. Queries the registry
// does not support keep whatever type their data carries.
func (s *Suggester) describe(queryData []byte) (domain.Query, error) {
	if len(queryData) == 0 {
		return domain.Query{}, fmt.Errorf("%w: empty", registry.ErrQueryData)
	}
	if s.registry != nil {
		if q, err := s.registry.Describe(queryData); err == nil {
			return q, nil
		}
	}
	qtype, _ := registry.DecodeQueryType(queryData)
	return domain.Query{ID: idhash.ComputeQueryID(queryData), Data: queryData, Type: qtype}, nil
}
