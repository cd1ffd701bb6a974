// Package fetcher reads funded feeds, one-time tips and the latest oracle
// values they are evaluated against.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"autopay-tips/internal/autopay"
	"autopay-tips/internal/domain"
	"autopay-tips/internal/idhash"
	"autopay-tips/internal/multicall"
	"autopay-tips/internal/registry"
)

// Gateway executes batched contract reads.
type Gateway interface {
	Execute(ctx context.Context, calls []multicall.Call, requireSuccess bool) (*multicall.Result, error)
}

// Fetcher reads candidate state from the autopay contract.
type Fetcher struct {
	gateway  Gateway
	contract *autopay.Contract
	registry *registry.Registry
	logger   *zap.Logger
}

// Options for creating Fetcher.
type Options struct {
	Gateway  Gateway
	Contract *autopay.Contract
	Registry *registry.Registry
	Logger   *zap.Logger
}

// New creates a new Fetcher.
func New(opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		gateway:  opts.Gateway,
		contract: opts.Contract,
		registry: opts.Registry,
		logger:   logger,
	}
}

// Snapshot is the funded state read at the start of a cycle.
type Snapshot struct {
	Feeds []*domain.FeedCandidate
	Tips  []domain.OneTimeTip
}

// Discover reads funded feeds and one-time tips. Funded feeds and single
// tip discovery share one batch, current tips follow in a second one.
func (f *Fetcher) Discover(ctx context.Context) (*Snapshot, error) {
	feedsCall, err := f.contract.FundedFeedsCall()
	if err != nil {
		return nil, err
	}
	tipsCall, err := f.contract.FundedSingleTipsCall()
	if err != nil {
		return nil, err
	}

	res, err := f.gateway.Execute(ctx, []multicall.Call{feedsCall, tipsCall}, false)
	if err != nil {
		return nil, fmt.Errorf("read funded feeds: %w", err)
	}

	feeds := f.parseFundedFeeds(res)
	tips, err := f.currentTips(ctx, f.tipQueries(res))
	if err != nil {
		return nil, err
	}

	return &Snapshot{Feeds: feeds, Tips: tips}, nil
}

// ListFundedFeeds returns every funded feed whose query the registry supports.
func (f *Fetcher) ListFundedFeeds(ctx context.Context) ([]*domain.FeedCandidate, error) {
	call, err := f.contract.FundedFeedsCall()
	if err != nil {
		return nil, err
	}
	res, err := f.gateway.Execute(ctx, []multicall.Call{call}, false)
	if err != nil {
		return nil, fmt.Errorf("read funded feeds: %w", err)
	}
	return f.parseFundedFeeds(res), nil
}

// ListOneTimeTips returns the non-zero one-time tip of every catalog query
// and of every supported query found by single tip discovery.
func (f *Fetcher) ListOneTimeTips(ctx context.Context) ([]domain.OneTimeTip, error) {
	call, err := f.contract.FundedSingleTipsCall()
	if err != nil {
		return nil, err
	}
	res, err := f.gateway.Execute(ctx, []multicall.Call{call}, false)
	if err != nil {
		return nil, fmt.Errorf("read funded single tips: %w", err)
	}
	return f.currentTips(ctx, f.tipQueries(res))
}

func (f *Fetcher) parseFundedFeeds(res *multicall.Result) []*domain.FeedCandidate {
	v, ok := res.Get(multicall.Key{Field: autopay.FieldFundedFeeds})
	if !ok {
		f.logger.Warn("funded feeds unavailable")
		return nil
	}
	funded, _ := v.([]autopay.FundedFeed)

	candidates := make([]*domain.FeedCandidate, 0, len(funded))
	for i, ff := range funded {
		query, err := f.registry.Describe(ff.QueryData)
		if err != nil {
			f.logger.Debug("skip unsupported feed query",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}

		params, err := autopay.ToParams(ff.Details)
		if err != nil {
			f.logger.Warn("skip malformed feed",
				zap.String("query_id", query.ID.Hex()),
				zap.Error(err))
			continue
		}
		if params.Balance.Sign() <= 0 {
			continue
		}

		feedID, err := idhash.ComputeFeedID(query.ID, params)
		if err != nil {
			f.logger.Warn("skip feed with unhashable parameters",
				zap.String("query_id", query.ID.Hex()),
				zap.Error(err))
			continue
		}

		candidates = append(candidates, &domain.FeedCandidate{
			FeedID: feedID,
			Query:  query,
			Params: params,
		})
	}
	return candidates
}

// tipQueries returns catalog queries followed by supported queries from
// single tip discovery, without duplicates.
func (f *Fetcher) tipQueries(res *multicall.Result) []domain.Query {
	catalog := f.registry.Catalog()
	queries := make([]domain.Query, 0, len(catalog))
	seen := make(map[domain.QueryID]struct{}, len(catalog))
	for _, e := range catalog {
		seen[e.Query.ID] = struct{}{}
		queries = append(queries, e.Query)
	}

	v, ok := res.Get(multicall.Key{Field: autopay.FieldFundedSingleTips})
	if !ok {
		// Older autopay deployments lack single tip discovery
		f.logger.Debug("single tip discovery unavailable, using catalog only")
		return queries
	}
	tips, _ := v.([]autopay.SingleTip)

	for _, tip := range tips {
		if len(tip.QueryData) == 0 {
			continue
		}
		query, err := f.registry.Describe(tip.QueryData)
		if err != nil {
			f.logger.Debug("skip unsupported tipped query", zap.Error(err))
			continue
		}
		if _, dup := seen[query.ID]; dup {
			continue
		}
		seen[query.ID] = struct{}{}
		queries = append(queries, query)
	}
	return queries
}

// currentTips reads getCurrentTip for queries. Reverted or zero reads mean
// no tip.
func (f *Fetcher) currentTips(ctx context.Context, queries []domain.Query) ([]domain.OneTimeTip, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	calls := make([]multicall.Call, 0, len(queries))
	for _, q := range queries {
		call, err := f.contract.CurrentTipCall(q.ID)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	res, err := f.gateway.Execute(ctx, calls, false)
	if err != nil {
		return nil, fmt.Errorf("read current tips: %w", err)
	}

	var tips []domain.OneTimeTip
	for _, q := range queries {
		amount, ok := autopay.Uint(res, multicall.Key{Field: autopay.FieldCurrentTip, ID: q.ID})
		if !ok || amount.Sign() <= 0 {
			continue
		}
		tips = append(tips, domain.OneTimeTip{Query: q, Amount: new(big.Int).Set(amount)})
	}
	return tips, nil
}

// LoadCurrentValues fills the current value and history bounds of
// candidates: the latest report at or before now, its index, and the index
// of the latest report before now minus the claim horizon. Queries shared by
// several feeds are read once.
//
// now is a block timestamp and a report mined in that block counts as
// current. The contract lookups are strict, so they are made at now+1.
func (f *Fetcher) LoadCurrentValues(ctx context.Context, candidates []*domain.FeedCandidate, now uint64) error {
	if len(candidates) == 0 {
		return nil
	}

	var monthOld uint64
	if now > domain.MonthHorizon {
		monthOld = now - domain.MonthHorizon
	}
	atOrBefore := now
	if now < math.MaxUint64 {
		atOrBefore = now + 1
	}

	seen := make(map[domain.QueryID]struct{})
	var calls []multicall.Call
	for _, c := range candidates {
		qid := c.Query.ID
		if _, dup := seen[qid]; dup {
			continue
		}
		seen[qid] = struct{}{}

		for _, build := range []func() (multicall.Call, error){
			func() (multicall.Call, error) { return f.contract.DataBeforeCall(qid, atOrBefore) },
			func() (multicall.Call, error) { return f.contract.CurrentIndexCall(qid, atOrBefore) },
			func() (multicall.Call, error) { return f.contract.MonthOldIndexCall(qid, monthOld) },
		} {
			call, err := build()
			if err != nil {
				return err
			}
			calls = append(calls, call)
		}
	}

	res, err := f.gateway.Execute(ctx, calls, false)
	if err != nil {
		return fmt.Errorf("read current values: %w", err)
	}

	for _, c := range candidates {
		key := func(field string) multicall.Key {
			return multicall.Key{Field: field, ID: c.Query.ID}
		}

		c.CurrentValue, _ = autopay.Bytes(res, key(autopay.FieldCurrentValue))
		c.CurrentValueTimestamp, _ = autopay.Uint64(res, key(autopay.FieldCurrentValueTimestamp))

		if found, _ := autopay.Bool(res, key(autopay.FieldCurrentStatus)); found {
			c.CurrentValueIndex, c.HasCurrentIndex = autopay.Uint64(res, key(autopay.FieldCurrentValueIndex))
		}
		if found, _ := autopay.Bool(res, key(autopay.FieldMonthOldStatus)); found {
			c.MonthOldIndex, c.HasMonthOldIndex = autopay.Uint64(res, key(autopay.FieldMonthOldIndex))
		}
	}

	f.logger.Debug("current values loaded",
		zap.Int("candidates", len(candidates)),
		zap.Int("queries", len(seen)))
	return nil
}

// QueryFeeds reads the one-time tip of query and the funded feeds registered
// for it, through getCurrentFeeds and getDataFeed.
func (f *Fetcher) QueryFeeds(ctx context.Context, query domain.Query) ([]*domain.FeedCandidate, *big.Int, error) {
	tipCall, err := f.contract.CurrentTipCall(query.ID)
	if err != nil {
		return nil, nil, err
	}
	feedsCall, err := f.contract.CurrentFeedsCall(query.ID)
	if err != nil {
		return nil, nil, err
	}

	res, err := f.gateway.Execute(ctx, []multicall.Call{tipCall, feedsCall}, false)
	if err != nil {
		return nil, nil, fmt.Errorf("read query feeds: %w", err)
	}

	tip := new(big.Int)
	if amount, ok := autopay.Uint(res, multicall.Key{Field: autopay.FieldCurrentTip, ID: query.ID}); ok {
		tip.Set(amount)
	}

	ids, _ := autopay.FeedIDs(res, multicall.Key{Field: autopay.FieldCurrentFeeds, ID: query.ID})
	if len(ids) == 0 {
		return nil, tip, nil
	}

	calls := make([]multicall.Call, 0, len(ids))
	seen := make(map[domain.FeedID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		call, err := f.contract.DataFeedCall(id)
		if err != nil {
			return nil, nil, err
		}
		calls = append(calls, call)
	}

	details, err := f.gateway.Execute(ctx, calls, false)
	if err != nil {
		return nil, nil, fmt.Errorf("read feed details: %w", err)
	}

	var candidates []*domain.FeedCandidate
	for id := range seen {
		v, ok := details.Get(multicall.Key{Field: autopay.FieldDataFeed, ID: id})
		if !ok {
			continue
		}
		params, err := autopay.ToParams(v.(autopay.FeedDetails))
		if err != nil {
			f.logger.Warn("skip malformed feed",
				zap.String("feed_id", id.Hex()),
				zap.Error(err))
			continue
		}
		if params.Balance.Sign() <= 0 {
			continue
		}
		candidates = append(candidates, &domain.FeedCandidate{
			FeedID: id,
			Query:  query,
			Params: params,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return bytes.Compare(candidates[i].FeedID[:], candidates[j].FeedID[:]) < 0
	})

	return candidates, tip, nil
}
