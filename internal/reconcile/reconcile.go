// Package reconcile derives the balance a feed can still pay once rewards
// owed to earlier, unclaimed reports are set aside.
package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"autopay-tips/internal/autopay"
	"autopay-tips/internal/domain"
	"autopay-tips/internal/multicall"
	"autopay-tips/internal/window"
)

// Gateway executes batched contract reads.
type Gateway interface {
	Execute(ctx context.Context, calls []multicall.Call, requireSuccess bool) (*multicall.Result, error)
}

// Obligation is a past report that earned a feed reward.
type Obligation struct {
	Timestamp      uint64
	TimeIntoWindow uint64
}

// Reconciler walks report history and claim status of feeds.
type Reconciler struct {
	gateway  Gateway
	contract *autopay.Contract
	logger   *zap.Logger
}

// Options for creating Reconciler.
type Options struct {
	Gateway  Gateway
	Contract *autopay.Contract
	Logger   *zap.Logger
}

// New creates a new Reconciler.
func New(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		gateway:  opts.Gateway,
		contract: opts.Contract,
		logger:   logger,
	}
}

// Reconcile sets TrueBalance and caps Tip for every candidate, and returns
// the candidates whose true balance is still positive, in input order.
// Candidates must have their current values and Tip loaded.
//
// History of all candidates is read in one batch and claim status of all
// candidates in a second one. Candidates with missing history or claim
// status are dropped.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []*domain.FeedCandidate, now uint64) ([]*domain.FeedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	candidates, err := r.LoadHistory(ctx, candidates)
	if err != nil {
		return nil, err
	}

	owedBy := make(map[domain.FeedID][]Obligation)
	var calls []multicall.Call
	for _, c := range candidates {
		obligations := EligibleReports(c.History, c.Params, now)
		if len(obligations) == 0 {
			continue
		}
		owedBy[c.FeedID] = obligations

		stamps := make([]uint64, len(obligations))
		for i, o := range obligations {
			stamps[i] = o.Timestamp
		}
		call, err := r.contract.ClaimStatusCall(c.FeedID, c.Query.ID, stamps)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	var claims *multicall.Result
	if len(calls) > 0 {
		claims, err = r.gateway.Execute(ctx, calls, false)
		if err != nil {
			return nil, fmt.Errorf("read claim status: %w", err)
		}
	}

	kept := make([]*domain.FeedCandidate, 0, len(candidates))
	for _, c := range candidates {
		log := r.logger.With(zap.String("feed_id", c.FeedID.Hex()))

		owed := new(big.Int)
		if obligations, ok := owedBy[c.FeedID]; ok {
			status, ok := autopay.Bools(claims, multicall.Key{Field: autopay.FieldClaimStatus, ID: c.FeedID})
			if !ok || len(status) != len(obligations) {
				log.Warn("claim status unavailable, dropping feed")
				continue
			}
			owed = Owed(c.Params, obligations, status)
		}

		c.TrueBalance = new(big.Int).Sub(c.Params.Balance, owed)
		if c.TrueBalance.Sign() <= 0 {
			log.Debug("feed balance spent by unclaimed reports",
				zap.String("balance", c.Params.Balance.String()),
				zap.String("owed", owed.String()))
			continue
		}

		tip := c.Tip
		if tip == nil {
			tip = c.Params.Reward
		}
		if tip.Cmp(c.TrueBalance) > 0 {
			tip = c.TrueBalance
		}
		c.Tip = new(big.Int).Set(tip)
		kept = append(kept, c)
	}

	return kept, nil
}

// LoadHistory fills History with the report timestamps from MonthOldIndex
// (0 when absent) to CurrentValueIndex. Queries shared by several
// candidates are read once. Candidates without a current index get no
// history.
//
// It returns the candidates whose history was read in full, in input order.
// A candidate with any timestamp of its span missing is dropped.
func (r *Reconciler) LoadHistory(ctx context.Context, candidates []*domain.FeedCandidate) ([]*domain.FeedCandidate, error) {
	type span struct{ from, to uint64 }
	spans := make(map[domain.QueryID]span)
	var order []domain.QueryID

	for _, c := range candidates {
		if !c.HasCurrentIndex {
			continue
		}
		from := uint64(0)
		if c.HasMonthOldIndex {
			from = c.MonthOldIndex
		}
		if from > c.CurrentValueIndex {
			continue
		}
		s, ok := spans[c.Query.ID]
		if !ok {
			order = append(order, c.Query.ID)
			spans[c.Query.ID] = span{from: from, to: c.CurrentValueIndex}
			continue
		}
		if from < s.from {
			s.from = from
		}
		if c.CurrentValueIndex > s.to {
			s.to = c.CurrentValueIndex
		}
		spans[c.Query.ID] = s
	}

	var calls []multicall.Call
	for _, qid := range order {
		s := spans[qid]
		for i := s.from; i <= s.to; i++ {
			call, err := r.contract.TimestampByIndexCall(qid, i)
			if err != nil {
				return nil, err
			}
			calls = append(calls, call)
		}
	}
	if len(calls) == 0 {
		for _, c := range candidates {
			c.History = nil
		}
		return candidates, nil
	}

	res, err := r.gateway.Execute(ctx, calls, false)
	if err != nil {
		return nil, fmt.Errorf("read report history: %w", err)
	}

	kept := make([]*domain.FeedCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.History = nil
		s, ok := spans[c.Query.ID]
		if !ok || !c.HasCurrentIndex {
			kept = append(kept, c)
			continue
		}
		from := uint64(0)
		if c.HasMonthOldIndex {
			from = c.MonthOldIndex
		}

		complete := true
		for i := max(from, s.from); i <= c.CurrentValueIndex; i++ {
			ts, ok := autopay.Uint64(res, multicall.Key{Field: autopay.FieldTimestamp, ID: c.Query.ID, Index: i})
			if !ok || ts == 0 {
				r.logger.Warn("report history incomplete, dropping feed",
					zap.String("feed_id", c.FeedID.Hex()),
					zap.String("query_id", c.Query.ID.Hex()),
					zap.Uint64("index", i))
				complete = false
				break
			}
			c.History = append(c.History, ts)
		}
		if !complete {
			c.History = nil
			continue
		}
		kept = append(kept, c)
	}

	r.logger.Debug("report history loaded",
		zap.Int("queries", len(order)),
		zap.Int("timestamps", len(calls)))
	return kept, nil
}

// EligibleReports returns the reports of history that were first in their
// window, judged against their immediate predecessor. The first timestamp
// only serves as a predecessor. Reports before the feed start or at or
// before now minus the claim horizon are not counted.
func EligibleReports(history []uint64, p domain.FeedParameters, now uint64) []Obligation {
	if len(history) < 2 {
		return nil
	}

	var horizon uint64
	if now > domain.MonthHorizon {
		horizon = now - domain.MonthHorizon
	}

	var out []Obligation
	for i := 1; i < len(history); i++ {
		ts := history[i]
		if ts < p.StartTime || ts <= horizon {
			continue
		}
		first, into := window.IsFirstInWindow(history[i-1], ts, p.StartTime, p.Window, p.Interval)
		if first {
			out = append(out, Obligation{Timestamp: ts, TimeIntoWindow: into})
		}
	}
	return out
}

// Owed sums the rewards of obligations whose claim status is false,
// including the increase accrued at each report.
func Owed(p domain.FeedParameters, obligations []Obligation, claimed []bool) *big.Int {
	owed := new(big.Int)
	for i, o := range obligations {
		if i < len(claimed) && claimed[i] {
			continue
		}
		owed.Add(owed, window.Accrued(p.Reward, p.RewardIncreasePerSecond, o.TimeIntoWindow))
	}
	return owed
}
