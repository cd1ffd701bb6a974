package window

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autopay-tips/internal/domain"
)

// PriceSource provides the current price of a query.
type PriceSource interface {
	FetchPrice(ctx context.Context, query domain.Query) (decimal.Decimal, error)
}

// ValueDecoder interprets a stored oracle value as a number.
type ValueDecoder interface {
	DecodeValue(id domain.QueryID, value []byte) (decimal.Decimal, error)
}

// Evaluator applies the feed eligibility policy:
//
//   - price threshold 0: eligible only as the first report in the window,
//     paid reward plus the accrued increase;
//   - price threshold > 0: eligible as the first report in the window (same
//     pay), or when the price moved by more than the threshold, paid the base
//     reward.
//
// The price is only fetched when the window test fails.
type Evaluator struct {
	prices PriceSource
	values ValueDecoder
	logger *zap.Logger
}

// EvaluatorOptions for creating Evaluator.
type EvaluatorOptions struct {
	Prices PriceSource
	Values ValueDecoder
	Logger *zap.Logger
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(opts EvaluatorOptions) *Evaluator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		prices: opts.Prices,
		values: opts.Values,
		logger: logger,
	}
}

// Evaluate decides whether reporting c's query at now earns the feed reward.
// The candidate's current value fields must describe the latest report
// before now.
func (e *Evaluator) Evaluate(ctx context.Context, c *domain.FeedCandidate, now uint64) Decision {
	p := c.Params
	if now < p.StartTime {
		return Decision{Reason: ReasonBeforeStart}
	}

	first, timeInto := IsFirstInWindow(c.CurrentValueTimestamp, now, p.StartTime, p.Window, p.Interval)
	if first {
		return Decision{
			Eligible:       true,
			Reason:         ReasonFirstInWindow,
			TimeIntoWindow: timeInto,
			Reward:         Accrued(p.Reward, p.RewardIncreasePerSecond, timeInto),
		}
	}

	failed := ReasonWindowClosed
	if timeInto < p.Window {
		failed = ReasonAlreadyReported
	}
	if p.PriceThreshold == 0 {
		return Decision{Reason: failed, TimeIntoWindow: timeInto}
	}

	d := e.checkPrice(ctx, c)
	d.TimeIntoWindow = timeInto
	return d
}

func (e *Evaluator) checkPrice(ctx context.Context, c *domain.FeedCandidate) Decision {
	log := e.logger.With(
		zap.String("feed_id", c.FeedID.Hex()),
		zap.String("query_id", c.Query.ID.Hex()))

	previous := decimal.Zero
	if len(c.CurrentValue) > 0 {
		if e.values == nil {
			return Decision{Reason: ReasonBadValue}
		}
		v, err := e.values.DecodeValue(c.Query.ID, c.CurrentValue)
		if err != nil {
			log.Warn("decode stored value", zap.Error(err))
			return Decision{Reason: ReasonBadValue}
		}
		previous = v
	}

	if e.prices == nil {
		return Decision{Reason: ReasonNoPrice}
	}
	current, err := e.prices.FetchPrice(ctx, c.Query)
	if err != nil {
		log.Debug("no price for threshold check", zap.Error(err))
		return Decision{Reason: ReasonNoPrice}
	}

	bps := PriceChangeBps(previous, current)
	if bps <= c.Params.PriceThreshold {
		return Decision{Reason: ReasonBelowThreshold, ChangeBps: bps}
	}

	return Decision{
		Eligible:  true,
		Reason:    ReasonPriceChange,
		ChangeBps: bps,
		Reward:    Accrued(c.Params.Reward, nil, 0),
	}
}
