// Package selector sums rewards per query and picks the one to report.
package selector

import (
	"math/big"
	"sort"

	"autopay-tips/internal/domain"
)

// Aggregate sums feed tips and one-time tips by query id. Feeds without a
// positive Tip and non-positive one-time tips are ignored. The result is
// sorted by query id.
func Aggregate(feeds []*domain.FeedCandidate, tips []domain.OneTimeTip) []*domain.QueryTotal {
	byID := make(map[domain.QueryID]*domain.QueryTotal)
	get := func(q domain.Query) *domain.QueryTotal {
		t, ok := byID[q.ID]
		if !ok {
			t = &domain.QueryTotal{
				Query:      q,
				FeedTip:    new(big.Int),
				OneTimeTip: new(big.Int),
			}
			byID[q.ID] = t
		}
		return t
	}

	for _, f := range feeds {
		if f.Tip == nil || f.Tip.Sign() <= 0 {
			continue
		}
		t := get(f.Query)
		t.FeedTip.Add(t.FeedTip, f.Tip)
		t.FeedIDs = append(t.FeedIDs, f.FeedID)
	}
	for _, tip := range tips {
		if tip.Amount == nil || tip.Amount.Sign() <= 0 {
			continue
		}
		t := get(tip.Query)
		t.OneTimeTip.Add(t.OneTimeTip, tip.Amount)
	}

	out := make([]*domain.QueryTotal, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Query.ID.Less(out[j].Query.ID)
	})
	return out
}

// Best returns the query with the highest total. Equal totals go to the
// smallest query id. It returns nil when totals is empty.
func Best(totals []*domain.QueryTotal) *domain.Recommendation {
	var best *domain.QueryTotal
	var bestTotal *big.Int
	for _, t := range totals {
		total := t.Total()
		if total.Sign() <= 0 {
			continue
		}
		if best == nil {
			best, bestTotal = t, total
			continue
		}
		switch total.Cmp(bestTotal) {
		case 1:
			best, bestTotal = t, total
		case 0:
			if t.Query.ID.Less(best.Query.ID) {
				best, bestTotal = t, total
			}
		}
	}
	if best == nil {
		return nil
	}

	return &domain.Recommendation{
		QueryID:    best.Query.ID,
		QueryData:  best.Query.Data,
		TipAmount:  bestTotal,
		FeedTip:    new(big.Int).Set(best.FeedTip),
		OneTimeTip: new(big.Int).Set(best.OneTimeTip),
		FeedIDs:    append([]domain.FeedID(nil), best.FeedIDs...),
	}
}
