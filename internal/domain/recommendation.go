package domain

import "math/big"

// Recommendation is the single best query to report right now.
type Recommendation struct {
	QueryID    QueryID
	QueryData  []byte
	TipAmount  *big.Int // FeedTip + OneTimeTip
	FeedTip    *big.Int
	OneTimeTip *big.Int
	FeedIDs    []FeedID // feeds contributing to FeedTip
}

// QueryTotal is the summed reward available for one query in a cycle.
type QueryTotal struct {
	Query      Query
	FeedTip    *big.Int
	OneTimeTip *big.Int
	FeedIDs    []FeedID
}

// Total returns FeedTip + OneTimeTip.
func (q *QueryTotal) Total() *big.Int {
	total := new(big.Int)
	if q.FeedTip != nil {
		total.Add(total, q.FeedTip)
	}
	if q.OneTimeTip != nil {
		total.Add(total, q.OneTimeTip)
	}
	return total
}
