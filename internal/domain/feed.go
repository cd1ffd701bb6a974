package domain

import "math/big"

// MonthHorizon is how far back, in seconds, a feed reward may still be claimed.
const MonthHorizon uint64 = 2_592_000

// FeedParameters are the economic terms of a recurring reward feed.
// Amounts are token base units; times are unix seconds.
type FeedParameters struct {
	Reward                  *big.Int // base reward per eligible report
	Balance                 *big.Int // nominal remaining funding
	StartTime               uint64
	Interval                uint64 // seconds between window openings
	Window                  uint64 // seconds a window stays open
	PriceThreshold          uint64 // basis points out of 10000, 0 disables
	RewardIncreasePerSecond *big.Int
	FeedsWithFundingIndex   uint64
}

// FeedCandidate is a funded feed under evaluation for one reporting cycle.
type FeedCandidate struct {
	FeedID FeedID
	Query  Query
	Params FeedParameters

	// Populated from the oracle's latest report before now.
	CurrentValue          []byte
	CurrentValueTimestamp uint64 // 0 when the query was never reported
	CurrentValueIndex     uint64
	HasCurrentIndex       bool
	MonthOldIndex         uint64
	HasMonthOldIndex      bool

	// Report timestamps from MonthOldIndex to CurrentValueIndex, ascending.
	History []uint64

	// Reward this cycle would pay, set once the candidate is eligible.
	Tip *big.Int
	// Nominal balance minus rewards owed to unclaimed eligible reports.
	TrueBalance *big.Int
}

// OneTimeTip is a tip attached directly to a query, independent of any feed.
type OneTimeTip struct {
	Query  Query
	Amount *big.Int
}
