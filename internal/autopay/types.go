package autopay

import "math/big"

// FeedDetails mirrors the contract's FeedDetails struct.
// Field order follows the ABI tuple.
type FeedDetails struct {
	Reward                  *big.Int
	Balance                 *big.Int
	StartTime               *big.Int
	Interval                *big.Int
	Window                  *big.Int
	PriceThreshold          *big.Int
	RewardIncreasePerSecond *big.Int
	FeedsWithFundingIndex   *big.Int
}

// FundedFeed is one entry of getFundedFeedDetails.
type FundedFeed struct {
	Details   FeedDetails
	QueryData []byte
}

// SingleTip is one entry of getFundedSingleTipsInfo.
type SingleTip struct {
	QueryData []byte
	Tip       *big.Int
}
