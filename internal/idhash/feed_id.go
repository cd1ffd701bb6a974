package idhash

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"

	"autopay-tips/internal/domain"
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)

	feedIDArgs = abi.Arguments{
		{Type: bytes32Type}, // queryId
		{Type: uint256Type}, // reward
		{Type: uint256Type}, // startTime
		{Type: uint256Type}, // interval
		{Type: uint256Type}, // window
		{Type: uint256Type}, // priceThreshold
		{Type: uint256Type}, // rewardIncreasePerSecond
	}
)

// ComputeFeedID computes a feed id the way the autopay contract does:
// keccak256(abi.encode(queryId, reward, startTime, interval, window, priceThreshold, rewardIncreasePerSecond)).
func ComputeFeedID(queryID domain.QueryID, p domain.FeedParameters) (domain.FeedID, error) {
	packed, err := feedIDArgs.Pack(
		[32]byte(queryID),
		orZero(p.Reward),
		new(big.Int).SetUint64(p.StartTime),
		new(big.Int).SetUint64(p.Interval),
		new(big.Int).SetUint64(p.Window),
		new(big.Int).SetUint64(p.PriceThreshold),
		orZero(p.RewardIncreasePerSecond),
	)
	if err != nil {
		return domain.FeedID{}, fmt.Errorf("pack feed id: %w", err)
	}
	return domain.FeedID(crypto.Keccak256Hash(packed)), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
