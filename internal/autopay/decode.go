package autopay

import (
	"fmt"
	"math/big"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/multicall"
)

// ToParams converts contract feed details into domain parameters.
// Time fields and the threshold must fit in uint64 and interval must be non-zero.
func ToParams(d FeedDetails) (domain.FeedParameters, error) {
	var p domain.FeedParameters

	if d.Reward == nil || d.Balance == nil || d.RewardIncreasePerSecond == nil {
		return p, fmt.Errorf("%w: missing amount field", ErrDecode)
	}

	fields := []struct {
		name string
		in   *big.Int
		out  *uint64
	}{
		{"startTime", d.StartTime, &p.StartTime},
		{"interval", d.Interval, &p.Interval},
		{"window", d.Window, &p.Window},
		{"priceThreshold", d.PriceThreshold, &p.PriceThreshold},
		{"feedsWithFundingIndex", d.FeedsWithFundingIndex, &p.FeedsWithFundingIndex},
	}
	for _, f := range fields {
		if f.in == nil || f.in.Sign() < 0 || !f.in.IsUint64() {
			return p, fmt.Errorf("%w: %s out of range", ErrDecode, f.name)
		}
		*f.out = f.in.Uint64()
	}

	if p.Interval == 0 {
		return p, fmt.Errorf("%w: zero interval", ErrDecode)
	}

	p.Reward = new(big.Int).Set(d.Reward)
	p.Balance = new(big.Int).Set(d.Balance)
	p.RewardIncreasePerSecond = new(big.Int).Set(d.RewardIncreasePerSecond)
	return p, nil
}

// Uint returns the uint256 value stored under key.
func Uint(res *multicall.Result, key multicall.Key) (*big.Int, bool) {
	v, ok := res.Get(key)
	if !ok {
		return nil, false
	}
	n, ok := v.(*big.Int)
	return n, ok && n != nil
}

// Uint64 returns the value stored under key when it fits in uint64.
func Uint64(res *multicall.Result, key multicall.Key) (uint64, bool) {
	n, ok := Uint(res, key)
	if !ok || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

// Bool returns the bool value stored under key.
func Bool(res *multicall.Result, key multicall.Key) (bool, bool) {
	v, ok := res.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Bytes returns the bytes value stored under key.
func Bytes(res *multicall.Result, key multicall.Key) ([]byte, bool) {
	v, ok := res.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Bools returns the bool[] value stored under key.
func Bools(res *multicall.Result, key multicall.Key) ([]bool, bool) {
	v, ok := res.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]bool)
	return b, ok
}

// FeedIDs returns the bytes32[] value stored under key.
func FeedIDs(res *multicall.Result, key multicall.Key) ([]domain.FeedID, bool) {
	v, ok := res.Get(key)
	if !ok {
		return nil, false
	}
	raw, ok := v.([][32]byte)
	if !ok {
		return nil, false
	}
	ids := make([]domain.FeedID, len(raw))
	for i, r := range raw {
		ids[i] = domain.FeedID(r)
	}
	return ids, true
}
