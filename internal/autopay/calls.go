// Package autopay binds the read-only surface of the autopay incentive
// contract to batched calls.
package autopay

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/multicall"
)

// ErrDecode is returned when a contract value cannot be interpreted.
var ErrDecode = errors.New("decode autopay value")

// Result fields. Each call stores its values under Key{Field, ID, Index}.
const (
	FieldFundedFeeds           = "funded_feeds"
	FieldFundedSingleTips      = "funded_single_tips"
	FieldCurrentTip            = "current_tip"
	FieldCurrentValue          = "current_value"
	FieldCurrentValueTimestamp = "current_value_timestamp"
	FieldCurrentStatus         = "current_status"
	FieldCurrentValueIndex     = "current_value_index"
	FieldMonthOldStatus        = "month_old_status"
	FieldMonthOldIndex         = "month_old_index"
	FieldTimestamp             = "timestamp"
	FieldClaimStatus           = "claim_status"
	FieldCurrentFeeds          = "current_feeds"
	FieldDataFeed              = "data_feed"
)

// Contract builds batched calls against one autopay deployment.
type Contract struct {
	Address common.Address
}

// NewContract creates a new Contract for the given address.
func NewContract(addr common.Address) *Contract {
	return &Contract{Address: addr}
}

func (c *Contract) call(method string, keys []multicall.Key, args ...interface{}) (multicall.Call, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return multicall.Call{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return multicall.Call{
		Target: c.Address,
		Method: method,
		Data:   data,
		Keys:   keys,
		Decode: unpacker(method),
	}, nil
}

// unpacker decodes raw outputs of method into one value per output.
func unpacker(method string) multicall.Decoder {
	return func(ret []byte) ([]interface{}, error) {
		values, err := ABI.Unpack(method, ret)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, method, err)
		}
		return values, nil
	}
}

// FundedFeedsCall reads getFundedFeedDetails.
func (c *Contract) FundedFeedsCall() (multicall.Call, error) {
	call, err := c.call("getFundedFeedDetails", []multicall.Key{{Field: FieldFundedFeeds}})
	if err != nil {
		return call, err
	}
	call.Decode = func(ret []byte) ([]interface{}, error) {
		var feeds []FundedFeed
		if err := ABI.UnpackIntoInterface(&feeds, "getFundedFeedDetails", ret); err != nil {
			return nil, fmt.Errorf("%w: getFundedFeedDetails: %v", ErrDecode, err)
		}
		return []interface{}{feeds}, nil
	}
	return call, nil
}

// FundedSingleTipsCall reads getFundedSingleTipsInfo.
func (c *Contract) FundedSingleTipsCall() (multicall.Call, error) {
	call, err := c.call("getFundedSingleTipsInfo", []multicall.Key{{Field: FieldFundedSingleTips}})
	if err != nil {
		return call, err
	}
	call.Decode = func(ret []byte) ([]interface{}, error) {
		var tips []SingleTip
		if err := ABI.UnpackIntoInterface(&tips, "getFundedSingleTipsInfo", ret); err != nil {
			return nil, fmt.Errorf("%w: getFundedSingleTipsInfo: %v", ErrDecode, err)
		}
		return []interface{}{tips}, nil
	}
	return call, nil
}

// CurrentTipCall reads getCurrentTip for a query.
func (c *Contract) CurrentTipCall(queryID domain.QueryID) (multicall.Call, error) {
	return c.call("getCurrentTip",
		[]multicall.Key{{Field: FieldCurrentTip, ID: queryID}},
		[32]byte(queryID))
}

// DataBeforeCall reads getDataBefore(queryId, timestamp).
func (c *Contract) DataBeforeCall(queryID domain.QueryID, timestamp uint64) (multicall.Call, error) {
	return c.call("getDataBefore",
		[]multicall.Key{
			{Field: FieldCurrentValue, ID: queryID},
			{Field: FieldCurrentValueTimestamp, ID: queryID},
		},
		[32]byte(queryID), new(big.Int).SetUint64(timestamp))
}

// CurrentIndexCall reads getIndexForDataBefore(queryId, timestamp).
func (c *Contract) CurrentIndexCall(queryID domain.QueryID, timestamp uint64) (multicall.Call, error) {
	return c.call("getIndexForDataBefore",
		[]multicall.Key{
			{Field: FieldCurrentStatus, ID: queryID},
			{Field: FieldCurrentValueIndex, ID: queryID},
		},
		[32]byte(queryID), new(big.Int).SetUint64(timestamp))
}

// MonthOldIndexCall reads getIndexForDataBefore(queryId, monthOld).
func (c *Contract) MonthOldIndexCall(queryID domain.QueryID, monthOld uint64) (multicall.Call, error) {
	return c.call("getIndexForDataBefore",
		[]multicall.Key{
			{Field: FieldMonthOldStatus, ID: queryID},
			{Field: FieldMonthOldIndex, ID: queryID},
		},
		[32]byte(queryID), new(big.Int).SetUint64(monthOld))
}

// TimestampByIndexCall reads getTimestampbyQueryIdandIndex(queryId, index).
func (c *Contract) TimestampByIndexCall(queryID domain.QueryID, index uint64) (multicall.Call, error) {
	return c.call("getTimestampbyQueryIdandIndex",
		[]multicall.Key{{Field: FieldTimestamp, ID: queryID, Index: index}},
		[32]byte(queryID), new(big.Int).SetUint64(index))
}

// ClaimStatusCall reads getRewardClaimStatusList(feedId, queryId, timestamps).
func (c *Contract) ClaimStatusCall(feedID domain.FeedID, queryID domain.QueryID, timestamps []uint64) (multicall.Call, error) {
	ts := make([]*big.Int, len(timestamps))
	for i, t := range timestamps {
		ts[i] = new(big.Int).SetUint64(t)
	}
	return c.call("getRewardClaimStatusList",
		[]multicall.Key{{Field: FieldClaimStatus, ID: feedID}},
		[32]byte(feedID), [32]byte(queryID), ts)
}

// CurrentFeedsCall reads getCurrentFeeds(queryId).
func (c *Contract) CurrentFeedsCall(queryID domain.QueryID) (multicall.Call, error) {
	return c.call("getCurrentFeeds",
		[]multicall.Key{{Field: FieldCurrentFeeds, ID: queryID}},
		[32]byte(queryID))
}

// DataFeedCall reads getDataFeed(feedId).
func (c *Contract) DataFeedCall(feedID domain.FeedID) (multicall.Call, error) {
	call, err := c.call("getDataFeed",
		[]multicall.Key{{Field: FieldDataFeed, ID: feedID}},
		[32]byte(feedID))
	if err != nil {
		return call, err
	}
	call.Decode = func(ret []byte) ([]interface{}, error) {
		// A single struct output is copied into the first field
		var out struct{ Details FeedDetails }
		if err := ABI.UnpackIntoInterface(&out, "getDataFeed", ret); err != nil {
			return nil, fmt.Errorf("%w: getDataFeed: %v", ErrDecode, err)
		}
		return []interface{}{out.Details}, nil
	}
	return call, nil
}
