// Package autopaytest provides an in-memory autopay contract for tests.
package autopaytest

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"autopay-tips/internal/autopay"
	"autopay-tips/internal/domain"
	ethstub "autopay-tips/internal/ethrpc/stub"
	"autopay-tips/internal/idhash"
	"autopay-tips/internal/multicall"
	mcstub "autopay-tips/internal/multicall/stub"
)

// Address is where Env deploys the fake autopay contract.
var Address = common.HexToAddress("0x9BE9B0CFA89Ea800556C6efbA67b455D336db1D0")

var errRevert = errors.New("revert")

type feed struct {
	id        domain.FeedID
	queryData []byte
	queryID   domain.QueryID
	details   autopay.FeedDetails
}

type report struct {
	timestamp uint64
	value     []byte
}

// Chain is the state of a fake autopay contract.
type Chain struct {
	mu sync.Mutex

	feeds   []*feed
	reports map[domain.QueryID][]report
	claimed map[domain.FeedID]map[uint64]bool
	tips    map[domain.QueryID]*big.Int
	tipData map[domain.QueryID][]byte

	// Reverts lists methods that revert unconditionally.
	Reverts map[string]bool
}

// NewChain creates an empty fake contract.
func NewChain() *Chain {
	return &Chain{
		reports: make(map[domain.QueryID][]report),
		claimed: make(map[domain.FeedID]map[uint64]bool),
		tips:    make(map[domain.QueryID]*big.Int),
		tipData: make(map[domain.QueryID][]byte),
		Reverts: make(map[string]bool),
	}
}

// AddFeed registers a funded feed and returns its id.
func (c *Chain) AddFeed(queryData []byte, p domain.FeedParameters) domain.FeedID {
	c.mu.Lock()
	defer c.mu.Unlock()

	qid := idhash.ComputeQueryID(queryData)
	fid, err := idhash.ComputeFeedID(qid, p)
	if err != nil {
		panic(err)
	}

	c.feeds = append(c.feeds, &feed{
		id:        fid,
		queryData: queryData,
		queryID:   qid,
		details: autopay.FeedDetails{
			Reward:                  orZero(p.Reward),
			Balance:                 orZero(p.Balance),
			StartTime:               new(big.Int).SetUint64(p.StartTime),
			Interval:                new(big.Int).SetUint64(p.Interval),
			Window:                  new(big.Int).SetUint64(p.Window),
			PriceThreshold:          new(big.Int).SetUint64(p.PriceThreshold),
			RewardIncreasePerSecond: orZero(p.RewardIncreasePerSecond),
			FeedsWithFundingIndex:   new(big.Int).SetUint64(uint64(len(c.feeds) + 1)),
		},
	})
	return fid
}

// AddRawFeed registers a feed with arbitrary details, for malformed inputs.
func (c *Chain) AddRawFeed(queryData []byte, d autopay.FeedDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds = append(c.feeds, &feed{
		queryData: queryData,
		queryID:   idhash.ComputeQueryID(queryData),
		details:   d,
	})
}

// Report records a value for a query at timestamp. Timestamps must be added
// in ascending order per query.
func (c *Chain) Report(queryData []byte, timestamp uint64, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qid := idhash.ComputeQueryID(queryData)
	c.reports[qid] = append(c.reports[qid], report{timestamp: timestamp, value: value})
	sort.Slice(c.reports[qid], func(i, j int) bool {
		return c.reports[qid][i].timestamp < c.reports[qid][j].timestamp
	})
}

// Claim marks the reward of feed for the report at timestamp as claimed.
func (c *Chain) Claim(feedID domain.FeedID, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[feedID] == nil {
		c.claimed[feedID] = make(map[uint64]bool)
	}
	c.claimed[feedID][timestamp] = true
}

// Tip adds a one-time tip to a query.
func (c *Chain) Tip(queryData []byte, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qid := idhash.ComputeQueryID(queryData)
	if c.tips[qid] == nil {
		c.tips[qid] = new(big.Int)
	}
	c.tips[qid].Add(c.tips[qid], amount)
	c.tipData[qid] = queryData
}

// SetBalance overrides a feed's nominal balance.
func (c *Chain) SetBalance(feedID domain.FeedID, balance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.feeds {
		if f.id == feedID {
			f.details.Balance = balance
		}
	}
}

// Handler answers eth_call for the fake contract.
func (c *Chain) Handler() ethstub.Handler {
	return func(data []byte) ([]byte, error) {
		method, err := autopay.ABI.MethodById(data)
		if err != nil {
			return nil, fmt.Errorf("unknown selector: %w", err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.Reverts[method.Name] {
			return nil, errRevert
		}

		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
		}

		switch method.Name {
		case "getFundedFeedDetails":
			var out []autopay.FundedFeed
			for _, f := range c.feeds {
				if f.details.Balance != nil && f.details.Balance.Sign() > 0 {
					out = append(out, autopay.FundedFeed{Details: f.details, QueryData: f.queryData})
				}
			}
			if out == nil {
				out = []autopay.FundedFeed{}
			}
			return method.Outputs.Pack(out)

		case "getFundedSingleTipsInfo":
			out := []autopay.SingleTip{}
			ids := make([]domain.QueryID, 0, len(c.tips))
			for id := range c.tips {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
			for _, id := range ids {
				if c.tips[id].Sign() > 0 {
					out = append(out, autopay.SingleTip{QueryData: c.tipData[id], Tip: c.tips[id]})
				}
			}
			return method.Outputs.Pack(out)

		case "getCurrentTip":
			qid := domain.QueryID(args[0].([32]byte))
			tip, ok := c.tips[qid]
			if !ok || tip.Sign() == 0 {
				return nil, errRevert
			}
			return method.Outputs.Pack(tip)

		case "getDataBefore":
			qid := domain.QueryID(args[0].([32]byte))
			ts := args[1].(*big.Int).Uint64()
			i := c.indexBefore(qid, ts)
			if i < 0 {
				return method.Outputs.Pack([]byte{}, new(big.Int))
			}
			r := c.reports[qid][i]
			return method.Outputs.Pack(r.value, new(big.Int).SetUint64(r.timestamp))

		case "getIndexForDataBefore":
			qid := domain.QueryID(args[0].([32]byte))
			ts := args[1].(*big.Int).Uint64()
			i := c.indexBefore(qid, ts)
			if i < 0 {
				return method.Outputs.Pack(false, new(big.Int))
			}
			return method.Outputs.Pack(true, big.NewInt(int64(i)))

		case "getTimestampbyQueryIdandIndex":
			qid := domain.QueryID(args[0].([32]byte))
			idx := args[1].(*big.Int).Uint64()
			reports := c.reports[qid]
			if idx >= uint64(len(reports)) {
				return method.Outputs.Pack(new(big.Int))
			}
			return method.Outputs.Pack(new(big.Int).SetUint64(reports[idx].timestamp))

		case "getRewardClaimStatusList":
			fid := domain.FeedID(args[0].([32]byte))
			stamps := args[2].([]*big.Int)
			out := make([]bool, len(stamps))
			for i, ts := range stamps {
				out[i] = c.claimed[fid][ts.Uint64()]
			}
			return method.Outputs.Pack(out)

		case "getCurrentFeeds":
			qid := domain.QueryID(args[0].([32]byte))
			out := [][32]byte{}
			for _, f := range c.feeds {
				if f.queryID == qid {
					out = append(out, [32]byte(f.id))
				}
			}
			return method.Outputs.Pack(out)

		case "getDataFeed":
			fid := domain.FeedID(args[0].([32]byte))
			for _, f := range c.feeds {
				if f.id == fid {
					return method.Outputs.Pack(f.details)
				}
			}
			return method.Outputs.Pack(autopay.FeedDetails{
				Reward: new(big.Int), Balance: new(big.Int), StartTime: new(big.Int),
				Interval: new(big.Int), Window: new(big.Int), PriceThreshold: new(big.Int),
				RewardIncreasePerSecond: new(big.Int), FeedsWithFundingIndex: new(big.Int),
			})
		}

		return nil, fmt.Errorf("unsupported method %s", method.Name)
	}
}

// indexBefore returns the index of the latest report strictly before ts, or -1.
func (c *Chain) indexBefore(qid domain.QueryID, ts uint64) int {
	reports := c.reports[qid]
	i := sort.Search(len(reports), func(i int) bool { return reports[i].timestamp >= ts })
	return i - 1
}

// Env wires a Chain behind a Multicall2 emulation and a gateway.
type Env struct {
	Chain    *Chain
	Client   *ethstub.Client
	Gateway  *multicall.Gateway
	Contract *autopay.Contract
}

// NewEnv creates an Env with an empty chain.
func NewEnv() *Env {
	chain := NewChain()
	client := ethstub.NewClient()
	client.Handle(Address, chain.Handler())
	client.Handle(multicall.DefaultAddress, mcstub.Handler(client))

	return &Env{
		Chain:    chain,
		Client:   client,
		Gateway:  multicall.NewGateway(multicall.Options{Client: client}),
		Contract: autopay.NewContract(Address),
	}
}

// RoundTrips returns the number of multicall requests made so far.
func (e *Env) RoundTrips() int {
	return e.Client.CallCount(multicall.DefaultAddress)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
