package suggest_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"autopay-tips/internal/autopay/autopaytest"
	"autopay-tips/internal/domain"
	"autopay-tips/internal/multicall"
	"autopay-tips/internal/pricesource"
	"autopay-tips/internal/registry"
	"autopay-tips/internal/suggest"
)

const T = 1_700_000_000

var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneToken)
}

type fixture struct {
	env    *autopaytest.Env
	reg    *registry.Registry
	prices *pricesource.Static
	s      *suggest.Suggester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.New([]registry.EntrySpec{
		{Tag: "eth-usd-spot", Asset: "eth", Currency: "usd", Source: "static"},
		{Tag: "btc-usd-spot", Asset: "btc", Currency: "usd", Source: "static"},
	}, nil)
	require.NoError(t, err)

	prices := pricesource.NewStatic()
	env := autopaytest.NewEnv()
	s := suggest.Assemble(suggest.Deps{
		Gateway:  env.Gateway,
		Contract: env.Contract,
		Registry: reg,
		Prices: pricesource.NewRouter(pricesource.RouterOptions{
			Registry: reg,
			Sources:  map[string]pricesource.Source{"static": prices},
		}),
		Logger: zaptest.NewLogger(t),
	})
	return &fixture{env: env, reg: reg, prices: prices, s: s}
}

func (f *fixture) query(tag string) domain.Query {
	e, ok := f.reg.ByTag(tag)
	if !ok {
		panic("unknown tag " + tag)
	}
	return e.Query
}

func basicFeed() domain.FeedParameters {
	return domain.FeedParameters{
		Reward:                  new(big.Int).Set(oneToken),
		Balance:                 tokens(10),
		StartTime:               T,
		Interval:                100,
		Window:                  99,
		RewardIncreasePerSecond: big.NewInt(0),
	}
}

func price(p int64) []byte {
	out := make([]byte, 32)
	new(big.Int).Mul(big.NewInt(p), oneToken).FillBytes(out)
	return out
}

func TestSuggestReport_FirstInWindow(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")
	f.env.Chain.AddFeed(eth.Data, basicFeed())

	rec, err := f.s.SuggestReport(context.Background(), T+5)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, eth.Data, rec.QueryData)
	assert.Equal(t, 0, rec.TipAmount.Cmp(oneToken))
	assert.Len(t, rec.FeedIDs, 1)
}

func TestSuggestReport_SameWindowExcluded(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")
	f.env.Chain.AddFeed(eth.Data, basicFeed())
	f.env.Chain.Report(eth.Data, T+5, price(2000))

	rec, err := f.s.SuggestReport(context.Background(), T+10)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSuggestReport_ReportInCycleBlock(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")
	f.env.Chain.AddFeed(eth.Data, basicFeed())
	f.env.Chain.Report(eth.Data, T+5, price(2000))

	// The cycle runs at the timestamp of the block holding the report
	rec, err := f.s.SuggestReport(context.Background(), T+5)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSuggestReport_NextWindow(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")
	p := basicFeed()
	p.RewardIncreasePerSecond = big.NewInt(1_000_000_000_000_000)
	f.env.Chain.AddFeed(eth.Data, p)
	f.env.Chain.Report(eth.Data, T+5, price(2000))

	rec, err := f.s.SuggestReport(context.Background(), T+105)
	require.NoError(t, err)
	require.NotNil(t, rec)

	// 1e18 + 5s * 1e15
	want := new(big.Int).Add(oneToken, big.NewInt(5_000_000_000_000_000))
	assert.Equal(t, 0, rec.TipAmount.Cmp(want), rec.TipAmount.String())
}

func TestSuggestReport_OneTimeTipAddsToFeed(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")
	btc := f.query("btc-usd-spot")

	f.env.Chain.AddFeed(eth.Data, basicFeed())
	f.env.Chain.Tip(eth.Data, tokens(2))

	competing := basicFeed()
	competing.Reward = new(big.Int).Div(tokens(5), big.NewInt(2))
	f.env.Chain.AddFeed(btc.Data, competing)

	cycle, err := f.s.Run(context.Background(), T+5)
	require.NoError(t, err)

	rec := cycle.Recommendation
	require.NotNil(t, rec)
	assert.Equal(t, eth.ID, rec.QueryID)
	assert.Equal(t, 0, rec.TipAmount.Cmp(tokens(3)))
	assert.Equal(t, 0, rec.OneTimeTip.Cmp(tokens(2)))
	assert.Equal(t, 0, rec.FeedTip.Cmp(tokens(1)))

	assert.Equal(t, 2, cycle.Funded)
	assert.Equal(t, 1, cycle.Tipped)
	assert.Equal(t, 2, cycle.Eligible)
	assert.Equal(t, 2, cycle.Reconciled)
	assert.Len(t, cycle.Totals, 2)
}

func TestSuggestReport_PriceThreshold(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")

	p := basicFeed()
	p.PriceThreshold = 500
	f.env.Chain.AddFeed(eth.Data, p)
	f.env.Chain.Report(eth.Data, T+5, price(2000))

	// Same window, price unchanged
	f.prices.Set(eth.ID, decimal.NewFromInt(2000))
	rec, err := f.s.SuggestReport(context.Background(), T+10)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Same window, price moved 10%
	f.prices.Set(eth.ID, decimal.NewFromInt(2200))
	rec, err = f.s.SuggestReport(context.Background(), T+10)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.TipAmount.Cmp(oneToken))
}

func TestSuggestReport_UnclaimedHistorySpendsBalance(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")

	p := basicFeed()
	p.Balance = tokens(2)
	fid := f.env.Chain.AddFeed(eth.Data, p)
	f.env.Chain.Report(eth.Data, T+5, price(2000))
	f.env.Chain.Report(eth.Data, T+105, price(2000))
	f.env.Chain.Report(eth.Data, T+205, price(2000))

	// Two unclaimed first-in-window reports owe the whole balance
	rec, err := f.s.SuggestReport(context.Background(), T+305)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Claiming one frees a single reward
	f.env.Chain.Claim(fid, T+105)
	rec, err = f.s.SuggestReport(context.Background(), T+305)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.TipAmount.Cmp(oneToken))
}

func TestSuggestReport_UnreadableHistoryDropsFeed(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")

	p := basicFeed()
	p.Balance = tokens(2)
	f.env.Chain.AddFeed(eth.Data, p)
	f.env.Chain.Report(eth.Data, T+5, price(2000))
	f.env.Chain.Report(eth.Data, T+105, price(2000))
	f.env.Chain.Report(eth.Data, T+205, price(2000))
	f.env.Chain.Reverts["getTimestampbyQueryIdandIndex"] = true

	rec, err := f.s.SuggestReport(context.Background(), T+305)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSuggestReport_Nothing(t *testing.T) {
	f := newFixture(t)

	rec, err := f.s.SuggestReport(context.Background(), T)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSuggestReport_TransportError(t *testing.T) {
	f := newFixture(t)
	f.env.Chain.AddFeed(f.query("eth-usd-spot").Data, basicFeed())
	f.env.Client.Err = errors.New("dial tcp: connection refused")

	rec, err := f.s.SuggestReport(context.Background(), T+5)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, multicall.ErrTransport)
}

func TestSuggestReport_RoundTrips(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")
	btc := f.query("btc-usd-spot")

	for i := int64(1); i <= 3; i++ {
		p := basicFeed()
		p.Reward = tokens(i)
		f.env.Chain.AddFeed(eth.Data, p)
		f.env.Chain.AddFeed(btc.Data, p)
	}
	f.env.Chain.Report(eth.Data, T-50, price(1))
	f.env.Chain.Report(eth.Data, T+150, price(1))
	f.env.Chain.Report(btc.Data, T+150, price(1))

	_, err := f.s.SuggestReport(context.Background(), T+205)
	require.NoError(t, err)

	// discovery, tips, current values, history, claim status
	assert.Equal(t, 5, f.env.RoundTrips())
}

func TestTipForQuery(t *testing.T) {
	f := newFixture(t)
	eth := f.query("eth-usd-spot")

	f.env.Chain.AddFeed(eth.Data, basicFeed())
	late := basicFeed()
	late.StartTime = T + 1000 // not started
	f.env.Chain.AddFeed(eth.Data, late)
	f.env.Chain.Tip(eth.Data, tokens(4))

	total, err := f.s.TipForQuery(context.Background(), eth.Data, T+5)
	require.NoError(t, err)
	assert.Equal(t, eth.ID, total.Query.ID)
	assert.Equal(t, 0, total.FeedTip.Cmp(oneToken))
	assert.Equal(t, 0, total.OneTimeTip.Cmp(tokens(4)))
	assert.Equal(t, 0, total.Total().Cmp(tokens(5)))
}

func TestTipForQuery_UnknownQuery(t *testing.T) {
	f := newFixture(t)

	data, err := registry.EncodeQueryData("Snapshot", []byte{0x01})
	require.NoError(t, err)

	total, err := f.s.TipForQuery(context.Background(), data, T)
	require.NoError(t, err)
	assert.Equal(t, "Snapshot", total.Query.Type)
	assert.Equal(t, 0, total.Total().Sign())

	_, err = f.s.TipForQuery(context.Background(), nil, T)
	assert.ErrorIs(t, err, registry.ErrQueryData)
}
