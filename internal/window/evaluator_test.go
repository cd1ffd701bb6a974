package window

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"autopay-tips/internal/domain"
)

const T = 1_700_000_000

var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type fakePrices struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakePrices) FetchPrice(_ context.Context, _ domain.Query) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

// plainValues reads a stored value as a 32-byte integer with 18 decimals.
type plainValues struct{}

func (plainValues) DecodeValue(_ domain.QueryID, value []byte) (decimal.Decimal, error) {
	if len(value) != 32 {
		return decimal.Zero, errors.New("bad length")
	}
	return decimal.NewFromBigInt(new(big.Int).SetBytes(value), -18), nil
}

func stored(price int64) []byte {
	out := make([]byte, 32)
	new(big.Int).Mul(big.NewInt(price), oneToken).FillBytes(out)
	return out
}

func candidate(threshold uint64, lastReport uint64, value []byte) *domain.FeedCandidate {
	return &domain.FeedCandidate{
		Params: domain.FeedParameters{
			Reward:                  new(big.Int).Set(oneToken),
			Balance:                 new(big.Int).Mul(oneToken, big.NewInt(10)),
			StartTime:               T,
			Interval:                100,
			Window:                  99,
			PriceThreshold:          threshold,
			RewardIncreasePerSecond: big.NewInt(0),
		},
		CurrentValue:          value,
		CurrentValueTimestamp: lastReport,
	}
}

func TestEvaluate_ZeroThresholdScenarios(t *testing.T) {
	prices := &fakePrices{price: decimal.NewFromInt(1)}
	e := NewEvaluator(EvaluatorOptions{Prices: prices, Values: plainValues{}, Logger: zaptest.NewLogger(t)})
	ctx := context.Background()

	// Nothing reported yet
	d := e.Evaluate(ctx, candidate(0, 0, nil), T+5)
	require.True(t, d.Eligible)
	assert.Equal(t, ReasonFirstInWindow, d.Reason)
	assert.Equal(t, 0, d.Reward.Cmp(oneToken))

	// Reported at T+5, same window
	d = e.Evaluate(ctx, candidate(0, T+5, stored(1)), T+10)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonAlreadyReported, d.Reason)
	assert.Nil(t, d.Reward)

	// Next window
	c := candidate(0, T+5, stored(1))
	c.Params.RewardIncreasePerSecond = big.NewInt(1_000_000)
	d = e.Evaluate(ctx, c, T+105)
	require.True(t, d.Eligible)
	assert.Equal(t, uint64(5), d.TimeIntoWindow)
	want := new(big.Int).Add(oneToken, big.NewInt(5_000_000))
	assert.Equal(t, 0, d.Reward.Cmp(want))

	// Window closed
	d = e.Evaluate(ctx, candidate(0, 0, nil), T+99)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonWindowClosed, d.Reason)

	// Before start
	d = e.Evaluate(ctx, candidate(0, 0, nil), T-1)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonBeforeStart, d.Reason)

	assert.Equal(t, 0, prices.calls, "zero threshold never checks the price")
}

func TestEvaluate_Threshold(t *testing.T) {
	tests := []struct {
		name       string
		lastReport uint64
		value      []byte
		now        uint64
		price      decimal.Decimal
		priceErr   error
		want       bool
		wantReason Reason
		wantPrice  bool
	}{
		{
			name: "first in window skips price", lastReport: 0, value: nil, now: T + 5,
			want: true, wantReason: ReasonFirstInWindow,
		},
		{
			name: "price moved past threshold", lastReport: T + 5, value: stored(100), now: T + 10,
			price: decimal.NewFromInt(106), want: true, wantReason: ReasonPriceChange, wantPrice: true,
		},
		{
			name: "move equal to threshold", lastReport: T + 5, value: stored(100), now: T + 10,
			price: decimal.NewFromInt(105), wantReason: ReasonBelowThreshold, wantPrice: true,
		},
		{
			name: "price barely moved", lastReport: T + 5, value: stored(100), now: T + 10,
			price: decimal.NewFromInt(101), wantReason: ReasonBelowThreshold, wantPrice: true,
		},
		{
			name: "window closed but price moved", lastReport: 0, value: stored(100), now: T + 99,
			price: decimal.NewFromInt(80), want: true, wantReason: ReasonPriceChange, wantPrice: true,
		},
		{
			name: "no price", lastReport: T + 5, value: stored(100), now: T + 10,
			priceErr: errors.New("down"), wantReason: ReasonNoPrice, wantPrice: true,
		},
		{
			name: "undecodable stored value", lastReport: T + 5, value: []byte{0x01}, now: T + 10,
			price: decimal.NewFromInt(200), wantReason: ReasonBadValue,
		},
		{
			name: "before start", lastReport: 0, value: nil, now: T - 10,
			price: decimal.NewFromInt(200), wantReason: ReasonBeforeStart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := &fakePrices{price: tt.price, err: tt.priceErr}
			e := NewEvaluator(EvaluatorOptions{Prices: prices, Values: plainValues{}})

			c := candidate(500, tt.lastReport, tt.value)
			c.Params.RewardIncreasePerSecond = big.NewInt(7)

			d := e.Evaluate(context.Background(), c, tt.now)
			assert.Equal(t, tt.want, d.Eligible)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantPrice, prices.calls > 0)

			switch {
			case !tt.want:
				assert.Nil(t, d.Reward)
			case tt.wantReason == ReasonPriceChange:
				// Base reward only
				assert.Equal(t, 0, d.Reward.Cmp(oneToken))
			default:
				want := new(big.Int).Add(oneToken, big.NewInt(int64(7*d.TimeIntoWindow)))
				assert.Equal(t, 0, d.Reward.Cmp(want))
			}
		})
	}
}

func TestEvaluate_ThresholdWithoutPreviousValue(t *testing.T) {
	prices := &fakePrices{price: decimal.NewFromInt(1)}
	e := NewEvaluator(EvaluatorOptions{Prices: prices, Values: plainValues{}})

	// Window closed, nothing stored: a full change passes any threshold below it
	d := e.Evaluate(context.Background(), candidate(9999, 0, nil), T+99)
	assert.True(t, d.Eligible)
	assert.Equal(t, uint64(MaxChangeBps), d.ChangeBps)

	d = e.Evaluate(context.Background(), candidate(10000, 0, nil), T+99)
	assert.False(t, d.Eligible)
}

func TestEvaluate_DoesNotMutateCandidate(t *testing.T) {
	e := NewEvaluator(EvaluatorOptions{})
	c := candidate(0, 0, nil)
	c.Params.RewardIncreasePerSecond = big.NewInt(10)

	first := e.Evaluate(context.Background(), c, T+20)
	second := e.Evaluate(context.Background(), c, T+20)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, c.Params.Reward.Cmp(oneToken))
}
