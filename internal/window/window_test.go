package window

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWindowStart_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		start := uint64(rng.Int63n(1_000_000))
		interval := uint64(rng.Int63n(5000) + 1)

		prev := start
		for t0 := start; t0 < start+3*interval+10; t0 += uint64(rng.Int63n(50) + 1) {
			ws := WindowStart(t0, start, interval)
			assert.LessOrEqual(t, ws, t0)
			assert.GreaterOrEqual(t, ws, prev)
			assert.Equal(t, uint64(0), (ws-start)%interval)
			prev = ws
		}
	}
}

func TestIsFirstInWindow(t *testing.T) {
	const T = 1_700_000_000

	tests := []struct {
		name         string
		before       uint64
		check        uint64
		start        uint64
		window       uint64
		interval     uint64
		wantEligible bool
		wantInto     uint64
	}{
		{name: "first report ever", before: 0, check: T + 5, start: T, window: 99, interval: 100, wantEligible: true, wantInto: 5},
		{name: "same window", before: T + 5, check: T + 10, start: T, window: 99, interval: 100, wantEligible: false, wantInto: 10},
		{name: "next window", before: T + 5, check: T + 105, start: T, window: 99, interval: 100, wantEligible: true, wantInto: 5},
		{name: "window closed", before: 0, check: T + 99, start: T, window: 99, interval: 100, wantEligible: false, wantInto: 99},
		{name: "last open second", before: 0, check: T + 98, start: T, window: 99, interval: 100, wantEligible: true, wantInto: 98},
		{name: "report exactly at window start", before: T + 100, check: T + 101, start: T, window: 99, interval: 100, wantEligible: false, wantInto: 1},
		{name: "report just before window start", before: T + 99, check: T + 100, start: T, window: 99, interval: 100, wantEligible: true, wantInto: 0},
		{name: "before start time", before: 0, check: T - 1, start: T, window: 99, interval: 100, wantEligible: false, wantInto: 0},
		{name: "zero interval", before: 0, check: T, start: T, window: 99, interval: 0, wantEligible: false, wantInto: 0},
		{name: "zero window", before: 0, check: T, start: T, window: 0, interval: 100, wantEligible: false, wantInto: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eligible, into := IsFirstInWindow(tt.before, tt.check, tt.start, tt.window, tt.interval)
			assert.Equal(t, tt.wantEligible, eligible)
			assert.Equal(t, tt.wantInto, into)

			// Pure: asking again gives the same answer
			again, intoAgain := IsFirstInWindow(tt.before, tt.check, tt.start, tt.window, tt.interval)
			assert.Equal(t, eligible, again)
			assert.Equal(t, into, intoAgain)
		})
	}
}

func TestAccrued(t *testing.T) {
	reward := big.NewInt(1000)
	got := Accrued(reward, big.NewInt(3), 10)
	assert.Equal(t, "1030", got.String())
	assert.Equal(t, "1000", reward.String(), "input must not be modified")

	assert.Equal(t, "1000", Accrued(reward, nil, 10).String())
	assert.Equal(t, "1000", Accrued(reward, big.NewInt(3), 0).String())
	assert.Equal(t, "0", Accrued(nil, nil, 0).String())
}

func TestPriceChangeBps(t *testing.T) {
	d := decimal.RequireFromString

	tests := []struct {
		name     string
		previous string
		current  string
		want     uint64
	}{
		{name: "no previous value", previous: "0", current: "1834.2", want: 10000},
		{name: "no previous value and zero price", previous: "0", current: "0", want: 10000},
		{name: "unchanged", previous: "100", current: "100", want: 0},
		{name: "up five percent", previous: "100", current: "105", want: 500},
		{name: "down five percent", previous: "100", current: "95", want: 500},
		{name: "rounds down", previous: "3", current: "4", want: 3333},
		{name: "tiny change", previous: "2000", current: "2000.01", want: 0},
		{name: "fractional prices", previous: "0.9995", current: "1.0005", want: 10},
		{name: "doubled", previous: "1", current: "2", want: 10000},
		{name: "ten times", previous: "1", current: "10", want: 90000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriceChangeBps(d(tt.previous), d(tt.current)))
		})
	}
}

func TestPriceChangeBps_NoPreviousAlwaysMax(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		x := decimal.New(rng.Int63n(1_000_000)+1, -int32(rng.Intn(10)))
		assert.Equal(t, uint64(MaxChangeBps), PriceChangeBps(decimal.Zero, x))
	}
}
