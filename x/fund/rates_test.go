package fund

import (
	"math/big"
	"testing"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRateLookup(t *testing.T) {
	rates := []PaymentRate{
		{Period: 30, Percent: 30000},
		{Period: 90, Percent: 100000},
		{Period: 30, Percent: 99999},
	}

	r := paymentRate(rates, 30)
	require.NotNil(t, r)
	// The first match wins.
	assert.Equal(t, uint32(30000), r.Percent)

	assert.Nil(t, paymentRate(rates, 60))
	assert.Nil(t, paymentRate(nil, 30))
}

func TestMaxFundRateSelection(t *testing.T) {
	esq := func(whole int64) coin.Coin { return coin.NewCoin(whole, 0, "ESQ") }

	cases := map[string]struct {
		rates    []FundRate
		balance  coin.Coin
		wantIdx  int
		wantNone bool
	}{
		"empty table yields none": {
			rates:    nil,
			balance:  esq(1000),
			wantNone: true,
		},
		"all thresholds above the balance yield none": {
			rates:    []FundRate{{Amount: esq(2000), DayPercent: 1}, {Amount: esq(3000), DayPercent: 2}},
			balance:  esq(1000),
			wantNone: true,
		},
		"greatest qualifying threshold wins": {
			rates:   []FundRate{{Amount: esq(100), DayPercent: 1}, {Amount: esq(900), DayPercent: 2}, {Amount: esq(500), DayPercent: 3}},
			balance: esq(1000),
			wantIdx: 1,
		},
		"exactly equal threshold qualifies": {
			rates:   []FundRate{{Amount: esq(1000), DayPercent: 1}},
			balance: esq(1000),
			wantIdx: 0,
		},
		"ties keep the first occurrence": {
			rates:   []FundRate{{Amount: esq(500), DayPercent: 1}, {Amount: esq(500), DayPercent: 2}},
			balance: esq(1000),
			wantIdx: 0,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got := maxFundRate(tc.rates, tc.balance)
			if tc.wantNone {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.rates[tc.wantIdx].DayPercent, got.DayPercent)
		})
	}
}

func TestDayRateDecay(t *testing.T) {
	now := weave.UnixTime(1572247483)

	fr := &FundRate{Amount: coin.NewCoin(10000, 0, "ESQ"), DayPercent: 10000}

	// 31 full days passed: 0.1 - 0.03/30*30 = 0.07
	since := now - 31*day
	rate := dayRate(fr, 3000, since, now)
	assert.Equal(t, 0, rate.Cmp(big.NewRat(7, 100)))

	// Decay below zero is clamped.
	since = now - 200*day
	rate = dayRate(fr, 3000, since, now)
	assert.Equal(t, 0, rate.Sign())

	// Day one runs at the full rate.
	since = now - day
	rate = dayRate(fr, 3000, since, now)
	assert.Equal(t, 0, rate.Cmp(big.NewRat(1, 10)))
}

func TestMulRound(t *testing.T) {
	shares := func(whole int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(whole), fracUnit)
	}

	// 0.3/30 of 1000 whole units is exactly 10 whole units.
	perDay := bonusRat(30000)
	perDay.Quo(perDay, big.NewRat(30, 1))
	got := mulRound(shares(1000), perDay)
	assert.Equal(t, 0, got.Cmp(shares(10)))

	// 0.07 of 10000 whole units is exactly 700 whole units.
	got = mulRound(shares(10000), big.NewRat(7, 100))
	assert.Equal(t, 0, got.Cmp(shares(700)))

	// Half shares round to even.
	got = mulRound(big.NewInt(3), big.NewRat(1, 2))
	assert.Equal(t, int64(2), got.Int64())
	got = mulRound(big.NewInt(5), big.NewRat(1, 2))
	assert.Equal(t, int64(2), got.Int64())
	got = mulRound(big.NewInt(7), big.NewRat(1, 2))
	assert.Equal(t, int64(4), got.Int64())
}

func TestShareConversion(t *testing.T) {
	c := coin.NewCoin(12, 500000000, "ESQ")
	back, err := coinFromShares(asShares(c), "ESQ")
	require.NoError(t, err)
	assert.True(t, back.Equals(c))

	zero, err := coinFromShares(big.NewInt(0), "ESQ")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}
