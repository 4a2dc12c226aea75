package fund

import (
	"math/big"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
)

// Percent values are integers in hundred-thousandths.
const percentUnit = 100000

const day = 24 * 60 * 60 // seconds

// bonusRat returns the fractional rate of a percent value expressed in
// hundred-thousandths.
func bonusRat(percent uint32) *big.Rat {
	return big.NewRat(int64(percent), percentUnit)
}

// paymentRate returns a copy of the payment rate declared for the given
// period, or nil when the period is not in the table.
func paymentRate(rates []PaymentRate, period uint32) *PaymentRate {
	for i := range rates {
		if rates[i].Period == period {
			r := rates[i]
			return &r
		}
	}
	return nil
}

// maxFundRate selects the tier with the greatest amount threshold that the
// given balance still satisfies. Ties keep the first occurrence. Returns
// nil when no tier qualifies.
func maxFundRate(rates []FundRate, balance coin.Coin) *FundRate {
	max := -1
	for i := range rates {
		if !balance.SameType(rates[i].Amount) {
			continue
		}
		if balance.Compare(rates[i].Amount) < 0 {
			continue
		}
		if max == -1 || rates[i].Amount.Compare(rates[max].Amount) > 0 {
			max = i
		}
	}
	if max == -1 {
		return nil
	}
	r := rates[max]
	return &r
}

// dayRate computes the daily pool rate of the given tier. The rate is
// reduced by one thirtieth of the monthly reduction for every whole day
// passed since the reference epoch beyond the first, and clamped at zero.
func dayRate(fr *FundRate, reductionPerMonth uint32, since, now weave.UnixTime) *big.Rat {
	daysPassed := (int64(now) - int64(since)) / day

	rate := bonusRat(fr.DayPercent)
	decay := bonusRat(reductionPerMonth)
	decay.Quo(decay, big.NewRat(30, 1))
	decay.Mul(decay, big.NewRat(daysPassed-1, 1))
	rate.Sub(rate, decay)

	if rate.Sign() < 0 {
		return new(big.Rat)
	}
	return rate
}

var fracUnit = big.NewInt(coin.FracUnit)

// asShares returns the value of a coin in its smallest fractional units.
func asShares(c coin.Coin) *big.Int {
	shares := new(big.Int).Mul(big.NewInt(c.Whole), fracUnit)
	return shares.Add(shares, big.NewInt(c.Fractional))
}

// coinFromShares builds a coin from an amount of smallest fractional
// units.
func coinFromShares(shares *big.Int, ticker string) (coin.Coin, error) {
	whole, frac := new(big.Int).QuoRem(shares, fracUnit, new(big.Int))
	if !whole.IsInt64() {
		return coin.Coin{}, errors.Wrap(errors.ErrOverflow, "amount too big")
	}
	c := coin.NewCoin(whole.Int64(), frac.Int64(), ticker)
	if err := c.Validate(); err != nil {
		return coin.Coin{}, err
	}
	return c, nil
}

// mulRound multiplies a share amount by a rate and rounds to the nearest
// integer amount of shares, breaking ties to even. Exact rational
// arithmetic keeps the result identical on every node.
func mulRound(amount *big.Int, rate *big.Rat) *big.Int {
	p := new(big.Rat).SetInt(amount)
	p.Mul(p, rate)

	q, r := new(big.Int).QuoRem(p.Num(), p.Denom(), new(big.Int))
	r.Abs(r)
	r.Mul(r, big.NewInt(2))
	if cmp := r.Cmp(p.Denom()); cmp > 0 || (cmp == 0 && q.Bit(0) == 1) {
		if p.Sign() >= 0 {
			q.Add(q, big.NewInt(1))
		} else {
			q.Sub(q, big.NewInt(1))
		}
	}
	return q
}
