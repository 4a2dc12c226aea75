package token

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x/cash"
)

// Controller is the issuance functionality required by other extensions. It
// keeps the registry and the cash mint behind a single interface so that
// every newly created coin is accounted for.
type Controller interface {
	// Has returns no error if the ticker is registered.
	Has(db weave.ReadOnlyKVStore, ticker string) error

	// Clamp reduces the given amount to whatever can still be issued
	// below the token max supply. The returned coin may be of zero
	// amount. Clamp does not change any state.
	Clamp(db weave.ReadOnlyKVStore, c coin.Coin) (coin.Coin, error)

	// Issue creates the given amount out of thin air and credits it to
	// the destination wallet. Issuing more than the remaining supply
	// fails with ErrOverflow.
	Issue(db weave.KVStore, dest weave.Address, c coin.Coin) error
}

// NewController returns a Controller implementation that is backed by the
// token registry and minting coins with given minter.
func NewController(minter cash.CoinMinter) Controller {
	return &controller{
		bucket: NewTokenInfoBucket(),
		minter: minter,
	}
}

type controller struct {
	bucket orm.ModelBucket
	minter cash.CoinMinter
}

var _ Controller = (*controller)(nil)

func (c *controller) Has(db weave.ReadOnlyKVStore, ticker string) error {
	var info TokenInfo
	if err := c.bucket.One(db, []byte(ticker), &info); err != nil {
		return errors.Wrapf(err, "ticker %s", ticker)
	}
	return nil
}

func (c *controller) Clamp(db weave.ReadOnlyKVStore, amount coin.Coin) (coin.Coin, error) {
	var info TokenInfo
	if err := c.bucket.One(db, []byte(amount.Ticker), &info); err != nil {
		return coin.Coin{}, errors.Wrapf(err, "ticker %s", amount.Ticker)
	}
	if info.MaxSupply.IsZero() {
		// Supply is not capped.
		return amount, nil
	}
	remaining, err := info.MaxSupply.Subtract(info.Issued)
	if err != nil {
		return coin.Coin{}, errors.Wrap(err, "remaining supply")
	}
	if !remaining.IsPositive() {
		return coin.Coin{Ticker: amount.Ticker}, nil
	}
	if amount.Compare(remaining) > 0 {
		return remaining, nil
	}
	return amount, nil
}

func (c *controller) Issue(db weave.KVStore, dest weave.Address, amount coin.Coin) error {
	if !amount.IsPositive() {
		return errors.Wrapf(errors.ErrAmount, "cannot issue %q", amount)
	}
	var info TokenInfo
	if err := c.bucket.One(db, []byte(amount.Ticker), &info); err != nil {
		return errors.Wrapf(err, "ticker %s", amount.Ticker)
	}
	issued, err := info.Issued.Add(amount)
	if err != nil {
		return errors.Wrap(err, "issued supply")
	}
	if !info.MaxSupply.IsZero() && issued.Compare(info.MaxSupply) > 0 {
		return errors.Wrapf(errors.ErrOverflow, "max supply %q exhausted", info.MaxSupply)
	}
	info.Issued = issued
	if _, err := c.bucket.Put(db, []byte(amount.Ticker), &info); err != nil {
		return errors.Wrap(err, "store token")
	}
	return c.minter.CoinMint(db, dest, amount)
}
