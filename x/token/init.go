package token

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
)

// Initializer fulfils the Initializer interface to load data from the genesis
// file
type Initializer struct{}

var _ weave.Initializer = (*Initializer)(nil)

// FromGenesis will parse initial token info from genesis and save it to the
// database.
func (*Initializer) FromGenesis(opts weave.Options, params weave.GenesisParams, db weave.KVStore) error {
	var tokens []struct {
		Ticker    string    `json:"ticker"`
		Name      string    `json:"name"`
		MaxSupply coin.Coin `json:"max_supply"`
	}
	if err := opts.ReadOptions("token", &tokens); err != nil {
		return err
	}

	bucket := NewTokenInfoBucket()
	for i, t := range tokens {
		info := TokenInfo{
			Metadata:  &weave.Metadata{Schema: 1},
			Name:      t.Name,
			MaxSupply: t.MaxSupply,
		}
		info.Issued.Ticker = t.Ticker
		if !coin.IsCC(t.Ticker) {
			return errors.Wrapf(errors.ErrCurrency, "token %d ticker %q", i, t.Ticker)
		}
		if err := info.Validate(); err != nil {
			return errors.Wrapf(err, "token %d is invalid", i)
		}
		if _, err := bucket.Put(db, []byte(t.Ticker), &info); err != nil {
			return errors.Wrapf(err, "store token %d", i)
		}
	}
	return nil
}
