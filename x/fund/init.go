package fund

import (
	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
)

// Initializer fulfils the Initializer interface to load data from the
// genesis file
type Initializer struct{}

var _ weave.Initializer = (*Initializer)(nil)

// FromGenesis will parse initial configuration from genesis and save it to
// the database.
func (*Initializer) FromGenesis(opts weave.Options, params weave.GenesisParams, db weave.KVStore) error {
	conf := Configuration{
		Metadata: &weave.Metadata{Schema: 1},
	}
	switch err := gconf.InitConfig(db, opts, "fund", &conf); {
	default:
		// All good.
	case errors.ErrNotFound.Is(err):
		return nil
	case err != nil:
		return errors.Wrap(err, "cannot initialize gconf based configuration")
	}

	var profiles []struct {
		Depositor   weave.Address `json:"depositor"`
		Autorenewal bool          `json:"autorenewal"`
	}
	if err := opts.ReadOptions("depositorprofile", &profiles); err != nil {
		return err
	}
	b := NewProfileBucket()
	for i, p := range profiles {
		profile := DepositorProfile{
			Metadata:            &weave.Metadata{Schema: 1},
			Depositor:           p.Depositor,
			DepositsAutorenewal: p.Autorenewal,
		}
		if err := profile.Validate(); err != nil {
			return errors.Wrapf(err, "profile %d is invalid", i)
		}
		if _, err := b.Put(db, p.Depositor, &profile); err != nil {
			return errors.Wrapf(err, "store profile %d", i)
		}
	}
	return nil
}
