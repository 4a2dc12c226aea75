package token

import (
	"regexp"

	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &TokenInfo{}, migration.NoModification)
}

var isTokenName = regexp.MustCompile(`^[A-Za-z0-9 \-_:]{3,32}$`).MatchString

var _ orm.Model = (*TokenInfo)(nil)

func (t *TokenInfo) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", t.Metadata.Validate())
	if !isTokenName(t.Name) {
		errs = errors.AppendField(errs, "Name",
			errors.Wrapf(errors.ErrInput, "invalid token name %q", t.Name))
	}
	// A zero max supply means the cap is disabled and the ticker may be
	// left unset.
	if !t.MaxSupply.IsZero() {
		if err := t.MaxSupply.Validate(); err != nil {
			errs = errors.AppendField(errs, "MaxSupply", err)
		} else if !t.MaxSupply.IsNonNegative() {
			errs = errors.AppendField(errs, "MaxSupply",
				errors.Wrap(errors.ErrAmount, "must not be negative"))
		}
	}
	if !t.Issued.IsZero() {
		if err := t.Issued.Validate(); err != nil {
			errs = errors.AppendField(errs, "Issued", err)
		}
	}
	return errs
}

func NewTokenInfoBucket() orm.ModelBucket {
	b := orm.NewModelBucket("tokeninfo", &TokenInfo{})
	return migration.NewModelBucket("token", b)
}
