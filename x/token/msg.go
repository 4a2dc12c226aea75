package token

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &RegisterTokenMsg{}, migration.NoModification)
}

var _ weave.Msg = (*RegisterTokenMsg)(nil)

func (RegisterTokenMsg) Path() string {
	return "token/register_token"
}

func (m *RegisterTokenMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if !coin.IsCC(m.Ticker) {
		errs = errors.AppendField(errs, "Ticker",
			errors.Wrapf(errors.ErrCurrency, "invalid ticker %q", m.Ticker))
	}
	if !isTokenName(m.Name) {
		errs = errors.AppendField(errs, "Name",
			errors.Wrapf(errors.ErrInput, "invalid token name %q", m.Name))
	}
	if !m.MaxSupply.IsZero() {
		if err := m.MaxSupply.Validate(); err != nil {
			errs = errors.AppendField(errs, "MaxSupply", err)
		} else {
			if !m.MaxSupply.IsNonNegative() {
				errs = errors.AppendField(errs, "MaxSupply",
					errors.Wrap(errors.ErrAmount, "must not be negative"))
			}
			if m.MaxSupply.Ticker != m.Ticker {
				errs = errors.AppendField(errs, "MaxSupply",
					errors.Wrap(errors.ErrCurrency, "ticker mismatch"))
			}
		}
	}
	return errs
}
