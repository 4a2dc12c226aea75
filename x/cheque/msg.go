package cheque

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &CreateMsg{}, migration.NoModification)
	migration.MustRegister(1, &RedeemMsg{}, migration.NoModification)
	migration.MustRegister(1, &ReverseMsg{}, migration.NoModification)
	migration.MustRegister(1, &ExpireMsg{}, migration.NoModification)
}

const maxCodeSize = 64

var _ weave.Msg = (*CreateMsg)(nil)
var _ weave.Msg = (*RedeemMsg)(nil)
var _ weave.Msg = (*ReverseMsg)(nil)
var _ weave.Msg = (*ExpireMsg)(nil)

func (CreateMsg) Path() string {
	return "cheque/create"
}

func (m *CreateMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Drawer", m.Drawer.Validate())
	if n := len(m.Code); n == 0 || n > maxCodeSize {
		errs = errors.AppendField(errs, "Code",
			errors.Wrapf(errors.ErrInput, "must be between 1 and %d characters", maxCodeSize))
	}
	if err := m.AmountPayee.Validate(); err != nil {
		errs = errors.AppendField(errs, "AmountPayee", err)
	} else if !m.AmountPayee.IsPositive() {
		errs = errors.AppendField(errs, "AmountPayee",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	if m.PayeeCount < 1 {
		errs = errors.AppendField(errs, "PayeeCount",
			errors.Wrap(errors.ErrInput, "at least one payee is required"))
	}
	if m.ExpiresAt == 0 {
		errs = errors.AppendField(errs, "ExpiresAt",
			errors.Wrap(errors.ErrInput, "expiration is required"))
	}
	errs = errors.AppendField(errs, "ExpiresAt", m.ExpiresAt.Validate())
	return errs
}

func (RedeemMsg) Path() string {
	return "cheque/redeem"
}

func (m *RedeemMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Payee", m.Payee.Validate())
	if n := len(m.Code); n == 0 || n > maxCodeSize {
		errs = errors.AppendField(errs, "Code",
			errors.Wrapf(errors.ErrInput, "must be between 1 and %d characters", maxCodeSize))
	}
	if err := m.Amount.Validate(); err != nil {
		errs = errors.AppendField(errs, "Amount", err)
	} else if !m.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	return errs
}

func (ReverseMsg) Path() string {
	return "cheque/reverse"
}

func (m *ReverseMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.ChequeID) == 0 {
		errs = errors.AppendField(errs, "ChequeID", errors.ErrEmpty)
	}
	return errs
}

func (ExpireMsg) Path() string {
	return "cheque/expire"
}

func (m *ExpireMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.ChequeID) == 0 {
		errs = errors.AppendField(errs, "ChequeID", errors.ErrEmpty)
	}
	return errs
}
