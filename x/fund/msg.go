package fund

import (
	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &CreateMsg{}, migration.NoModification)
	migration.MustRegister(1, &DepositMsg{}, migration.NoModification)
	migration.MustRegister(1, &RefillMsg{}, migration.NoModification)
	migration.MustRegister(1, &SetAutorenewalMsg{}, migration.NoModification)
	migration.MustRegister(1, &ProcessMsg{}, migration.NoModification)
	migration.MustRegister(1, &FinishMsg{}, migration.NoModification)
	migration.MustRegister(1, &PaymentMsg{}, migration.NoModification)
	migration.MustRegister(1, &WithdrawalMsg{}, migration.NoModification)
	migration.MustRegister(1, &RenewDepositMsg{}, migration.NoModification)
	migration.MustRegister(1, &UpdateConfigurationMsg{}, migration.NoModification)
}

var _ weave.Msg = (*CreateMsg)(nil)
var _ weave.Msg = (*DepositMsg)(nil)
var _ weave.Msg = (*RefillMsg)(nil)
var _ weave.Msg = (*SetAutorenewalMsg)(nil)
var _ weave.Msg = (*ProcessMsg)(nil)
var _ weave.Msg = (*FinishMsg)(nil)
var _ weave.Msg = (*PaymentMsg)(nil)
var _ weave.Msg = (*WithdrawalMsg)(nil)
var _ weave.Msg = (*RenewDepositMsg)(nil)
var _ weave.Msg = (*UpdateConfigurationMsg)(nil)

func (CreateMsg) Path() string {
	return "fund/create"
}

func (m *CreateMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Owner", m.Owner.Validate())
	if !coin.IsCC(m.Ticker) {
		errs = errors.AppendField(errs, "Ticker",
			errors.Wrapf(errors.ErrCurrency, "invalid ticker %q", m.Ticker))
	}
	if m.ValidUntil == 0 {
		errs = errors.AppendField(errs, "ValidUntil",
			errors.Wrap(errors.ErrInput, "end date is required"))
	}
	errs = errors.AppendField(errs, "ValidUntil", m.ValidUntil.Validate())
	for i, fr := range m.FundRates {
		if err := fr.Amount.Validate(); err != nil {
			errs = errors.AppendField(errs, "FundRates", errors.Wrapf(err, "tier %d", i))
		} else if fr.Amount.Ticker != m.Ticker {
			errs = errors.AppendField(errs, "FundRates",
				errors.Wrapf(errors.ErrCurrency, "tier %d ticker mismatch", i))
		}
	}
	for i, pr := range m.PaymentRates {
		if pr.Period == 0 {
			errs = errors.AppendField(errs, "PaymentRates",
				errors.Wrapf(errors.ErrInput, "rate %d period must not be zero", i))
		}
	}
	return errs
}

func (DepositMsg) Path() string {
	return "fund/deposit"
}

func (m *DepositMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Depositor", m.Depositor.Validate())
	if err := m.Amount.Validate(); err != nil {
		errs = errors.AppendField(errs, "Amount", err)
	} else if !m.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	if m.Period == 0 {
		errs = errors.AppendField(errs, "Period",
			errors.Wrap(errors.ErrInput, "must not be zero"))
	}
	return errs
}

func (RefillMsg) Path() string {
	return "fund/refill"
}

func (m *RefillMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	if err := m.Amount.Validate(); err != nil {
		errs = errors.AppendField(errs, "Amount", err)
	} else if !m.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	return errs
}

func (SetAutorenewalMsg) Path() string {
	return "fund/set_autorenewal"
}

func (m *SetAutorenewalMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Depositor", m.Depositor.Validate())
	return errs
}

func (ProcessMsg) Path() string {
	return "fund/process"
}

func (m *ProcessMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	if m.NextMaintenance == 0 {
		errs = errors.AppendField(errs, "NextMaintenance",
			errors.Wrap(errors.ErrInput, "maintenance boundary is required"))
	}
	errs = errors.AppendField(errs, "NextMaintenance", m.NextMaintenance.Validate())
	return errs
}

func (FinishMsg) Path() string {
	return "fund/finish"
}

func (m *FinishMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	return errs
}

func (PaymentMsg) Path() string {
	return "fund/payment"
}

func (m *PaymentMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Destination", m.Destination.Validate())
	if err := m.Amount.Validate(); err != nil {
		errs = errors.AppendField(errs, "Amount", err)
	} else if !m.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	return errs
}

func (WithdrawalMsg) Path() string {
	return "fund/withdrawal"
}

func (m *WithdrawalMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Destination", m.Destination.Validate())
	if err := m.Amount.Validate(); err != nil {
		errs = errors.AppendField(errs, "Amount", err)
	} else if !m.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	errs = errors.AppendField(errs, "Timestamp", m.Timestamp.Validate())
	return errs
}

func (RenewDepositMsg) Path() string {
	return "fund/renew_deposit"
}

func (m *RenewDepositMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if len(m.DepositID) == 0 {
		errs = errors.AppendField(errs, "DepositID", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Depositor", m.Depositor.Validate())
	if m.DatetimeEnd == 0 {
		errs = errors.AppendField(errs, "DatetimeEnd",
			errors.Wrap(errors.ErrInput, "end date is required"))
	}
	errs = errors.AppendField(errs, "DatetimeEnd", m.DatetimeEnd.Validate())
	return errs
}

func (UpdateConfigurationMsg) Path() string {
	return "fund/update_configuration"
}

func (m *UpdateConfigurationMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Patch", m.Patch.Validate())
	return errs
}
