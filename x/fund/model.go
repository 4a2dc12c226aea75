package fund

import (
	"math/big"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &Fund{}, migration.NoModification)
	migration.MustRegister(1, &FundHistory{}, migration.NoModification)
	migration.MustRegister(1, &Deposit{}, migration.NoModification)
	migration.MustRegister(1, &DepositorProfile{}, migration.NoModification)
}

var _ orm.Model = (*Fund)(nil)

func (f *Fund) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", f.Metadata.Validate())
	errs = errors.AppendField(errs, "Owner", f.Owner.Validate())
	if err := f.Balance.Validate(); err != nil {
		errs = errors.AppendField(errs, "Balance", err)
	} else if !f.Balance.IsNonNegative() {
		errs = errors.AppendField(errs, "Balance",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	if err := f.OwnerBalance.Validate(); err != nil {
		errs = errors.AppendField(errs, "OwnerBalance", err)
	}
	for i, fr := range f.FundRates {
		if fr.Amount.Ticker != f.Balance.Ticker {
			errs = errors.AppendField(errs, "FundRates",
				errors.Wrapf(errors.ErrCurrency, "tier %d ticker mismatch", i))
		}
	}
	for i, pr := range f.PaymentRates {
		if pr.Period == 0 {
			errs = errors.AppendField(errs, "PaymentRates",
				errors.Wrapf(errors.ErrInput, "rate %d period must not be zero", i))
		}
	}
	errs = errors.AppendField(errs, "PrevMaintenanceTime", f.PrevMaintenanceTime.Validate())
	errs = errors.AppendField(errs, "ValidUntil", f.ValidUntil.Validate())
	errs = errors.AppendField(errs, "Address", f.Address.Validate())
	return errs
}

// PaymentRate returns the payment rate for the given lock period, or nil
// when the fund does not declare one.
func (f *Fund) PaymentRate(period uint32) *PaymentRate {
	return paymentRate(f.PaymentRates, period)
}

// MaxFundRate returns the best qualifying rate tier for the given balance,
// or nil.
func (f *Fund) MaxFundRate(balance coin.Coin) *FundRate {
	return maxFundRate(f.FundRates, balance)
}

// DayRate returns the decayed daily rate of the given tier at the given
// block time.
func (f *Fund) DayRate(fr *FundRate, now weave.UnixTime) *big.Rat {
	return dayRate(fr, f.RatesReductionPerMonth, f.PrevMaintenanceTime, now)
}

var _ orm.Model = (*FundHistory)(nil)

func (h *FundHistory) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", h.Metadata.Validate())
	if len(h.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	return errs
}

var _ orm.Model = (*Deposit)(nil)

func (d *Deposit) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", d.Metadata.Validate())
	if len(d.FundID) == 0 {
		errs = errors.AppendField(errs, "FundID", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Depositor", d.Depositor.Validate())
	if err := d.Amount.Validate(); err != nil {
		errs = errors.AppendField(errs, "Amount", err)
	} else if !d.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	if d.Period == 0 {
		errs = errors.AppendField(errs, "Period",
			errors.Wrap(errors.ErrInput, "must not be zero"))
	}
	errs = errors.AppendField(errs, "DatetimeEnd", d.DatetimeEnd.Validate())
	return errs
}

var _ orm.Model = (*DepositorProfile)(nil)

func (p *DepositorProfile) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", p.Metadata.Validate())
	errs = errors.AppendField(errs, "Depositor", p.Depositor.Validate())
	return errs
}

// Condition calculates the address of a fund given the key. It holds the
// deposited principals.
func Condition(key []byte) weave.Condition {
	return weave.NewCondition("fund", "seq", key)
}

// MaintenanceCondition authenticates the scheduled maintenance tasks of a
// fund and the sub operations they submit.
func MaintenanceCondition(key []byte) weave.Condition {
	return weave.NewCondition("fund", "maintenance", key)
}

func NewFundBucket() orm.ModelBucket {
	b := orm.NewModelBucket("fund", &Fund{},
		orm.WithIDSequence(fundSeq),
	)
	return migration.NewModelBucket("fund", b)
}

var fundSeq = orm.NewSequence("fund", "id")

// NewHistoryBucket returns the bucket with per fund maintenance history.
// Entities are stored under the fund key.
func NewHistoryBucket() orm.ModelBucket {
	b := orm.NewModelBucket("fundhist", &FundHistory{})
	return migration.NewModelBucket("fund", b)
}

func NewDepositBucket() orm.ModelBucket {
	b := orm.NewModelBucket("deposit", &Deposit{},
		orm.WithIDSequence(depositSeq),
		orm.WithNativeIndex("fund", depositFund),
	)
	return migration.NewModelBucket("fund", b)
}

var depositSeq = orm.NewSequence("deposit", "id")

func depositFund(o orm.Object) ([][]byte, error) {
	d, ok := o.Value().(*Deposit)
	if !ok {
		return nil, errors.Wrap(errors.ErrType, "not a Deposit")
	}
	return [][]byte{d.FundID}, nil
}

// NewProfileBucket returns the bucket with depositor preferences, keyed by
// the depositor address.
func NewProfileBucket() orm.ModelBucket {
	b := orm.NewModelBucket("profile", &DepositorProfile{})
	return migration.NewModelBucket("fund", b)
}
