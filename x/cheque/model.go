package cheque

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &Cheque{}, migration.NoModification)
}

var _ orm.Model = (*Cheque)(nil)

func (c *Cheque) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", c.Metadata.Validate())
	errs = errors.AppendField(errs, "Drawer", c.Drawer.Validate())
	if n := len(c.Code); n == 0 || n > maxCodeSize {
		errs = errors.AppendField(errs, "Code",
			errors.Wrapf(errors.ErrInput, "must be between 1 and %d characters", maxCodeSize))
	}
	if err := c.AmountPayee.Validate(); err != nil {
		errs = errors.AppendField(errs, "AmountPayee", err)
	} else if !c.AmountPayee.IsPositive() {
		errs = errors.AppendField(errs, "AmountPayee",
			errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	if err := c.AmountRemaining.Validate(); err != nil {
		errs = errors.AppendField(errs, "AmountRemaining", err)
	} else if !c.AmountRemaining.IsNonNegative() {
		errs = errors.AppendField(errs, "AmountRemaining",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	if len(c.Payees) == 0 {
		errs = errors.AppendField(errs, "Payees", errors.ErrEmpty)
	}
	if c.State == ChequeState_INVALID {
		errs = errors.AppendField(errs, "State", errors.ErrState)
	}
	if c.ExpiresAt == 0 {
		errs = errors.AppendField(errs, "ExpiresAt",
			errors.Wrap(errors.ErrInput, "expiration is required"))
	}
	errs = errors.AppendField(errs, "ExpiresAt", c.ExpiresAt.Validate())
	errs = errors.AppendField(errs, "Address", c.Address.Validate())
	return errs
}

// HasPayee returns true if the given address already consumed one of the
// payee slots.
func (c *Cheque) HasPayee(addr weave.Address) bool {
	for _, p := range c.Payees {
		if p.State == ChequeState_USED && addr.Equals(p.Payee) {
			return true
		}
	}
	return false
}

// FirstOpenSlot returns the index of the first slot that was not consumed
// yet, or -1 when all slots are taken.
func (c *Cheque) FirstOpenSlot() int {
	for i, p := range c.Payees {
		if p.State == ChequeState_OPEN {
			return i
		}
	}
	return -1
}

// Condition calculates the address of a cheque given the key.
func Condition(key []byte) weave.Condition {
	return weave.NewCondition("cheque", "seq", key)
}

// ExpireCondition returns the condition that authenticates the scheduled
// expiration task of a cheque.
func ExpireCondition(key []byte) weave.Condition {
	return weave.NewCondition("cheque", "expire", key)
}

func NewBucket() orm.ModelBucket {
	b := orm.NewModelBucket("cheque", &Cheque{},
		orm.WithIDSequence(chequeSeq),
		orm.WithIndex("code", idxCode, true),
	)
	return migration.NewModelBucket("cheque", b)
}

var chequeSeq = orm.NewSequence("cheque", "id")

func idxCode(obj orm.Object) ([]byte, error) {
	if obj == nil {
		return nil, errors.Wrap(errors.ErrHuman, "Cannot take index of nil")
	}
	c, ok := obj.Value().(*Cheque)
	if !ok {
		return nil, errors.Wrap(errors.ErrHuman, "Can only take index of Cheque")
	}
	return []byte(c.Code), nil
}
