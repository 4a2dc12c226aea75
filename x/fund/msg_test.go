package fund

import (
	"testing"

	weave "github.com/iov-one/weave"
	coin "github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestCreateMsgValidate(t *testing.T) {
	msg := &CreateMsg{
		Ticker:    "bad",
		FundRates: []FundRate{{Amount: coin.NewCoin(1, 0, "ESQ"), DayPercent: 1}},
	}
	err := msg.Validate()

	assert.FieldError(t, err, "Metadata", errors.ErrMetadata)
	assert.FieldError(t, err, "Owner", errors.ErrEmpty)
	assert.FieldError(t, err, "Ticker", errors.ErrCurrency)
	assert.FieldError(t, err, "ValidUntil", errors.ErrInput)

	valid := &CreateMsg{
		Metadata:     &weave.Metadata{Schema: 1},
		Owner:        weavetest.NewCondition().Address(),
		Ticker:       "ESQ",
		ValidUntil:   testNow,
		FundRates:    []FundRate{{Amount: coin.NewCoin(1, 0, "ESQ"), DayPercent: 1}},
		PaymentRates: []PaymentRate{{Period: 30, Percent: 30000}},
	}
	assert.Nil(t, valid.Validate())
}

func TestDepositMsgValidate(t *testing.T) {
	msg := &DepositMsg{
		Amount: coin.NewCoin(0, 0, "ESQ"),
	}
	err := msg.Validate()

	assert.FieldError(t, err, "Metadata", errors.ErrMetadata)
	assert.FieldError(t, err, "FundID", errors.ErrEmpty)
	assert.FieldError(t, err, "Depositor", errors.ErrEmpty)
	assert.FieldError(t, err, "Amount", errors.ErrAmount)
	assert.FieldError(t, err, "Period", errors.ErrInput)
}

func TestProcessMsgValidate(t *testing.T) {
	msg := &ProcessMsg{}
	err := msg.Validate()

	assert.FieldError(t, err, "Metadata", errors.ErrMetadata)
	assert.FieldError(t, err, "FundID", errors.ErrEmpty)
	assert.FieldError(t, err, "NextMaintenance", errors.ErrInput)
}

func TestRenewDepositMsgValidate(t *testing.T) {
	msg := &RenewDepositMsg{}
	err := msg.Validate()

	assert.FieldError(t, err, "Metadata", errors.ErrMetadata)
	assert.FieldError(t, err, "DepositID", errors.ErrEmpty)
	assert.FieldError(t, err, "Depositor", errors.ErrEmpty)
	assert.FieldError(t, err, "DatetimeEnd", errors.ErrInput)
}
