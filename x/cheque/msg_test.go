package cheque

import (
	"testing"
	"time"

	weave "github.com/iov-one/weave"
	coin "github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestCreateMsgValidate(t *testing.T) {
	msg := &CreateMsg{
		AmountPayee: coin.NewCoin(1, 0, "ESQ"),
	}
	err := msg.Validate()

	assert.FieldError(t, err, "Metadata", errors.ErrMetadata)
	assert.FieldError(t, err, "Drawer", errors.ErrEmpty)
	assert.FieldError(t, err, "Code", errors.ErrInput)
	assert.FieldError(t, err, "PayeeCount", errors.ErrInput)
	assert.FieldError(t, err, "ExpiresAt", errors.ErrInput)

	assert.FieldError(t, err, "AmountPayee", nil)

	valid := &CreateMsg{
		Metadata:    &weave.Metadata{Schema: 1},
		Drawer:      weavetest.NewCondition().Address(),
		Code:        "a code",
		AmountPayee: coin.NewCoin(1, 0, "ESQ"),
		PayeeCount:  3,
		ExpiresAt:   weave.AsUnixTime(time.Now()),
	}
	assert.Nil(t, valid.Validate())
}

func TestRedeemMsgValidate(t *testing.T) {
	msg := &RedeemMsg{
		Amount: coin.NewCoin(0, 0, "ESQ"),
	}
	err := msg.Validate()

	assert.FieldError(t, err, "Metadata", errors.ErrMetadata)
	assert.FieldError(t, err, "Payee", errors.ErrEmpty)
	assert.FieldError(t, err, "Code", errors.ErrInput)
	assert.FieldError(t, err, "Amount", errors.ErrAmount)
}

func TestReverseMsgValidate(t *testing.T) {
	msg := &ReverseMsg{}
	err := msg.Validate()

	assert.FieldError(t, err, "Metadata", errors.ErrMetadata)
	assert.FieldError(t, err, "ChequeID", errors.ErrEmpty)
}
