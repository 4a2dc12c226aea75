package app

import (
	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/x/cron"

	"github.com/escheq/escheqd/x/cheque"
	"github.com/escheq/escheqd/x/fund"
)

// CronTaskMarshaler is a task marshaler implementation to be used by the
// cron task scheduler and ticker.
var CronTaskMarshaler = taskMarshaler{}

type taskMarshaler struct{}

var _ cron.TaskMarshaler = taskMarshaler{}

// MarshalTask implements cron.TaskMarshaler interface.
func (taskMarshaler) MarshalTask(auth []weave.Condition, msg weave.Msg) ([]byte, error) {
	t := CronTask{
		Authenticators: auth,
	}
	switch msg := msg.(type) {
	default:
		return nil, errors.Wrapf(errors.ErrType, "unsupported message type: %T", msg)
	case *fund.ProcessMsg:
		t.Sum = &CronTask_FundProcessMsg{FundProcessMsg: msg}
	case *fund.FinishMsg:
		t.Sum = &CronTask_FundFinishMsg{FundFinishMsg: msg}
	case *cheque.ExpireMsg:
		t.Sum = &CronTask_ChequeExpireMsg{ChequeExpireMsg: msg}
	}
	return t.Marshal()
}

// UnmarshalTask implements cron.TaskMarshaler interface.
func (taskMarshaler) UnmarshalTask(raw []byte) ([]weave.Condition, weave.Msg, error) {
	var t CronTask
	if err := t.Unmarshal(raw); err != nil {
		return nil, nil, errors.Wrap(err, "cannot unmarshal task")
	}
	msg, err := weave.ExtractMsgFromSum(t.GetSum())
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot extract message")
	}
	return t.Authenticators, msg, nil
}
