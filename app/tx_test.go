package app

import (
	"bytes"
	"testing"

	weave "github.com/iov-one/weave"
	coin "github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/weavetest"

	"github.com/escheq/escheqd/x/cheque"
	"github.com/escheq/escheqd/x/fund"
)

func TestTxRoundTrip(t *testing.T) {
	drawer := weavetest.NewCondition().Address()

	tx := &Tx{
		Sum: &Tx_ChequeCreateMsg{
			ChequeCreateMsg: &cheque.CreateMsg{
				Metadata:    &weave.Metadata{Schema: 1},
				Drawer:      drawer,
				Code:        "a code",
				AmountPayee: coin.NewCoin(10, 0, "ESQ"),
				PayeeCount:  3,
				ExpiresAt:   weave.UnixTime(1572247483),
			},
		},
	}

	raw, err := tx.Marshal()
	if err != nil {
		t.Fatalf("cannot marshal: %s", err)
	}
	restored, err := TxDecoder(raw)
	if err != nil {
		t.Fatalf("cannot decode: %s", err)
	}
	msg, err := restored.GetMsg()
	if err != nil {
		t.Fatalf("cannot get message: %s", err)
	}
	create, ok := msg.(*cheque.CreateMsg)
	if !ok {
		t.Fatalf("unexpected message type: %T", msg)
	}
	if create.Code != "a code" || create.PayeeCount != 3 {
		t.Fatalf("message content lost: %+v", create)
	}
	if !drawer.Equals(create.Drawer) {
		t.Fatalf("unexpected drawer: %s", create.Drawer)
	}
}

func TestCronTaskMarshaling(t *testing.T) {
	fundID := weavetest.SequenceID(1)
	conds := []weave.Condition{fund.MaintenanceCondition(fundID)}

	raw, err := CronTaskMarshaler.MarshalTask(conds, &fund.ProcessMsg{
		Metadata:        &weave.Metadata{Schema: 1},
		FundID:          fundID,
		NextMaintenance: weave.UnixTime(1572247483),
	})
	if err != nil {
		t.Fatalf("cannot marshal task: %s", err)
	}

	gotConds, msg, err := CronTaskMarshaler.UnmarshalTask(raw)
	if err != nil {
		t.Fatalf("cannot unmarshal task: %s", err)
	}
	if len(gotConds) != 1 || !bytes.Equal(gotConds[0], conds[0]) {
		t.Fatalf("unexpected conditions: %q", gotConds)
	}
	process, ok := msg.(*fund.ProcessMsg)
	if !ok {
		t.Fatalf("unexpected message type: %T", msg)
	}
	if !bytes.Equal(process.FundID, fundID) {
		t.Fatalf("unexpected fund id: %q", process.FundID)
	}
	if process.NextMaintenance != 1572247483 {
		t.Fatalf("unexpected boundary: %d", process.NextMaintenance)
	}

	// Only messages routed by the cron router can be scheduled.
	if _, err := CronTaskMarshaler.MarshalTask(nil, &fund.DepositMsg{}); err == nil {
		t.Fatal("deposit message must not be schedulable")
	}
}
