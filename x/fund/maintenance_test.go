package fund

import (
	"context"
	"testing"
	"time"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	coin "github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/x/cash"

	"github.com/escheq/escheqd/x/token"
)

const testInterval = day // one maintenance cycle per day

// a block time after every activation gate
var testNow = weave.UnixTime(1572247483)

type testBank interface {
	CashController
	cash.CoinMinter
}

type maintenanceFixture struct {
	db     store.CacheableKVStore
	rt     weave.Handler
	auth   *weavetest.CtxAuth
	bank   testBank
	cron   *weavetest.Cron
	owner  weave.Condition
	fundID []byte
}

func newMaintenanceFixture(t testing.TB, historyDays uint32) *maintenanceFixture {
	t.Helper()

	db := store.MemStore()
	migration.MustInitPkg(db, "fund", "cash", "token")

	rt := app.NewRouter()
	auth := &weavetest.CtxAuth{Key: "auth"}
	ctrl := cash.NewController(cash.NewBucket())
	tokens := token.NewController(ctrl)
	cron := &weavetest.Cron{}
	RegisterMaintenanceRoutes(rt, auth, ctrl, tokens, cron, HandlerAsExecutor(rt), historyDays)

	adminCond := weavetest.NewCondition()
	conf := Configuration{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               adminCond.Address(),
		Admin:               adminCond.Address(),
		MaintenanceInterval: testInterval,
	}
	if err := gconf.Save(db, "fund", &conf); err != nil {
		t.Fatalf("cannot save configuration: %s", err)
	}

	return &maintenanceFixture{
		db:     db,
		rt:     rt,
		auth:   auth,
		bank:   ctrl,
		cron:   cron,
		owner:  weavetest.NewCondition(),
		fundID: weavetest.SequenceID(1),
	}
}

func (f *maintenanceFixture) registerToken(t testing.TB, maxSupply coin.Coin) {
	t.Helper()

	info := token.TokenInfo{
		Metadata:  &weave.Metadata{Schema: 1},
		Name:      "a test token",
		MaxSupply: maxSupply,
	}
	info.Issued.Ticker = "ESQ"
	if _, err := token.NewTokenInfoBucket().Put(f.db, []byte("ESQ"), &info); err != nil {
		t.Fatalf("cannot register token: %s", err)
	}
}

// saveFund stores the fund and an empty history under the fixture fund id.
func (f *maintenanceFixture) saveFund(t testing.TB, fund *Fund) {
	t.Helper()

	if fund.Address == nil {
		fund.Address = Condition(f.fundID).Address()
	}
	if _, err := NewFundBucket().Put(f.db, f.fundID, fund); err != nil {
		t.Fatalf("cannot store fund: %s", err)
	}
	hist := FundHistory{
		Metadata: &weave.Metadata{Schema: 1},
		FundID:   f.fundID,
	}
	if _, err := NewHistoryBucket().Put(f.db, f.fundID, &hist); err != nil {
		t.Fatalf("cannot store history: %s", err)
	}
}

func (f *maintenanceFixture) saveDeposit(t testing.TB, key []byte, dep *Deposit) {
	t.Helper()

	dep.Metadata = &weave.Metadata{Schema: 1}
	dep.FundID = f.fundID
	if _, err := NewDepositBucket().Put(f.db, key, dep); err != nil {
		t.Fatalf("cannot store deposit: %s", err)
	}
}

func (f *maintenanceFixture) setAutorenewal(t testing.TB, depositor weave.Address) {
	t.Helper()

	profile := DepositorProfile{
		Metadata:            &weave.Metadata{Schema: 1},
		Depositor:           depositor,
		DepositsAutorenewal: true,
	}
	if _, err := NewProfileBucket().Put(f.db, depositor, &profile); err != nil {
		t.Fatalf("cannot store profile: %s", err)
	}
}

// process delivers a single maintenance cycle at the given block time. The
// maintenance boundary that was just reached is the block time itself.
func (f *maintenanceFixture) process(t testing.TB, now weave.UnixTime) error {
	t.Helper()

	ctx := weave.WithHeight(context.Background(), 100)
	ctx = weave.WithChainID(ctx, "testchain-123")
	ctx = weave.WithBlockTime(ctx, now.Time())
	ctx = f.auth.SetConditions(ctx, MaintenanceCondition(f.fundID))

	_, err := f.rt.Deliver(ctx, f.db, &weavetest.Tx{
		Msg: &ProcessMsg{
			Metadata:        &weave.Metadata{Schema: 1},
			FundID:          f.fundID,
			NextMaintenance: now + testInterval,
		},
	})
	return err
}

func (f *maintenanceFixture) balance(t testing.TB, wallet weave.Address) coin.Coin {
	t.Helper()

	coins, err := f.bank.Balance(f.db, wallet)
	if err != nil {
		t.Fatalf("balance: %s", err)
	}
	switch len(coins) {
	case 0:
		return coin.Coin{Ticker: "ESQ"}
	case 1:
		return *coins[0]
	default:
		t.Fatalf("more than one coin on %s: %q", wallet, coins)
		return coin.Coin{}
	}
}

func TestMaintenanceVariantOneFixedOwnerCut(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	depositor := weavetest.NewCondition().Address()

	f.saveFund(t, &Fund{
		Metadata:               &weave.Metadata{Schema: 1},
		Owner:                  f.owner.Address(),
		Balance:                coin.NewCoin(1000, 0, "ESQ"),
		OwnerBalance:           coin.Coin{Ticker: "ESQ"},
		FixedPercentOnDeposits: 10000, // 0.1
		PaymentRates:           []PaymentRate{{Period: 30, Percent: 30000}},
		PrevMaintenanceTime:    testNow - day,
		ValidUntil:             testNow + 1000*day,
		Enabled:                true,
	})
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(1000, 0, "ESQ"),
		Percent:     30000, // 0.3 for the whole period
		Period:      30,
		DatetimeEnd: testNow + 10*day,
		Enabled:     true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	// Daily payment: round(0.3/30 * 1000) = 10.
	if got := f.balance(t, depositor); !got.Equals(coin.NewCoin(10, 0, "ESQ")) {
		t.Fatalf("unexpected depositor payment: %q", got)
	}
	// Owner cut: round(0.1 * 10) = 1.
	if got := f.balance(t, f.owner.Address()); !got.Equals(coin.NewCoin(1, 0, "ESQ")) {
		t.Fatalf("unexpected owner payment: %q", got)
	}

	// The fixed cut variant does not fill the history profit fields.
	var hist FundHistory
	if err := NewHistoryBucket().One(f.db, f.fundID, &hist); err != nil {
		t.Fatalf("cannot load history: %s", err)
	}
	if len(hist.Items) != 1 {
		t.Fatalf("want one history item, got %d", len(hist.Items))
	}
	if !hist.Items[0].DailyProfit.IsZero() {
		t.Fatalf("unexpected daily profit: %q", hist.Items[0].DailyProfit)
	}
}

func TestMaintenanceVariantTwoDecayedSurplus(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	depositor := weavetest.NewCondition().Address()

	f.saveFund(t, &Fund{
		Metadata:               &weave.Metadata{Schema: 1},
		Owner:                  f.owner.Address(),
		Balance:                coin.NewCoin(10000, 0, "ESQ"),
		OwnerBalance:           coin.Coin{Ticker: "ESQ"},
		RatesReductionPerMonth: 3000,                                                              // 0.03 per month
		FundRates:              []FundRate{{Amount: coin.NewCoin(10000, 0, "ESQ"), DayPercent: 10000}}, // 0.1
		PaymentRates:           []PaymentRate{{Period: 30, Percent: 150000}},
		PrevMaintenanceTime:    testNow - 31*day,
		ValidUntil:             testNow + 1000*day,
		Enabled:                true,
	})
	// This deposit earns round(1.5/30 * 10000) = 500 a day.
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(10000, 0, "ESQ"),
		Percent:     150000,
		Period:      30,
		DatetimeEnd: testNow + 10*day,
		Enabled:     true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	if got := f.balance(t, depositor); !got.Equals(coin.NewCoin(500, 0, "ESQ")) {
		t.Fatalf("unexpected depositor payment: %q", got)
	}
	// Day rate 0.1 - 0.03/30*30 = 0.07, pool profit 700, owner surplus 200.
	if got := f.balance(t, f.owner.Address()); !got.Equals(coin.NewCoin(200, 0, "ESQ")) {
		t.Fatalf("unexpected owner payment: %q", got)
	}

	var hist FundHistory
	if err := NewHistoryBucket().One(f.db, f.fundID, &hist); err != nil {
		t.Fatalf("cannot load history: %s", err)
	}
	if len(hist.Items) != 1 {
		t.Fatalf("want one history item, got %d", len(hist.Items))
	}
	if !hist.Items[0].DailyProfit.Equals(coin.NewCoin(700, 0, "ESQ")) {
		t.Fatalf("unexpected daily profit: %q", hist.Items[0].DailyProfit)
	}
	if !hist.Items[0].DailyPaymentsWithoutOwner.Equals(coin.NewCoin(500, 0, "ESQ")) {
		t.Fatalf("unexpected daily payments: %q", hist.Items[0].DailyPaymentsWithoutOwner)
	}
}

func TestMaintenanceOwnerPaymentClamped(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	// Only 550 ESQ can ever be issued: 500 go to the depositor and the
	// owner surplus of 200 is clamped to the remaining 50.
	f.registerToken(t, coin.NewCoin(550, 0, "ESQ"))

	depositor := weavetest.NewCondition().Address()

	f.saveFund(t, &Fund{
		Metadata:               &weave.Metadata{Schema: 1},
		Owner:                  f.owner.Address(),
		Balance:                coin.NewCoin(10000, 0, "ESQ"),
		OwnerBalance:           coin.Coin{Ticker: "ESQ"},
		RatesReductionPerMonth: 3000,
		FundRates:              []FundRate{{Amount: coin.NewCoin(10000, 0, "ESQ"), DayPercent: 10000}},
		PaymentRates:           []PaymentRate{{Period: 30, Percent: 150000}},
		PrevMaintenanceTime:    testNow - 31*day,
		ValidUntil:             testNow + 1000*day,
		Enabled:                true,
	})
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(10000, 0, "ESQ"),
		Percent:     150000,
		Period:      30,
		DatetimeEnd: testNow + 10*day,
		Enabled:     true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	if got := f.balance(t, depositor); !got.Equals(coin.NewCoin(500, 0, "ESQ")) {
		t.Fatalf("unexpected depositor payment: %q", got)
	}
	if got := f.balance(t, f.owner.Address()); !got.Equals(coin.NewCoin(50, 0, "ESQ")) {
		t.Fatalf("unexpected owner payment: %q", got)
	}
}

func TestMaintenanceRetiresOverdueDeposit(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	depositor := weavetest.NewCondition().Address()

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.NewCoin(1000, 0, "ESQ"),
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PaymentRates:        []PaymentRate{{Period: 30, Percent: 30000}},
		PrevMaintenanceTime: testNow - day,
		ValidUntil:          testNow + 1000*day,
		Enabled:             true,
	})
	// The pool wallet holds the principal that is returned on retirement.
	if err := f.bank.CoinMint(f.db, Condition(f.fundID).Address(), coin.NewCoin(1000, 0, "ESQ")); err != nil {
		t.Fatalf("cannot fill the pool wallet: %s", err)
	}
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(1000, 0, "ESQ"),
		Percent:     30000,
		Period:      30,
		DatetimeEnd: testNow - 1,
		Enabled:     true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	// The depositor got the last daily payment plus the principal back.
	if got := f.balance(t, depositor); !got.Equals(coin.NewCoin(1010, 0, "ESQ")) {
		t.Fatalf("unexpected depositor funds: %q", got)
	}

	var fund Fund
	if err := NewFundBucket().One(f.db, f.fundID, &fund); err != nil {
		t.Fatalf("cannot load fund: %s", err)
	}
	if !fund.Balance.IsZero() {
		t.Fatalf("pool balance must drop by the retired principal: %q", fund.Balance)
	}

	// This node trims history, so the deposit is gone from the store.
	var dep Deposit
	if err := NewDepositBucket().One(f.db, weavetest.SequenceID(1), &dep); !errors.ErrNotFound.Is(err) {
		t.Fatalf("retired deposit must be removed: %+v", err)
	}
}

func TestMaintenanceArchiveNodeKeepsRetiredDeposits(t *testing.T) {
	f := newMaintenanceFixture(t, 0)
	f.registerToken(t, coin.Coin{})

	depositor := weavetest.NewCondition().Address()

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.NewCoin(1000, 0, "ESQ"),
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PrevMaintenanceTime: testNow - day,
		ValidUntil:          testNow + 1000*day,
		Enabled:             true,
	})
	if err := f.bank.CoinMint(f.db, Condition(f.fundID).Address(), coin.NewCoin(1000, 0, "ESQ")); err != nil {
		t.Fatalf("cannot fill the pool wallet: %s", err)
	}
	// No payment rate is declared for this period: no daily payment, but
	// the deposit still retires.
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(1000, 0, "ESQ"),
		Percent:     30000,
		Period:      90,
		DatetimeEnd: testNow - 1,
		Enabled:     true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	// Principal only, no daily payment.
	if got := f.balance(t, depositor); !got.Equals(coin.NewCoin(1000, 0, "ESQ")) {
		t.Fatalf("unexpected depositor funds: %q", got)
	}

	// An archive node keeps the deposit around, disabled.
	var dep Deposit
	if err := NewDepositBucket().One(f.db, weavetest.SequenceID(1), &dep); err != nil {
		t.Fatalf("deposit must be kept on an archive node: %+v", err)
	}
	if dep.Enabled {
		t.Fatal("retired deposit must be disabled")
	}
}

func TestMaintenanceAutorenewalByOperation(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	depositor := weavetest.NewCondition().Address()
	f.setAutorenewal(t, depositor)

	end := testNow - 1
	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.NewCoin(1000, 0, "ESQ"),
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PaymentRates:        []PaymentRate{{Period: 30, Percent: 36000}},
		PrevMaintenanceTime: testNow - day,
		ValidUntil:          testNow + 1000*day,
		Enabled:             true,
	})
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(1000, 0, "ESQ"),
		Percent:     30000,
		Period:      30,
		DatetimeEnd: end,
		Enabled:     true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	var dep Deposit
	if err := NewDepositBucket().One(f.db, weavetest.SequenceID(1), &dep); err != nil {
		t.Fatalf("cannot load deposit: %s", err)
	}
	if !dep.Enabled {
		t.Fatal("renewed deposit must stay enabled")
	}
	// The renewal operation extends from the old end date and adopts the
	// current payment rate percent.
	if want := end.Add(30 * 24 * time.Hour); dep.DatetimeEnd != want {
		t.Fatalf("unexpected end date: %d, want %d", dep.DatetimeEnd, want)
	}
	if dep.Percent != 36000 {
		t.Fatalf("unexpected percent: %d", dep.Percent)
	}

	// The principal stays in the pool.
	var fund Fund
	if err := NewFundBucket().One(f.db, f.fundID, &fund); err != nil {
		t.Fatalf("cannot load fund: %s", err)
	}
	if !fund.Balance.Equals(coin.NewCoin(1000, 0, "ESQ")) {
		t.Fatalf("pool balance must not change: %q", fund.Balance)
	}
}

func TestMaintenanceAutorenewalInPlaceBeforeOperationGate(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	// After the autorenewal activation but before the renewal operation
	// one: the deposit is modified in place, counted from the block time.
	now := autorenewalSince + 10*day

	depositor := weavetest.NewCondition().Address()
	f.setAutorenewal(t, depositor)

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.NewCoin(1000, 0, "ESQ"),
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PaymentRates:        []PaymentRate{{Period: 30, Percent: 36000}},
		PrevMaintenanceTime: now - day,
		ValidUntil:          now + 1000*day,
		Enabled:             true,
	})
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(1000, 0, "ESQ"),
		Percent:     30000,
		Period:      30,
		DatetimeEnd: now - 5*day,
		Enabled:     true,
	})

	if err := f.process(t, now); err != nil {
		t.Fatalf("process: %+v", err)
	}

	var dep Deposit
	if err := NewDepositBucket().One(f.db, weavetest.SequenceID(1), &dep); err != nil {
		t.Fatalf("cannot load deposit: %s", err)
	}
	if !dep.Enabled {
		t.Fatal("renewed deposit must stay enabled")
	}
	if want := now.Add(30 * 24 * time.Hour); dep.DatetimeEnd != want {
		t.Fatalf("unexpected end date: %d, want %d", dep.DatetimeEnd, want)
	}
	if dep.Percent != 36000 {
		t.Fatalf("unexpected percent: %d", dep.Percent)
	}
}

func TestMaintenanceNoAutorenewalBeforeActivation(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	// Before the activation time the autorenewal flag has no effect.
	now := autorenewalSince - 10*day

	depositor := weavetest.NewCondition().Address()
	f.setAutorenewal(t, depositor)

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.NewCoin(1000, 0, "ESQ"),
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PrevMaintenanceTime: now - day,
		ValidUntil:          now + 1000*day,
		Enabled:             true,
	})
	if err := f.bank.CoinMint(f.db, Condition(f.fundID).Address(), coin.NewCoin(1000, 0, "ESQ")); err != nil {
		t.Fatalf("cannot fill the pool wallet: %s", err)
	}
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(1000, 0, "ESQ"),
		Percent:     30000,
		Period:      30,
		DatetimeEnd: now - 1,
		Enabled:     true,
	})

	if err := f.process(t, now); err != nil {
		t.Fatalf("process: %+v", err)
	}

	if got := f.balance(t, depositor); !got.Equals(coin.NewCoin(1000, 0, "ESQ")) {
		t.Fatalf("principal must be returned: %q", got)
	}
}

func TestMaintenanceIdleFundOnlyAppendsHistory(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.Coin{Ticker: "ESQ"},
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PrevMaintenanceTime: testNow - day,
		ValidUntil:          testNow + 1000*day,
		Enabled:             true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	if got := f.balance(t, f.owner.Address()); !got.IsZero() {
		t.Fatalf("owner must not be paid: %q", got)
	}
	var hist FundHistory
	if err := NewHistoryBucket().One(f.db, f.fundID, &hist); err != nil {
		t.Fatalf("cannot load history: %s", err)
	}
	if len(hist.Items) != 1 {
		t.Fatalf("want one history item, got %d", len(hist.Items))
	}
}

func TestMaintenanceSurvivesFailingWithdrawal(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	depositor := weavetest.NewCondition().Address()

	// The pool wallet is empty, so returning the principal must fail.
	// The cycle still retires the deposit and pays the owner cut.
	f.saveFund(t, &Fund{
		Metadata:               &weave.Metadata{Schema: 1},
		Owner:                  f.owner.Address(),
		Balance:                coin.NewCoin(1000, 0, "ESQ"),
		OwnerBalance:           coin.Coin{Ticker: "ESQ"},
		FixedPercentOnDeposits: 10000,
		PaymentRates:           []PaymentRate{{Period: 30, Percent: 30000}},
		PrevMaintenanceTime:    testNow - day,
		ValidUntil:             testNow + 1000*day,
		Enabled:                true,
	})
	f.saveDeposit(t, weavetest.SequenceID(1), &Deposit{
		Depositor:   depositor,
		Amount:      coin.NewCoin(1000, 0, "ESQ"),
		Percent:     30000,
		Period:      30,
		DatetimeEnd: testNow - 1,
		Enabled:     true,
	})

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	// Only the daily payment arrived, the principal payout failed.
	if got := f.balance(t, depositor); !got.Equals(coin.NewCoin(10, 0, "ESQ")) {
		t.Fatalf("unexpected depositor funds: %q", got)
	}
	// The owner cut was still disbursed.
	if got := f.balance(t, f.owner.Address()); !got.Equals(coin.NewCoin(1, 0, "ESQ")) {
		t.Fatalf("unexpected owner funds: %q", got)
	}
	// Bookkeeping treats the deposit as retired either way.
	var fund Fund
	if err := NewFundBucket().One(f.db, f.fundID, &fund); err != nil {
		t.Fatalf("cannot load fund: %s", err)
	}
	if !fund.Balance.IsZero() {
		t.Fatalf("pool balance must drop: %q", fund.Balance)
	}
}

func TestMaintenanceHistoryTrimming(t *testing.T) {
	f := newMaintenanceFixture(t, 7)
	f.registerToken(t, coin.Coin{})

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.Coin{Ticker: "ESQ"},
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PrevMaintenanceTime: testNow - day,
		ValidUntil:          testNow + 1000*day,
		Enabled:             true,
	})
	hist := FundHistory{
		Metadata: &weave.Metadata{Schema: 1},
		FundID:   f.fundID,
		Items: []HistoryItem{
			{CreatedAt: testNow - 10*day, DailyProfit: coin.Coin{Ticker: "ESQ"}, DailyPaymentsWithoutOwner: coin.Coin{Ticker: "ESQ"}},
			{CreatedAt: testNow - 3*day, DailyProfit: coin.Coin{Ticker: "ESQ"}, DailyPaymentsWithoutOwner: coin.Coin{Ticker: "ESQ"}},
		},
	}
	if _, err := NewHistoryBucket().Put(f.db, f.fundID, &hist); err != nil {
		t.Fatalf("cannot store history: %s", err)
	}

	if err := f.process(t, testNow); err != nil {
		t.Fatalf("process: %+v", err)
	}

	if err := NewHistoryBucket().One(f.db, f.fundID, &hist); err != nil {
		t.Fatalf("cannot load history: %s", err)
	}
	// The item older than seven days was dropped, the fresh one and the
	// new cycle item remain.
	if len(hist.Items) != 2 {
		t.Fatalf("want two history items, got %d", len(hist.Items))
	}
	if hist.Items[0].CreatedAt != testNow-3*day {
		t.Fatalf("unexpected first item: %d", hist.Items[0].CreatedAt)
	}
	if hist.Items[1].CreatedAt != testNow {
		t.Fatalf("unexpected second item: %d", hist.Items[1].CreatedAt)
	}
}

func TestMaintenanceDisabledFundIsNotProcessed(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.Coin{Ticker: "ESQ"},
		OwnerBalance:        coin.Coin{Ticker: "ESQ"},
		PrevMaintenanceTime: testNow - day,
		ValidUntil:          testNow + 1000*day,
		Enabled:             false,
	})

	if err := f.process(t, testNow); !errors.ErrState.Is(err) {
		t.Fatalf("want state error, got %+v", err)
	}
}

func TestFinishReturnsOwnerPrincipal(t *testing.T) {
	f := newMaintenanceFixture(t, 30)
	f.registerToken(t, coin.Coin{})

	f.saveFund(t, &Fund{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               f.owner.Address(),
		Balance:             coin.NewCoin(500, 0, "ESQ"),
		OwnerBalance:        coin.NewCoin(300, 0, "ESQ"),
		PrevMaintenanceTime: testNow - day,
		ValidUntil:          testNow + 1000*day,
		Enabled:             true,
	})
	if err := f.bank.CoinMint(f.db, Condition(f.fundID).Address(), coin.NewCoin(500, 0, "ESQ")); err != nil {
		t.Fatalf("cannot fill the pool wallet: %s", err)
	}

	ctx := weave.WithHeight(context.Background(), 100)
	ctx = weave.WithChainID(ctx, "testchain-123")
	ctx = weave.WithBlockTime(ctx, testNow.Time())
	ctx = f.auth.SetConditions(ctx, MaintenanceCondition(f.fundID))

	_, err := f.rt.Deliver(ctx, f.db, &weavetest.Tx{
		Msg: &FinishMsg{
			Metadata: &weave.Metadata{Schema: 1},
			FundID:   f.fundID,
		},
	})
	if err != nil {
		t.Fatalf("finish: %+v", err)
	}

	if got := f.balance(t, f.owner.Address()); !got.Equals(coin.NewCoin(300, 0, "ESQ")) {
		t.Fatalf("unexpected owner funds: %q", got)
	}

	var fund Fund
	if err := NewFundBucket().One(f.db, f.fundID, &fund); err != nil {
		t.Fatalf("cannot load fund: %s", err)
	}
	if fund.Enabled {
		t.Fatal("finished fund must be disabled")
	}
	if !fund.OwnerBalance.IsZero() {
		t.Fatalf("owner balance must be zero: %q", fund.OwnerBalance)
	}
	if !fund.Balance.Equals(coin.NewCoin(200, 0, "ESQ")) {
		t.Fatalf("unexpected pool balance: %q", fund.Balance)
	}

	// Finishing twice is rejected.
	if _, err := f.rt.Deliver(ctx, f.db, &weavetest.Tx{
		Msg: &FinishMsg{
			Metadata: &weave.Metadata{Schema: 1},
			FundID:   f.fundID,
		},
	}); !errors.ErrState.Is(err) {
		t.Fatalf("want state error, got %+v", err)
	}
}
