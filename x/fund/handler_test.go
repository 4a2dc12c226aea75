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

func TestFundLifecycle(t *testing.T) {
	var (
		adminCond = weavetest.NewCondition()
		ownerCond = weavetest.NewCondition()
		bobCond   = weavetest.NewCondition()

		now = testNow
	)

	db := store.MemStore()
	migration.MustInitPkg(db, "fund", "cash", "token")

	rt := app.NewRouter()
	auth := &weavetest.CtxAuth{Key: "auth"}
	ctrl := cash.NewController(cash.NewBucket())
	tokens := token.NewController(ctrl)
	cron := &weavetest.Cron{}
	RegisterRoutes(rt, auth, ctrl, tokens, cron)

	conf := Configuration{
		Metadata:            &weave.Metadata{Schema: 1},
		Owner:               adminCond.Address(),
		Admin:               adminCond.Address(),
		MaintenanceInterval: testInterval,
	}
	if err := gconf.Save(db, "fund", &conf); err != nil {
		t.Fatalf("cannot save configuration: %s", err)
	}

	info := token.TokenInfo{
		Metadata:  &weave.Metadata{Schema: 1},
		Name:      "a test token",
		MaxSupply: coin.Coin{},
	}
	info.Issued.Ticker = "ESQ"
	if _, err := token.NewTokenInfoBucket().Put(db, []byte("ESQ"), &info); err != nil {
		t.Fatalf("cannot register token: %s", err)
	}

	if err := ctrl.CoinMint(db, ownerCond.Address(), coin.NewCoin(500, 0, "ESQ")); err != nil {
		t.Fatalf("cannot mint: %s", err)
	}
	if err := ctrl.CoinMint(db, bobCond.Address(), coin.NewCoin(1000, 0, "ESQ")); err != nil {
		t.Fatalf("cannot mint: %s", err)
	}

	baseCtx := weave.WithHeight(context.Background(), 100)
	baseCtx = weave.WithChainID(baseCtx, "testchain-123")
	baseCtx = weave.WithBlockTime(baseCtx, now.Time())

	// The owner opens the pool.
	ctx := auth.SetConditions(baseCtx, ownerCond)
	res, err := rt.Deliver(ctx, db, &weavetest.Tx{
		Msg: &CreateMsg{
			Metadata:     &weave.Metadata{Schema: 1},
			Owner:        ownerCond.Address(),
			Ticker:       "ESQ",
			ValidUntil:   now.Add(365 * 24 * time.Hour),
			PaymentRates: []PaymentRate{{Period: 30, Percent: 30000}},
		},
	})
	if err != nil {
		t.Fatalf("cannot create fund: %+v", err)
	}
	fundID := res.Data

	var fund Fund
	if err := NewFundBucket().One(db, fundID, &fund); err != nil {
		t.Fatalf("cannot load fund: %s", err)
	}
	if !fund.Enabled {
		t.Fatal("new fund must be enabled")
	}
	if fund.PrevMaintenanceTime != now {
		t.Fatalf("unexpected rate epoch: %d", fund.PrevMaintenanceTime)
	}

	// A deposit without a declared payment rate is rejected.
	ctx = auth.SetConditions(baseCtx, bobCond)
	_, err = rt.Deliver(ctx, db, &weavetest.Tx{
		Msg: &DepositMsg{
			Metadata:  &weave.Metadata{Schema: 1},
			FundID:    fundID,
			Depositor: bobCond.Address(),
			Amount:    coin.NewCoin(100, 0, "ESQ"),
			Period:    60,
		},
	})
	if !errors.ErrInput.Is(err) {
		t.Fatalf("want input error, got %+v", err)
	}

	// A proper deposit locks the principal in the pool wallet.
	_, err = rt.Deliver(ctx, db, &weavetest.Tx{
		Msg: &DepositMsg{
			Metadata:  &weave.Metadata{Schema: 1},
			FundID:    fundID,
			Depositor: bobCond.Address(),
			Amount:    coin.NewCoin(600, 0, "ESQ"),
			Period:    30,
		},
	})
	if err != nil {
		t.Fatalf("cannot deposit: %+v", err)
	}

	assertWallet(t, ctrl, db, bobCond.Address(), coin.NewCoin(400, 0, "ESQ"))
	assertWallet(t, ctrl, db, Condition(fundID).Address(), coin.NewCoin(600, 0, "ESQ"))

	if err := NewFundBucket().One(db, fundID, &fund); err != nil {
		t.Fatalf("cannot load fund: %s", err)
	}
	if !fund.Balance.Equals(coin.NewCoin(600, 0, "ESQ")) {
		t.Fatalf("unexpected pool balance: %q", fund.Balance)
	}

	var dep Deposit
	if err := NewDepositBucket().One(db, weavetest.SequenceID(1), &dep); err != nil {
		t.Fatalf("cannot load deposit: %s", err)
	}
	if dep.Percent != 30000 {
		t.Fatalf("deposit must capture the payment rate percent: %d", dep.Percent)
	}
	if want := now.Add(30 * 24 * time.Hour); dep.DatetimeEnd != want {
		t.Fatalf("unexpected deposit end: %d, want %d", dep.DatetimeEnd, want)
	}

	// The owner tops the pool up, which feeds the owner balance.
	ctx = auth.SetConditions(baseCtx, ownerCond)
	_, err = rt.Deliver(ctx, db, &weavetest.Tx{
		Msg: &RefillMsg{
			Metadata: &weave.Metadata{Schema: 1},
			FundID:   fundID,
			Amount:   coin.NewCoin(500, 0, "ESQ"),
		},
	})
	if err != nil {
		t.Fatalf("cannot refill: %+v", err)
	}

	if err := NewFundBucket().One(db, fundID, &fund); err != nil {
		t.Fatalf("cannot load fund: %s", err)
	}
	if !fund.Balance.Equals(coin.NewCoin(1100, 0, "ESQ")) {
		t.Fatalf("unexpected pool balance: %q", fund.Balance)
	}
	if !fund.OwnerBalance.Equals(coin.NewCoin(500, 0, "ESQ")) {
		t.Fatalf("unexpected owner balance: %q", fund.OwnerBalance)
	}

	// Depositors manage their own autorenewal preference.
	ctx = auth.SetConditions(baseCtx, bobCond)
	_, err = rt.Deliver(ctx, db, &weavetest.Tx{
		Msg: &SetAutorenewalMsg{
			Metadata:  &weave.Metadata{Schema: 1},
			Depositor: bobCond.Address(),
			Enabled:   true,
		},
	})
	if err != nil {
		t.Fatalf("cannot set autorenewal: %+v", err)
	}
	var profile DepositorProfile
	if err := NewProfileBucket().One(db, bobCond.Address(), &profile); err != nil {
		t.Fatalf("cannot load profile: %s", err)
	}
	if !profile.DepositsAutorenewal {
		t.Fatal("autorenewal must be enabled")
	}
}

func TestCreateFundRequiresOwnerSignature(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "fund", "cash", "token")

	rt := app.NewRouter()
	auth := &weavetest.CtxAuth{Key: "auth"}
	ctrl := cash.NewController(cash.NewBucket())
	tokens := token.NewController(ctrl)
	RegisterRoutes(rt, auth, ctrl, tokens, &weavetest.Cron{})

	ownerCond := weavetest.NewCondition()

	ctx := weave.WithHeight(context.Background(), 100)
	ctx = weave.WithChainID(ctx, "testchain-123")
	ctx = weave.WithBlockTime(ctx, testNow.Time())
	ctx = auth.SetConditions(ctx, weavetest.NewCondition())

	_, err := rt.Deliver(ctx, db, &weavetest.Tx{
		Msg: &CreateMsg{
			Metadata:   &weave.Metadata{Schema: 1},
			Owner:      ownerCond.Address(),
			Ticker:     "ESQ",
			ValidUntil: testNow.Add(time.Hour),
		},
	})
	if !errors.ErrUnauthorized.Is(err) {
		t.Fatalf("want unauthorized error, got %+v", err)
	}
}

func assertWallet(t testing.TB, bank testBank, db weave.KVStore, wallet weave.Address, funds coin.Coin) {
	t.Helper()

	coins, err := bank.Balance(db, wallet)
	if err != nil {
		t.Fatalf("balance: %s", err)
	}
	if len(coins) != 1 {
		t.Fatalf("want %q funds, found %d coins: %q", funds, len(coins), coins)
	}
	if !coins[0].Equals(funds) {
		t.Fatalf("unexpected funds found: %q", coins[0])
	}
}
