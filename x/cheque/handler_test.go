package cheque

import (
	"context"
	"testing"
	"time"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	coin "github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/x/cash"

	"github.com/escheq/escheqd/x/token"
)

func TestUseCases(t *testing.T) {
	type Request struct {
		Now         weave.UnixTime
		Conditions  []weave.Condition
		Tx          weave.Tx
		BlockHeight int64
		WantErr     *errors.Error
	}

	var (
		aliceCond = weavetest.NewCondition()
		bobCond   = weavetest.NewCondition()
		carlCond  = weavetest.NewCondition()
		danCond   = weavetest.NewCondition()

		now = weave.UnixTime(1572247483)
	)

	cases := map[string]struct {
		Requests  []Request
		Funds     map[string]coin.Coin
		AfterTest func(t *testing.T, db weave.KVStore)
	}{
		"happy path create and redeem twice": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "ESQ"),
							PayeeCount:  3,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    bobCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(10, 0, "ESQ"),
						},
					},
					BlockHeight: 101,
				},
				{
					Now:        now + 2,
					Conditions: []weave.Condition{carlCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    carlCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(10, 0, "ESQ"),
						},
					},
					BlockHeight: 102,
				},
				{
					Now:        now + 3,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    bobCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(10, 0, "ESQ"),
						},
					},
					BlockHeight: 103,
					WantErr:     errors.ErrDuplicate,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assertFunds(t, db, aliceCond.Address(), coin.NewCoin(70, 0, "ESQ"))
				assertFunds(t, db, bobCond.Address(), coin.NewCoin(10, 0, "ESQ"))
				assertFunds(t, db, carlCond.Address(), coin.NewCoin(10, 0, "ESQ"))

				var c Cheque
				if err := NewBucket().One(db, weavetest.SequenceID(1), &c); err != nil {
					t.Fatalf("cannot get cheque: %s", err)
				}
				if c.State != ChequeState_OPEN {
					t.Fatalf("cheque must stay open with one slot left: %s", c.State)
				}
				if !c.AmountRemaining.Equals(coin.NewCoin(10, 0, "ESQ")) {
					t.Fatalf("unexpected remaining escrow: %q", c.AmountRemaining)
				}
				assertSlotUsers(t, &c, bobCond.Address(), carlCond.Address(), nil)
			},
		},
		"reverse after partial redemption returns the rest to the drawer": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "ESQ"),
							PayeeCount:  3,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    bobCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(10, 0, "ESQ"),
						},
					},
					BlockHeight: 101,
				},
				{
					Now:        now + 2,
					Conditions: []weave.Condition{carlCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    carlCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(10, 0, "ESQ"),
						},
					},
					BlockHeight: 102,
				},
				{
					Now:        now + 3,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &ReverseMsg{
							Metadata: &weave.Metadata{Schema: 1},
							ChequeID: weavetest.SequenceID(1),
						},
					},
					BlockHeight: 103,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assertFunds(t, db, aliceCond.Address(), coin.NewCoin(80, 0, "ESQ"))

				var c Cheque
				if err := NewBucket().One(db, weavetest.SequenceID(1), &c); err != nil {
					t.Fatalf("cannot get cheque: %s", err)
				}
				if c.State != ChequeState_REVERSED {
					t.Fatalf("cheque must be reversed: %s", c.State)
				}
				if !c.AmountRemaining.IsZero() {
					t.Fatalf("remaining escrow must be zero: %q", c.AmountRemaining)
				}
				assertSlotUsers(t, &c, bobCond.Address(), carlCond.Address(), aliceCond.Address())
			},
		},
		"reverse of an untouched cheque restores the drawer balance": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "ESQ"),
							PayeeCount:  5,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &ReverseMsg{
							Metadata: &weave.Metadata{Schema: 1},
							ChequeID: weavetest.SequenceID(1),
						},
					},
					BlockHeight: 101,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assertFunds(t, db, aliceCond.Address(), coin.NewCoin(100, 0, "ESQ"))
			},
		},
		"cheque code must be unique among live cheques": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
				string(bobCond.Address()):   coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "TWICE",
							AmountPayee: coin.NewCoin(1, 0, "ESQ"),
							PayeeCount:  1,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      bobCond.Address(),
							Code:        "TWICE",
							AmountPayee: coin.NewCoin(2, 0, "ESQ"),
							PayeeCount:  2,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 101,
					WantErr:     errors.ErrDuplicate,
				},
			},
		},
		"expiration datetime equal to the block time is rejected": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "ESQ"),
							PayeeCount:  1,
							ExpiresAt:   now,
						},
					},
					BlockHeight: 100,
					WantErr:     errors.ErrInput,
				},
			},
		},
		"drawer balance must cover every payee slot": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(29, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "ESQ"),
							PayeeCount:  3,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
					WantErr:     errors.ErrAmount,
				},
			},
		},
		"unknown asset cannot be escrowed": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "GONE"),
							PayeeCount:  1,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"redemption amount and asset must match exactly": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "ESQ"),
							PayeeCount:  2,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    bobCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(9, 0, "ESQ"),
						},
					},
					BlockHeight: 101,
					WantErr:     errors.ErrAmount,
				},
				{
					Now:        now + 2,
					Conditions: []weave.Condition{danCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    danCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(10, 0, "OTER"),
						},
					},
					BlockHeight: 102,
					WantErr:     errors.ErrCurrency,
				},
			},
		},
		"redeeming an unknown code fails": {
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    bobCond.Address(),
							Code:     "GHOST",
							Amount:   coin.NewCoin(10, 0, "ESQ"),
						},
					},
					BlockHeight: 100,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"a fully used cheque cannot be reversed": {
			Funds: map[string]coin.Coin{
				string(aliceCond.Address()): coin.NewCoin(100, 0, "ESQ"),
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &CreateMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Drawer:      aliceCond.Address(),
							Code:        "X",
							AmountPayee: coin.NewCoin(10, 0, "ESQ"),
							PayeeCount:  1,
							ExpiresAt:   now.Add(24 * time.Hour),
						},
					},
					BlockHeight: 100,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &RedeemMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Payee:    bobCond.Address(),
							Code:     "X",
							Amount:   coin.NewCoin(10, 0, "ESQ"),
						},
					},
					BlockHeight: 101,
				},
				{
					Now:        now + 2,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &ReverseMsg{
							Metadata: &weave.Metadata{Schema: 1},
							ChequeID: weavetest.SequenceID(1),
						},
					},
					BlockHeight: 102,
					WantErr:     errors.ErrState,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				var c Cheque
				if err := NewBucket().One(db, weavetest.SequenceID(1), &c); err != nil {
					t.Fatalf("cannot get cheque: %s", err)
				}
				if c.State != ChequeState_USED {
					t.Fatalf("cheque must be in terminal used state: %s", c.State)
				}
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "cheque", "cash", "token")

			rt := app.NewRouter()
			auth := &weavetest.CtxAuth{Key: "auth"}
			ctrl := cash.NewController(cash.NewBucket())
			tokens := token.NewController(ctrl)
			RegisterRoutes(rt, auth, ctrl, tokens, &weavetest.Cron{})

			registerTestTokens(t, db)
			for addr, amount := range tc.Funds {
				if err := ctrl.CoinMint(db, weave.Address(addr), amount); err != nil {
					t.Fatalf("cannot mint %q: %s", amount, err)
				}
			}

			for i, req := range tc.Requests {
				ctx := weave.WithHeight(context.Background(), req.BlockHeight)
				ctx = weave.WithChainID(ctx, "testchain-123")
				ctx = auth.SetConditions(ctx, req.Conditions...)
				ctx = weave.WithBlockTime(ctx, req.Now.Time())

				cache := db.CacheWrap()
				if _, err := rt.Check(ctx, cache, req.Tx); !req.WantErr.Is(err) {
					t.Fatalf("unexpected %d check error: want %q, got %+v", i, req.WantErr, err)
				}
				cache.Discard()
				if _, err := rt.Deliver(ctx, db, req.Tx); !req.WantErr.Is(err) {
					t.Fatalf("unexpected %d deliver error: want %q, got %+v", i, req.WantErr, err)
				}
			}

			if tc.AfterTest != nil {
				tc.AfterTest(t, db)
			}
		})
	}
}

func TestExpiredChequeIsReturnedToDrawer(t *testing.T) {
	var (
		aliceCond = weavetest.NewCondition()
		bobCond   = weavetest.NewCondition()

		now = weave.UnixTime(1572247483)
	)

	db := store.MemStore()
	migration.MustInitPkg(db, "cheque", "cash", "token")

	rt := app.NewRouter()
	auth := &weavetest.CtxAuth{Key: "auth"}
	ctrl := cash.NewController(cash.NewBucket())
	tokens := token.NewController(ctrl)
	cron := &weavetest.Cron{}
	RegisterRoutes(rt, auth, ctrl, tokens, cron)
	RegisterCronRoutes(rt, auth, ctrl)

	registerTestTokens(t, db)
	if err := ctrl.CoinMint(db, aliceCond.Address(), coin.NewCoin(100, 0, "ESQ")); err != nil {
		t.Fatalf("cannot mint: %s", err)
	}

	ctx := weave.WithHeight(context.Background(), 100)
	ctx = weave.WithChainID(ctx, "testchain-123")
	ctx = weave.WithBlockTime(ctx, now.Time())

	createCtx := auth.SetConditions(ctx, aliceCond)
	_, err := rt.Deliver(createCtx, db, &weavetest.Tx{
		Msg: &CreateMsg{
			Metadata:    &weave.Metadata{Schema: 1},
			Drawer:      aliceCond.Address(),
			Code:        "X",
			AmountPayee: coin.NewCoin(10, 0, "ESQ"),
			PayeeCount:  2,
			ExpiresAt:   now.Add(time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("cannot create cheque: %s", err)
	}

	redeemCtx := auth.SetConditions(ctx, bobCond)
	_, err = rt.Deliver(redeemCtx, db, &weavetest.Tx{
		Msg: &RedeemMsg{
			Metadata: &weave.Metadata{Schema: 1},
			Payee:    bobCond.Address(),
			Code:     "X",
			Amount:   coin.NewCoin(10, 0, "ESQ"),
		},
	})
	if err != nil {
		t.Fatalf("cannot redeem: %s", err)
	}

	// The cron ticker delivers the expiration with the task conditions.
	expireCtx := weave.WithBlockTime(ctx, now.Add(2*time.Hour).Time())
	expireCtx = auth.SetConditions(expireCtx, ExpireCondition(weavetest.SequenceID(1)))
	_, err = rt.Deliver(expireCtx, db, &weavetest.Tx{
		Msg: &ExpireMsg{
			Metadata: &weave.Metadata{Schema: 1},
			ChequeID: weavetest.SequenceID(1),
		},
	})
	if err != nil {
		t.Fatalf("cannot expire: %s", err)
	}

	assertFunds(t, db, aliceCond.Address(), coin.NewCoin(90, 0, "ESQ"))
	assertFunds(t, db, bobCond.Address(), coin.NewCoin(10, 0, "ESQ"))

	var c Cheque
	if err := NewBucket().One(db, weavetest.SequenceID(1), &c); err != nil {
		t.Fatalf("cannot get cheque: %s", err)
	}
	if c.State != ChequeState_REVERSED {
		t.Fatalf("expired cheque must be reversed: %s", c.State)
	}
	if !c.AmountRemaining.IsZero() {
		t.Fatalf("remaining escrow must be zero: %q", c.AmountRemaining)
	}
	assertSlotUsers(t, &c, bobCond.Address(), aliceCond.Address())

	// Terminal cheques cannot expire twice.
	_, err = rt.Deliver(expireCtx, db, &weavetest.Tx{
		Msg: &ExpireMsg{
			Metadata: &weave.Metadata{Schema: 1},
			ChequeID: weavetest.SequenceID(1),
		},
	})
	if !errors.ErrState.Is(err) {
		t.Fatalf("want state error, got %+v", err)
	}
}

func registerTestTokens(t testing.TB, db weave.KVStore) {
	t.Helper()

	for _, ticker := range []string{"ESQ", "OTER"} {
		info := token.TokenInfo{
			Metadata:  &weave.Metadata{Schema: 1},
			Name:      "a test token",
			MaxSupply: coin.Coin{},
		}
		info.Issued.Ticker = ticker
		if _, err := token.NewTokenInfoBucket().Put(db, []byte(ticker), &info); err != nil {
			t.Fatalf("cannot register %q: %s", ticker, err)
		}
	}
}

func assertFunds(t testing.TB, db weave.KVStore, wallet weave.Address, funds coin.Coin) {
	t.Helper()

	coins, err := cash.NewController(cash.NewBucket()).Balance(db, wallet)
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

// assertSlotUsers compares the payee of every slot in order. A nil address
// means the slot must still be open.
func assertSlotUsers(t testing.TB, c *Cheque, payees ...weave.Address) {
	t.Helper()

	if len(c.Payees) != len(payees) {
		t.Fatalf("want %d payee slots, got %d", len(payees), len(c.Payees))
	}
	for i, want := range payees {
		slot := c.Payees[i]
		if want == nil {
			if slot.State != ChequeState_OPEN {
				t.Fatalf("slot %d must be open", i)
			}
			continue
		}
		if slot.State != ChequeState_USED {
			t.Fatalf("slot %d must be used", i)
		}
		if !want.Equals(slot.Payee) {
			t.Fatalf("slot %d names %s, want %s", i, slot.Payee, want)
		}
	}
}
