package token

import (
	"context"
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/x/cash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerClampAndIssue(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "token", "cash")

	bank := cash.NewController(cash.NewBucket())
	ctrl := NewController(bank)

	registerToken(t, db, "ESQ", coin.NewCoin(100, 0, "ESQ"))
	registerToken(t, db, "FREE", coin.Coin{})

	wallet := weavetest.NewCondition().Address()

	require.NoError(t, ctrl.Has(db, "ESQ"))
	err := ctrl.Has(db, "NOPE")
	assert.True(t, errors.ErrNotFound.Is(err))

	// The whole cap is available before the first issuance.
	got, err := ctrl.Clamp(db, coin.NewCoin(160, 0, "ESQ"))
	require.NoError(t, err)
	assert.True(t, got.Equals(coin.NewCoin(100, 0, "ESQ")))

	require.NoError(t, ctrl.Issue(db, wallet, coin.NewCoin(80, 0, "ESQ")))

	got, err = ctrl.Clamp(db, coin.NewCoin(50, 0, "ESQ"))
	require.NoError(t, err)
	assert.True(t, got.Equals(coin.NewCoin(20, 0, "ESQ")))

	// Issuing above the remaining supply must fail and keep state intact.
	err = ctrl.Issue(db, wallet, coin.NewCoin(21, 0, "ESQ"))
	assert.True(t, errors.ErrOverflow.Is(err))

	require.NoError(t, ctrl.Issue(db, wallet, coin.NewCoin(20, 0, "ESQ")))

	got, err = ctrl.Clamp(db, coin.NewCoin(1, 0, "ESQ"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	// Uncapped tokens clamp to the requested amount.
	got, err = ctrl.Clamp(db, coin.NewCoin(123456, 0, "FREE"))
	require.NoError(t, err)
	assert.True(t, got.Equals(coin.NewCoin(123456, 0, "FREE")))

	balance, err := bank.Balance(db, wallet)
	require.NoError(t, err)
	require.Len(t, balance, 1)
	assert.True(t, balance[0].Equals(coin.NewCoin(100, 0, "ESQ")))
}

func TestRegisterTokenHandler(t *testing.T) {
	issuerCond := weavetest.NewCondition()

	cases := map[string]struct {
		conditions []weave.Condition
		msg        *RegisterTokenMsg
		wantErr    *errors.Error
	}{
		"issuer can register a token": {
			conditions: []weave.Condition{issuerCond},
			msg: &RegisterTokenMsg{
				Metadata:  &weave.Metadata{Schema: 1},
				Ticker:    "ESQ",
				Name:      "escheq token",
				MaxSupply: coin.NewCoin(1000, 0, "ESQ"),
			},
		},
		"registration is gated by the issuer signature": {
			conditions: []weave.Condition{weavetest.NewCondition()},
			msg: &RegisterTokenMsg{
				Metadata:  &weave.Metadata{Schema: 1},
				Ticker:    "ESQ",
				Name:      "escheq token",
				MaxSupply: coin.NewCoin(1000, 0, "ESQ"),
			},
			wantErr: errors.ErrUnauthorized,
		},
		"ticker must be a currency code": {
			conditions: []weave.Condition{issuerCond},
			msg: &RegisterTokenMsg{
				Metadata:  &weave.Metadata{Schema: 1},
				Ticker:    "bad ticker",
				Name:      "escheq token",
				MaxSupply: coin.Coin{},
			},
			wantErr: errors.ErrCurrency,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "token")

			rt := app.NewRouter()
			auth := &weavetest.CtxAuth{Key: "auth"}
			RegisterRoutes(rt, auth, issuerCond.Address())

			ctx := weave.WithChainID(weave.WithHeight(context.Background(), 100), "testchain-123")
			ctx = auth.SetConditions(ctx, tc.conditions...)

			tx := &weavetest.Tx{Msg: tc.msg}
			if _, err := rt.Deliver(ctx, db, tx); !tc.wantErr.Is(err) {
				t.Fatalf("unexpected deliver error: want %q, got %+v", tc.wantErr, err)
			}
		})
	}
}

func TestRegisterTokenOnlyOnce(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "token")

	issuerCond := weavetest.NewCondition()
	rt := app.NewRouter()
	auth := &weavetest.CtxAuth{Key: "auth"}
	RegisterRoutes(rt, auth, issuerCond.Address())

	ctx := weave.WithChainID(weave.WithHeight(context.Background(), 100), "testchain-123")
	ctx = auth.SetConditions(ctx, issuerCond)

	tx := &weavetest.Tx{Msg: &RegisterTokenMsg{
		Metadata:  &weave.Metadata{Schema: 1},
		Ticker:    "ESQ",
		Name:      "escheq token",
		MaxSupply: coin.Coin{},
	}}
	_, err := rt.Deliver(ctx, db, tx)
	require.NoError(t, err)

	_, err = rt.Deliver(ctx, db, tx)
	assert.True(t, errors.ErrDuplicate.Is(err))
}

func registerToken(t testing.TB, db weave.KVStore, ticker string, maxSupply coin.Coin) {
	t.Helper()

	info := TokenInfo{
		Metadata:  &weave.Metadata{Schema: 1},
		Name:      "a test token",
		MaxSupply: maxSupply,
	}
	info.Issued.Ticker = ticker
	if _, err := NewTokenInfoBucket().Put(db, []byte(ticker), &info); err != nil {
		t.Fatalf("cannot store %q token: %s", ticker, err)
	}
}
