/*
Package app links together all the various components to construct the
escheqd app.
*/
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/store/iavl"
	"github.com/iov-one/weave/x"
	"github.com/iov-one/weave/x/cash"
	"github.com/iov-one/weave/x/cron"
	"github.com/iov-one/weave/x/multisig"
	"github.com/iov-one/weave/x/sigs"
	"github.com/iov-one/weave/x/utils"

	"github.com/escheq/escheqd/x/cheque"
	"github.com/escheq/escheqd/x/fund"
	"github.com/escheq/escheqd/x/token"
)

// HistoryDays is how many days of fund accounting history this node
// retains. Zero makes this a full archive node: nothing is ever trimmed
// and retired deposits are kept in the database. This is a node local
// setting, not consensus state.
var HistoryDays uint32 = 30

// Authenticator returns the typical authentication, just using public key
// signatures.
func Authenticator() x.Authenticator {
	return x.ChainAuth(sigs.Authenticate{}, multisig.Authenticate{})
}

// CashControl returns a controller for cash functions.
func CashControl() cash.Controller {
	return cash.NewController(cash.NewBucket())
}

// Chain returns a chain of decorators, to handle authentication, fees,
// logging, and recovery.
func Chain(authFn x.Authenticator) app.Decorators {
	return app.ChainDecorators(
		utils.NewLogging(),
		utils.NewRecovery(),
		utils.NewKeyTagger(),
		// on CheckTx, bad tx don't affect state
		utils.NewSavepoint().OnCheck(),
		sigs.NewDecorator(),
		multisig.NewDecorator(authFn),
		cash.NewFeeDecorator(authFn, CashControl()),
		utils.NewActionTagger(),
		// on DeliverTx, bad tx will increment nonce and take fee
		// even if the message fails
		utils.NewSavepoint().OnDeliver(),
	)
}

// Router returns the router with all the user facing handlers.
func Router(authFn x.Authenticator, issuer weave.Address, scheduler weave.Scheduler, cronExecutor fund.Executor) weave.Handler {
	r := app.NewRouter()

	ctrl := cash.NewController(cash.NewBucket())
	tokens := token.NewController(ctrl)

	migration.RegisterRoutes(r, authFn)
	cash.RegisterRoutes(r, authFn, ctrl)
	sigs.RegisterRoutes(r, authFn)
	multisig.RegisterRoutes(r, authFn)
	token.RegisterRoutes(r, authFn, issuer)
	cheque.RegisterRoutes(r, authFn, ctrl, tokens, scheduler)
	fund.RegisterRoutes(r, authFn, ctrl, tokens, scheduler)
	fund.RegisterAdminRoutes(r, authFn, ctrl, cronExecutor)
	return r
}

// CronRouter returns the router with all the handlers that are executed by
// the cron ticker only.
func CronRouter(scheduler weave.Scheduler) weave.Handler {
	r := app.NewRouter()

	authFn := cron.Authenticator{}
	ctrl := cash.NewController(cash.NewBucket())
	tokens := token.NewController(ctrl)

	fund.RegisterMaintenanceRoutes(r, authFn, ctrl, tokens, scheduler, fund.HandlerAsExecutor(r), HistoryDays)
	cheque.RegisterCronRoutes(r, authFn, ctrl)
	return r
}

// QueryRouter returns a default query router.
func QueryRouter() weave.QueryRouter {
	r := weave.NewQueryRouter()
	r.RegisterAll(
		migration.RegisterQuery,
		cash.RegisterQuery,
		sigs.RegisterQuery,
		multisig.RegisterQuery,
		token.RegisterQuery,
		cheque.RegisterQuery,
		fund.RegisterQuery,
		orm.RegisterQuery,
	)
	return r
}

// Stack wires up a standard router with a standard decorator chain. This
// can be passed into BaseApp.
func Stack(issuer weave.Address) weave.Handler {
	authFn := Authenticator()
	scheduler := cron.NewScheduler(CronTaskMarshaler)
	cronExecutor := fund.HandlerAsExecutor(CronRouter(scheduler))
	return Chain(authFn).WithHandler(Router(authFn, issuer, scheduler, cronExecutor))
}

// CronStack wires up a standard router with a cron specific decorator
// chain. This can be passed into BaseApp. Cron stack configuration is a
// subset of the main stack: the same components but no signature
// verification and no fees.
func CronStack() weave.Handler {
	scheduler := cron.NewScheduler(CronTaskMarshaler)

	decorators := app.ChainDecorators(
		utils.NewLogging(),
		utils.NewRecovery(),
		utils.NewKeyTagger(),
		utils.NewActionTagger(),
	)
	return decorators.WithHandler(CronRouter(scheduler))
}

// Application constructs a basic ABCI application with the given
// arguments. If you are not sure what to use for the Handler, just use
// Stack().
func Application(name string, h weave.Handler, tx weave.TxDecoder, dbPath string, debug bool) (app.BaseApp, error) {
	ctx := context.Background()
	kv, err := CommitKVStore(dbPath)
	if err != nil {
		return app.BaseApp{}, err
	}
	store := app.NewStoreApp(name, kv, QueryRouter(), ctx)
	ticker := cron.NewTicker(CronStack(), CronTaskMarshaler)
	base := app.NewBaseApp(store, tx, h, ticker, debug)
	return base, nil
}

// CommitKVStore returns an initialized KVStore that persists the data to
// the named path.
func CommitKVStore(dbPath string) (weave.CommitKVStore, error) {
	// memory backed case, just for testing
	if dbPath == "" {
		return iavl.MockCommitStore(), nil
	}

	// Expand the path fully
	path, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("invalid database name: %s", path)
	}

	// Some external calls accidentally add a ".db", which is now removed
	path = strings.TrimSuffix(path, filepath.Ext(path))

	// Split the database name into it's components (dir, name)
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	return iavl.NewCommitStore(dir, name), nil
}
