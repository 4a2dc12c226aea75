package fund

import (
	"math/big"
	"time"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/x"
)

// Executor will deliver a sub operation submitted by the maintenance
// cycle.
type Executor func(ctx weave.Context, store weave.KVStore, msg weave.Msg) (*weave.DeliverResult, error)

// HandlerAsExecutor wraps the msg in a fake Tx to satisfy the Handler
// interface. Since a Router and Decorators also expose this interface, we
// can wrap any stack that does not care about the extra Tx info besides
// Msg.
func HandlerAsExecutor(h weave.Handler) Executor {
	return func(ctx weave.Context, store weave.KVStore, msg weave.Msg) (*weave.DeliverResult, error) {
		return h.Deliver(ctx, store, &fakeTx{msg: msg})
	}
}

type fakeTx struct {
	msg weave.Msg
}

var _ weave.Tx = (*fakeTx)(nil)

func (tx *fakeTx) GetMsg() (weave.Msg, error) {
	return tx.msg, nil
}

func (tx *fakeTx) Marshal() ([]byte, error) {
	return tx.msg.Marshal()
}

func (tx *fakeTx) Unmarshal(data []byte) error {
	return tx.msg.Unmarshal(data)
}

// RegisterMaintenanceRoutes registers the handlers that implement the
// periodic fund maintenance. They are driven by the cron ticker and must
// never be reachable through a user transaction, so they belong on the
// cron router only.
//
// historyDays is how many days of per fund accounting history this node
// retains. Zero means a full archive node: no history is ever trimmed and
// retired deposits are kept (disabled) instead of being deleted.
func RegisterMaintenanceRoutes(r weave.Registry, auth x.Authenticator, ctrl CashController, tokens TokenController, scheduler weave.Scheduler, executor Executor, historyDays uint32) {
	r = migration.SchemaMigratingRegistry("fund", r)

	funds := NewFundBucket()
	deposits := NewDepositBucket()

	r.Handle(&ProcessMsg{}, &processFundHandler{
		auth:        auth,
		funds:       funds,
		deposits:    deposits,
		history:     NewHistoryBucket(),
		profiles:    NewProfileBucket(),
		tokens:      tokens,
		scheduler:   scheduler,
		executor:    executor,
		historyDays: historyDays,
	})
	r.Handle(&FinishMsg{}, newFinishFundHandler(auth, ctrl, executor))
	r.Handle(&PaymentMsg{}, &paymentHandler{
		auth:   auth,
		funds:  funds,
		tokens: tokens,
	})
	r.Handle(&WithdrawalMsg{}, &withdrawalHandler{
		auth:  auth,
		funds: funds,
		ctrl:  ctrl,
	})
	r.Handle(&RenewDepositMsg{}, &renewDepositHandler{
		auth:     auth,
		deposits: deposits,
	})
}

// RegisterAdminRoutes registers the finish handler on a user facing
// router so that the configuration admin can wind a fund down before its
// end date. The executor must route to the maintenance handlers.
func RegisterAdminRoutes(r weave.Registry, auth x.Authenticator, ctrl CashController, executor Executor) {
	r = migration.SchemaMigratingRegistry("fund", r)
	r.Handle(&FinishMsg{}, newFinishFundHandler(auth, ctrl, executor))
}

// subDeliver applies a single sub operation through the executor, using a
// dedicated cache so that a failed operation leaves no partial writes
// behind. A failed sub operation must never abort the running cycle, the
// error is returned for accounting only.
func subDeliver(ctx weave.Context, db weave.KVStore, executor Executor, msg weave.Msg) error {
	cdb, ok := db.(store.CacheableKVStore)
	if !ok {
		_, err := executor(ctx, db, msg)
		return err
	}
	cache := cdb.CacheWrap()
	if _, err := executor(ctx, cache, msg); err != nil {
		cache.Discard()
		return err
	}
	return cache.Write()
}

type processFundHandler struct {
	auth        x.Authenticator
	funds       orm.ModelBucket
	deposits    orm.ModelBucket
	history     orm.ModelBucket
	profiles    orm.ModelBucket
	tokens      TokenController
	scheduler   weave.Scheduler
	executor    Executor
	historyDays uint32
}

var _ weave.Handler = (*processFundHandler)(nil)

func (h *processFundHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

// Deliver runs a single maintenance cycle of a fund: yield payments to the
// depositors, retirement or renewal of overdue deposits, the owner profit
// and the history bookkeeping. Individual sub operation failures are
// swallowed, a single pathological deposit must not stall the whole pool.
func (h *processFundHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, fund, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(conf.MaintenanceInterval) * time.Second
	ticker := fund.Balance.Ticker

	// The cycle arithmetic runs on this snapshot even though the balance
	// decreases when deposits are retired below.
	oldBalance := fund.Balance

	dailyPayments := big.NewInt(0)
	var depsToRemove [][]byte

	var deposits []*Deposit
	keys, err := h.deposits.ByIndex(db, "fund", msg.FundID, &deposits)
	if err != nil {
		return nil, errors.Wrap(err, "deposit lookup")
	}

	for i, dep := range deposits {
		if !dep.Enabled {
			continue
		}

		pRate := fund.PaymentRate(dep.Period)
		if pRate != nil {
			perDay := bonusRat(dep.Percent)
			perDay.Quo(perDay, big.NewRat(int64(pRate.Period), 1))
			if q := mulRound(asShares(dep.Amount), perDay); q.Sign() > 0 {
				quantity, err := coinFromShares(q, ticker)
				if err != nil {
					return nil, errors.Wrap(err, "daily payment")
				}
				quantity, err = h.tokens.Clamp(db, quantity)
				if err != nil {
					return nil, errors.Wrap(err, "supply clamp")
				}
				if quantity.IsPositive() {
					pay := PaymentMsg{
						Metadata:    &weave.Metadata{Schema: 1},
						FundID:      msg.FundID,
						DepositID:   keys[i],
						Amount:      quantity,
						Destination: dep.Depositor,
					}
					if subDeliver(ctx, db, h.executor, &pay) == nil {
						dailyPayments.Add(dailyPayments, asShares(quantity))
					}
				}
			}
		}

		// Return the principal and drop the deposit once its term ended
		// with the maintenance period that is being processed.
		boundary := weave.UnixTime(int64(msg.NextMaintenance) - int64(conf.MaintenanceInterval))
		if boundary < dep.DatetimeEnd {
			continue
		}

		overdue := true
		if autorenewalActive(now) && h.autorenewalEnabled(db, dep.Depositor) {
			overdue = false
			if renewalByOperation(now) {
				percent := dep.Percent
				if pRate != nil {
					percent = pRate.Percent
				}
				renew := RenewDepositMsg{
					Metadata:    &weave.Metadata{Schema: 1},
					DepositID:   keys[i],
					Depositor:   dep.Depositor,
					Percent:     percent,
					DatetimeEnd: dep.DatetimeEnd.Add(time.Duration(dep.Period) * 24 * time.Hour),
				}
				_ = subDeliver(ctx, db, h.executor, &renew)
			} else {
				// The early activation modified the deposit in place,
				// with the extension counted from the processing block.
				if pRate != nil {
					dep.Percent = pRate.Percent
				}
				dep.DatetimeEnd = weave.AsUnixTime(now.Add(time.Duration(dep.Period) * 24 * time.Hour))
				if _, err := h.deposits.Put(db, keys[i], dep); err != nil {
					return nil, errors.Wrap(err, "cannot store deposit")
				}
			}
		}

		if overdue {
			depsToRemove = append(depsToRemove, keys[i])

			withdraw := WithdrawalMsg{
				Metadata:    &weave.Metadata{Schema: 1},
				FundID:      msg.FundID,
				DepositID:   keys[i],
				Amount:      dep.Amount,
				Destination: dep.Depositor,
				Timestamp:   weave.AsUnixTime(now),
			}
			_ = subDeliver(ctx, db, h.executor, &withdraw)

			// The pool shrinks and the deposit is disabled even when
			// the payout sub operation was rejected.
			balance, err := fund.Balance.Subtract(dep.Amount)
			if err != nil {
				return nil, errors.Wrap(err, "pool balance")
			}
			fund.Balance = balance
			dep.Enabled = false
			if _, err := h.deposits.Put(db, keys[i], dep); err != nil {
				return nil, errors.Wrap(err, "cannot store deposit")
			}
		}
	}

	item := HistoryItem{
		CreatedAt:                 weave.AsUnixTime(now),
		DailyProfit:               coin.Coin{Ticker: ticker},
		DailyPaymentsWithoutOwner: coin.Coin{Ticker: ticker},
	}

	if fund.FixedPercentOnDeposits > 0 {
		// Owner profit, variant 1: a fixed cut of what the depositors
		// were paid this cycle.
		if q := mulRound(dailyPayments, bonusRat(fund.FixedPercentOnDeposits)); q.Sign() > 0 {
			quantity, err := coinFromShares(q, ticker)
			if err != nil {
				return nil, errors.Wrap(err, "owner payment")
			}
			quantity, err = h.tokens.Clamp(db, quantity)
			if err != nil {
				return nil, errors.Wrap(err, "supply clamp")
			}
			if quantity.IsPositive() {
				pay := PaymentMsg{
					Metadata:    &weave.Metadata{Schema: 1},
					FundID:      msg.FundID,
					Amount:      quantity,
					Destination: fund.Owner,
				}
				_ = subDeliver(ctx, db, h.executor, &pay)
			}
		}
	} else if fr := fund.MaxFundRate(oldBalance); fr != nil {
		// Owner profit, variant 2: whatever the pool earned above the
		// depositor payments. A pool that paid out more than it earned
		// leaves the owner empty handed but is never compensated back.
		rate := fund.DayRate(fr, weave.AsUnixTime(now))
		if profit := mulRound(asShares(oldBalance), rate); profit.Sign() > 0 {
			dailyProfit, err := coinFromShares(profit, ticker)
			if err != nil {
				return nil, errors.Wrap(err, "daily profit")
			}
			paid, err := coinFromShares(dailyPayments, ticker)
			if err != nil {
				return nil, errors.Wrap(err, "daily payments")
			}
			item.DailyProfit = dailyProfit
			item.DailyPaymentsWithoutOwner = paid

			if ownerProfit := new(big.Int).Sub(profit, dailyPayments); ownerProfit.Sign() > 0 {
				quantity, err := coinFromShares(ownerProfit, ticker)
				if err != nil {
					return nil, errors.Wrap(err, "owner profit")
				}
				quantity, err = h.tokens.Clamp(db, quantity)
				if err != nil {
					return nil, errors.Wrap(err, "supply clamp")
				}
				if quantity.IsPositive() {
					pay := PaymentMsg{
						Metadata:    &weave.Metadata{Schema: 1},
						FundID:      msg.FundID,
						Amount:      quantity,
						Destination: fund.Owner,
					}
					_ = subDeliver(ctx, db, h.executor, &pay)
				}
			}
		}
	}

	if _, err := h.funds.Put(db, msg.FundID, fund); err != nil {
		return nil, errors.Wrap(err, "cannot store fund")
	}

	// Retired deposits are deleted only on nodes that trim history. A
	// full archive node keeps them disabled but present.
	if h.historyDays > 0 {
		for _, key := range depsToRemove {
			if err := h.deposits.Delete(db, key); err != nil {
				return nil, errors.Wrap(err, "remove deposit")
			}
		}
	}

	var hist FundHistory
	if err := h.history.One(db, msg.FundID, &hist); err != nil {
		return nil, errors.Wrap(err, "cannot load history")
	}
	hist.Items = append(hist.Items, item)
	if h.historyDays > 0 {
		cutoff := weave.AsUnixTime(now.Add(-time.Duration(h.historyDays) * 24 * time.Hour))
		items := hist.Items[:0]
		for _, it := range hist.Items {
			if it.CreatedAt >= cutoff {
				items = append(items, it)
			}
		}
		hist.Items = items
	}
	if _, err := h.history.Put(db, msg.FundID, &hist); err != nil {
		return nil, errors.Wrap(err, "cannot store history")
	}

	// Keep the cycle alive until the pool reaches its end of life, then
	// let the finish task take over.
	if fund.ValidUntil != 0 && msg.NextMaintenance >= fund.ValidUntil {
		finish := FinishMsg{
			Metadata: &weave.Metadata{Schema: 1},
			FundID:   msg.FundID,
		}
		if _, err := h.scheduler.Schedule(db, fund.ValidUntil.Time(), []weave.Condition{MaintenanceCondition(msg.FundID)}, &finish); err != nil {
			return nil, errors.Wrap(err, "schedule finish")
		}
	} else {
		next := ProcessMsg{
			Metadata:        &weave.Metadata{Schema: 1},
			FundID:          msg.FundID,
			NextMaintenance: weave.AsUnixTime(msg.NextMaintenance.Time().Add(interval)),
		}
		if _, err := h.scheduler.Schedule(db, msg.NextMaintenance.Time(), []weave.Condition{MaintenanceCondition(msg.FundID)}, &next); err != nil {
			return nil, errors.Wrap(err, "schedule maintenance")
		}
	}

	return &weave.DeliverResult{Data: msg.FundID}, nil
}

func (h *processFundHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*ProcessMsg, *Fund, error) {
	var msg ProcessMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, MaintenanceCondition(msg.FundID).Address()) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "only the scheduler can process")
	}
	var fund Fund
	if err := h.funds.One(db, msg.FundID, &fund); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load fund from the store")
	}
	if !fund.Enabled {
		return nil, nil, errors.Wrap(errors.ErrState, "fund is disabled")
	}
	return &msg, &fund, nil
}

func (h *processFundHandler) autorenewalEnabled(db weave.ReadOnlyKVStore, depositor weave.Address) bool {
	var profile DepositorProfile
	if err := h.profiles.One(db, depositor, &profile); err != nil {
		return false
	}
	return profile.DepositsAutorenewal
}

func newFinishFundHandler(auth x.Authenticator, ctrl CashController, executor Executor) *finishFundHandler {
	return &finishFundHandler{
		auth:     auth,
		funds:    NewFundBucket(),
		ctrl:     ctrl,
		executor: executor,
	}
}

type finishFundHandler struct {
	auth     x.Authenticator
	funds    orm.ModelBucket
	ctrl     CashController
	executor Executor
}

var _ weave.Handler = (*finishFundHandler)(nil)

func (h *finishFundHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

// Deliver winds the fund down. The refilled owner principal flows back to
// the owner wallet and the fund stops accepting deposits and maintenance.
func (h *finishFundHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, fund, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}

	if fund.OwnerBalance.IsPositive() {
		withdraw := WithdrawalMsg{
			Metadata:    &weave.Metadata{Schema: 1},
			FundID:      msg.FundID,
			Amount:      fund.OwnerBalance,
			Destination: fund.Owner,
			Timestamp:   weave.AsUnixTime(now),
		}
		_ = subDeliver(ctx, db, h.executor, &withdraw)

		balance, err := fund.Balance.Subtract(fund.OwnerBalance)
		if err != nil {
			return nil, errors.Wrap(err, "pool balance")
		}
		fund.Balance = balance
	}
	fund.OwnerBalance = coin.Coin{Ticker: fund.OwnerBalance.Ticker}
	fund.Enabled = false
	if _, err := h.funds.Put(db, msg.FundID, fund); err != nil {
		return nil, errors.Wrap(err, "cannot store fund")
	}
	return &weave.DeliverResult{Data: msg.FundID}, nil
}

func (h *finishFundHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*FinishMsg, *Fund, error) {
	var msg FinishMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, MaintenanceCondition(msg.FundID).Address()) {
		conf, err := loadConf(db)
		if err != nil {
			return nil, nil, err
		}
		if !h.auth.HasAddress(ctx, conf.Admin) {
			return nil, nil, errors.Wrap(errors.ErrUnauthorized, "admin signature is required")
		}
	}
	var fund Fund
	if err := h.funds.One(db, msg.FundID, &fund); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load fund from the store")
	}
	if !fund.Enabled {
		return nil, nil, errors.Wrap(errors.ErrState, "fund is disabled")
	}
	return &msg, &fund, nil
}

type paymentHandler struct {
	auth   x.Authenticator
	funds  orm.ModelBucket
	tokens TokenController
}

var _ weave.Handler = (*paymentHandler)(nil)

func (h *paymentHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *paymentHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, _, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	// Yield is new supply, issued within the asset cap.
	if err := h.tokens.Issue(db, msg.Destination, msg.Amount); err != nil {
		return nil, errors.Wrap(err, "issue yield")
	}
	return &weave.DeliverResult{}, nil
}

func (h *paymentHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*PaymentMsg, *Fund, error) {
	var msg PaymentMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, MaintenanceCondition(msg.FundID).Address()) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "only the maintenance cycle can pay")
	}
	var fund Fund
	if err := h.funds.One(db, msg.FundID, &fund); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load fund from the store")
	}
	if msg.Amount.Ticker != fund.Balance.Ticker {
		return nil, nil, errors.Wrap(errors.ErrCurrency, "fund asset id is invalid")
	}
	return &msg, &fund, nil
}

type withdrawalHandler struct {
	auth  x.Authenticator
	funds orm.ModelBucket
	ctrl  CashController
}

var _ weave.Handler = (*withdrawalHandler)(nil)

func (h *withdrawalHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *withdrawalHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, fund, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	// Principal moves back out of the pool wallet.
	if err := h.ctrl.MoveCoins(db, fund.Address, msg.Destination, msg.Amount); err != nil {
		return nil, errors.Wrap(err, "return principal")
	}
	return &weave.DeliverResult{}, nil
}

func (h *withdrawalHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*WithdrawalMsg, *Fund, error) {
	var msg WithdrawalMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, MaintenanceCondition(msg.FundID).Address()) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "only the maintenance cycle can withdraw")
	}
	var fund Fund
	if err := h.funds.One(db, msg.FundID, &fund); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load fund from the store")
	}
	if msg.Amount.Ticker != fund.Balance.Ticker {
		return nil, nil, errors.Wrap(errors.ErrCurrency, "fund asset id is invalid")
	}
	return &msg, &fund, nil
}

type renewDepositHandler struct {
	auth     x.Authenticator
	deposits orm.ModelBucket
}

var _ weave.Handler = (*renewDepositHandler)(nil)

func (h *renewDepositHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *renewDepositHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, dep, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	dep.Percent = msg.Percent
	dep.DatetimeEnd = msg.DatetimeEnd
	if _, err := h.deposits.Put(db, msg.DepositID, dep); err != nil {
		return nil, errors.Wrap(err, "cannot store deposit")
	}
	return &weave.DeliverResult{Data: msg.DepositID}, nil
}

func (h *renewDepositHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*RenewDepositMsg, *Deposit, error) {
	var msg RenewDepositMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	var dep Deposit
	if err := h.deposits.One(db, msg.DepositID, &dep); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load deposit from the store")
	}
	if !h.auth.HasAddress(ctx, MaintenanceCondition(dep.FundID).Address()) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "only the maintenance cycle can renew")
	}
	if !dep.Depositor.Equals(msg.Depositor) {
		return nil, nil, errors.Wrap(errors.ErrInput, "depositor mismatch")
	}
	if !dep.Enabled {
		return nil, nil, errors.Wrap(errors.ErrState, "deposit is disabled")
	}
	return &msg, &dep, nil
}
