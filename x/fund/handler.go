package fund

import (
	"time"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
)

const (
	createFundCost int64 = 300
	depositCost    int64 = 100
)

// CashController is the balance functionality required by this package. It
// is implemented by the x/cash extension.
type CashController interface {
	Balance(weave.KVStore, weave.Address) (coin.Coins, error)
	MoveCoins(weave.KVStore, weave.Address, weave.Address, coin.Coin) error
}

// TokenController is the asset registry and issuance functionality
// required by this package. It is implemented by the x/token extension.
type TokenController interface {
	Has(db weave.ReadOnlyKVStore, ticker string) error
	Clamp(db weave.ReadOnlyKVStore, c coin.Coin) (coin.Coin, error)
	Issue(db weave.KVStore, dest weave.Address, c coin.Coin) error
}

func RegisterQuery(qr weave.QueryRouter) {
	NewFundBucket().Register("funds", qr)
	NewDepositBucket().Register("deposits", qr)
	NewHistoryBucket().Register("fundhistories", qr)
	NewProfileBucket().Register("depositorprofiles", qr)
}

// RegisterRoutes will instantiate and register all user facing handlers in
// this package.
func RegisterRoutes(r weave.Registry, auth x.Authenticator, ctrl CashController, tokens TokenController, scheduler weave.Scheduler) {
	r = migration.SchemaMigratingRegistry("fund", r)

	funds := NewFundBucket()
	deposits := NewDepositBucket()

	r.Handle(&CreateMsg{}, &createFundHandler{
		auth:      auth,
		funds:     funds,
		history:   NewHistoryBucket(),
		tokens:    tokens,
		scheduler: scheduler,
	})
	r.Handle(&DepositMsg{}, &depositHandler{
		auth:     auth,
		funds:    funds,
		deposits: deposits,
		ctrl:     ctrl,
	})
	r.Handle(&RefillMsg{}, &refillHandler{
		auth:  auth,
		funds: funds,
		ctrl:  ctrl,
	})
	r.Handle(&SetAutorenewalMsg{}, &setAutorenewalHandler{
		auth:     auth,
		profiles: NewProfileBucket(),
	})
	r.Handle(&UpdateConfigurationMsg{},
		gconf.NewUpdateConfigurationHandler("fund", &Configuration{}, auth, migration.CurrentAdmin))
}

type createFundHandler struct {
	auth      x.Authenticator
	funds     orm.ModelBucket
	history   orm.ModelBucket
	tokens    TokenController
	scheduler weave.Scheduler
}

var _ weave.Handler = (*createFundHandler)(nil)

func (h *createFundHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: createFundCost}, nil
}

func (h *createFundHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
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

	key, err := fundSeq.NextVal(db)
	if err != nil {
		return nil, errors.Wrap(err, "cannot acquire key")
	}

	fund := Fund{
		Metadata:               &weave.Metadata{Schema: 1},
		Owner:                  msg.Owner,
		Balance:                coin.Coin{Ticker: msg.Ticker},
		OwnerBalance:           coin.Coin{Ticker: msg.Ticker},
		FixedPercentOnDeposits: msg.FixedPercentOnDeposits,
		RatesReductionPerMonth: msg.RatesReductionPerMonth,
		FundRates:              msg.FundRates,
		PaymentRates:           msg.PaymentRates,
		PrevMaintenanceTime:    weave.AsUnixTime(now),
		ValidUntil:             msg.ValidUntil,
		Enabled:                true,
		Address:                Condition(key).Address(),
	}
	if _, err := h.funds.Put(db, key, &fund); err != nil {
		return nil, errors.Wrap(err, "cannot store fund")
	}

	hist := FundHistory{
		Metadata: &weave.Metadata{Schema: 1},
		FundID:   key,
	}
	if _, err := h.history.Put(db, key, &hist); err != nil {
		return nil, errors.Wrap(err, "cannot store history")
	}

	// The first cycle runs one interval from now and every task carries
	// the boundary that follows it.
	interval := time.Duration(conf.MaintenanceInterval) * time.Second
	runAt := now.Add(interval)
	task := ProcessMsg{
		Metadata:        &weave.Metadata{Schema: 1},
		FundID:          key,
		NextMaintenance: weave.AsUnixTime(runAt.Add(interval)),
	}
	if _, err := h.scheduler.Schedule(db, runAt, []weave.Condition{MaintenanceCondition(key)}, &task); err != nil {
		return nil, errors.Wrap(err, "schedule maintenance")
	}

	return &weave.DeliverResult{Data: key}, nil
}

func (h *createFundHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*CreateMsg, error) {
	var msg CreateMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Owner) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "owner signature is required")
	}
	if err := h.tokens.Has(db, msg.Ticker); err != nil {
		return nil, errors.Wrapf(err, "asset %q", msg.Ticker)
	}
	if weave.IsExpired(ctx, msg.ValidUntil) {
		return nil, errors.Wrap(errors.ErrInput, "end date in the past")
	}
	return &msg, nil
}

type depositHandler struct {
	auth     x.Authenticator
	funds    orm.ModelBucket
	deposits orm.ModelBucket
	ctrl     CashController
}

var _ weave.Handler = (*depositHandler)(nil)

func (h *depositHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: depositCost}, nil
}

func (h *depositHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, fund, rate, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}

	key, err := depositSeq.NextVal(db)
	if err != nil {
		return nil, errors.Wrap(err, "cannot acquire key")
	}

	// Lock the principal within the pool wallet.
	if err := h.ctrl.MoveCoins(db, msg.Depositor, fund.Address, msg.Amount); err != nil {
		return nil, errors.Wrap(err, "deposit funds")
	}
	balance, err := fund.Balance.Add(msg.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "pool balance")
	}
	fund.Balance = balance
	if _, err := h.funds.Put(db, msg.FundID, fund); err != nil {
		return nil, errors.Wrap(err, "cannot store fund")
	}

	deposit := Deposit{
		Metadata:    &weave.Metadata{Schema: 1},
		FundID:      msg.FundID,
		Depositor:   msg.Depositor,
		Amount:      msg.Amount,
		Percent:     rate.Percent,
		Period:      msg.Period,
		DatetimeEnd: weave.AsUnixTime(now.Add(time.Duration(msg.Period) * 24 * time.Hour)),
		Enabled:     true,
	}
	if _, err := h.deposits.Put(db, key, &deposit); err != nil {
		return nil, errors.Wrap(err, "cannot store deposit")
	}
	return &weave.DeliverResult{Data: key}, nil
}

func (h *depositHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*DepositMsg, *Fund, *PaymentRate, error) {
	var msg DepositMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Depositor) {
		return nil, nil, nil, errors.Wrap(errors.ErrUnauthorized, "depositor signature is required")
	}
	var fund Fund
	if err := h.funds.One(db, msg.FundID, &fund); err != nil {
		return nil, nil, nil, errors.Wrap(err, "cannot load fund from the store")
	}
	if !fund.Enabled {
		return nil, nil, nil, errors.Wrap(errors.ErrState, "fund is disabled")
	}
	if msg.Amount.Ticker != fund.Balance.Ticker {
		return nil, nil, nil, errors.Wrap(errors.ErrCurrency, "fund asset id is invalid")
	}
	rate := fund.PaymentRate(msg.Period)
	if rate == nil {
		return nil, nil, nil, errors.Wrapf(errors.ErrInput, "no payment rate for period %d", msg.Period)
	}
	if err := hasFunds(db, h.ctrl, msg.Depositor, msg.Amount); err != nil {
		return nil, nil, nil, err
	}
	return &msg, &fund, rate, nil
}

type refillHandler struct {
	auth  x.Authenticator
	funds orm.ModelBucket
	ctrl  CashController
}

var _ weave.Handler = (*refillHandler)(nil)

func (h *refillHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *refillHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, fund, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := h.ctrl.MoveCoins(db, fund.Owner, fund.Address, msg.Amount); err != nil {
		return nil, errors.Wrap(err, "refill funds")
	}
	balance, err := fund.Balance.Add(msg.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "pool balance")
	}
	fund.Balance = balance
	ownerBalance, err := fund.OwnerBalance.Add(msg.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "owner balance")
	}
	fund.OwnerBalance = ownerBalance
	if _, err := h.funds.Put(db, msg.FundID, fund); err != nil {
		return nil, errors.Wrap(err, "cannot store fund")
	}
	return &weave.DeliverResult{Data: msg.FundID}, nil
}

func (h *refillHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*RefillMsg, *Fund, error) {
	var msg RefillMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	var fund Fund
	if err := h.funds.One(db, msg.FundID, &fund); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load fund from the store")
	}
	if !h.auth.HasAddress(ctx, fund.Owner) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "owner signature is required")
	}
	if !fund.Enabled {
		return nil, nil, errors.Wrap(errors.ErrState, "fund is disabled")
	}
	if msg.Amount.Ticker != fund.Balance.Ticker {
		return nil, nil, errors.Wrap(errors.ErrCurrency, "fund asset id is invalid")
	}
	if err := hasFunds(db, h.ctrl, fund.Owner, msg.Amount); err != nil {
		return nil, nil, err
	}
	return &msg, &fund, nil
}

type setAutorenewalHandler struct {
	auth     x.Authenticator
	profiles orm.ModelBucket
}

var _ weave.Handler = (*setAutorenewalHandler)(nil)

func (h *setAutorenewalHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *setAutorenewalHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	profile := DepositorProfile{
		Metadata:            &weave.Metadata{Schema: 1},
		Depositor:           msg.Depositor,
		DepositsAutorenewal: msg.Enabled,
	}
	if _, err := h.profiles.Put(db, msg.Depositor, &profile); err != nil {
		return nil, errors.Wrap(err, "cannot store profile")
	}
	return &weave.DeliverResult{}, nil
}

func (h *setAutorenewalHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*SetAutorenewalMsg, error) {
	var msg SetAutorenewalMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Depositor) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "depositor signature is required")
	}
	return &msg, nil
}

// hasFunds returns no error if given wallet contains at least given amount
// of funds.
func hasFunds(db weave.KVStore, ctrl CashController, wallet weave.Address, funds coin.Coin) error {
	coins, err := ctrl.Balance(db, wallet)
	if err != nil {
		return errors.Wrap(err, "wallet balance")
	}
	for _, c := range coins {
		if c.Ticker != funds.Ticker {
			continue
		}
		if c.Compare(funds) >= 0 {
			return nil
		}
	}
	return errors.Wrap(errors.ErrAmount, "not enough funds on the wallet")
}
