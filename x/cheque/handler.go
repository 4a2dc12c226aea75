package cheque

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
)

const (
	createChequeCost  int64 = 300
	redeemChequeCost  int64 = 0
	reverseChequeCost int64 = 0
)

// CashController is the balance functionality required by this package. It
// is implemented by the x/cash extension.
type CashController interface {
	Balance(weave.KVStore, weave.Address) (coin.Coins, error)
	MoveCoins(weave.KVStore, weave.Address, weave.Address, coin.Coin) error
}

// TokenRegistry is the asset existence check required by this package. It
// is implemented by the x/token extension.
type TokenRegistry interface {
	Has(db weave.ReadOnlyKVStore, ticker string) error
}

// RegisterQuery will register this bucket as "/cheques".
func RegisterQuery(qr weave.QueryRouter) {
	NewBucket().Register("cheques", qr)
}

// RegisterRoutes will instantiate and register all handlers in this package.
func RegisterRoutes(r weave.Registry, auth x.Authenticator, ctrl CashController, tokens TokenRegistry, scheduler weave.Scheduler) {
	r = migration.SchemaMigratingRegistry("cheque", r)
	bucket := NewBucket()

	r.Handle(&CreateMsg{}, &createChequeHandler{
		auth:      auth,
		bucket:    bucket,
		ctrl:      ctrl,
		tokens:    tokens,
		scheduler: scheduler,
	})
	r.Handle(&RedeemMsg{}, &redeemChequeHandler{
		auth:      auth,
		bucket:    bucket,
		ctrl:      ctrl,
		scheduler: scheduler,
	})
	r.Handle(&ReverseMsg{}, &reverseChequeHandler{
		auth:      auth,
		bucket:    bucket,
		ctrl:      ctrl,
		scheduler: scheduler,
	})
}

// RegisterCronRoutes registers the handlers executed by the cron ticker and
// never directly by a transaction.
func RegisterCronRoutes(r weave.Registry, auth x.Authenticator, ctrl CashController) {
	r = migration.SchemaMigratingRegistry("cheque", r)
	r.Handle(&ExpireMsg{}, &expireChequeHandler{
		auth:   auth,
		bucket: NewBucket(),
		ctrl:   ctrl,
	})
}

type createChequeHandler struct {
	auth      x.Authenticator
	bucket    orm.ModelBucket
	ctrl      CashController
	tokens    TokenRegistry
	scheduler weave.Scheduler
}

var _ weave.Handler = (*createChequeHandler)(nil)

func (h *createChequeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: createChequeCost}, nil
}

func (h *createChequeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, total, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}

	key, err := chequeSeq.NextVal(db)
	if err != nil {
		return nil, errors.Wrap(err, "cannot acquire key")
	}

	// Escrow the whole payout on the cheque account.
	if err := h.ctrl.MoveCoins(db, msg.Drawer, Condition(key).Address(), *total); err != nil {
		return nil, errors.Wrap(err, "escrow funds")
	}

	taskID, err := h.scheduler.Schedule(db, msg.ExpiresAt.Time(), []weave.Condition{ExpireCondition(key)}, &ExpireMsg{
		Metadata: &weave.Metadata{Schema: 1},
		ChequeID: key,
	})
	if err != nil {
		return nil, errors.Wrap(err, "schedule expiration")
	}

	cheque := Cheque{
		Metadata:        &weave.Metadata{Schema: 1},
		Drawer:          msg.Drawer,
		Code:            msg.Code,
		AmountPayee:     msg.AmountPayee,
		AmountRemaining: *total,
		Payees:          make([]PayeeSlot, msg.PayeeCount),
		State:           ChequeState_OPEN,
		CreatedAt:       weave.AsUnixTime(now),
		ExpiresAt:       msg.ExpiresAt,
		Address:         Condition(key).Address(),
		ExpireTaskID:    taskID,
	}
	for i := range cheque.Payees {
		cheque.Payees[i].State = ChequeState_OPEN
	}
	if _, err := h.bucket.Put(db, key, &cheque); err != nil {
		return nil, errors.Wrap(err, "cannot store cheque")
	}
	return &weave.DeliverResult{Data: key}, nil
}

func (h *createChequeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*CreateMsg, *coin.Coin, error) {
	var msg CreateMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}

	if !h.auth.HasAddress(ctx, msg.Drawer) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "drawer signature is required")
	}

	if err := h.tokens.Has(db, msg.AmountPayee.Ticker); err != nil {
		return nil, nil, errors.Wrapf(err, "asset %q", msg.AmountPayee.Ticker)
	}

	var existing []*Cheque
	if _, err := h.bucket.ByIndex(db, "code", []byte(msg.Code), &existing); err != nil {
		return nil, nil, errors.Wrap(err, "code lookup")
	}
	if len(existing) != 0 {
		return nil, nil, errors.Wrapf(errors.ErrDuplicate, "cheque with code %q already exists", msg.Code)
	}

	if weave.IsExpired(ctx, msg.ExpiresAt) {
		return nil, nil, errors.Wrap(errors.ErrInput, "expiration in the past")
	}

	total, err := msg.AmountPayee.Multiply(int64(msg.PayeeCount))
	if err != nil {
		return nil, nil, errors.Wrap(err, "total payout")
	}
	if err := hasFunds(db, h.ctrl, msg.Drawer, total); err != nil {
		return nil, nil, err
	}

	return &msg, &total, nil
}

type redeemChequeHandler struct {
	auth      x.Authenticator
	bucket    orm.ModelBucket
	ctrl      CashController
	scheduler weave.Scheduler
}

var _ weave.Handler = (*redeemChequeHandler)(nil)

func (h *redeemChequeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: redeemChequeCost}, nil
}

func (h *redeemChequeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, key, cheque, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}

	// Slots are consumed in array order.
	idx := cheque.FirstOpenSlot()
	if idx == -1 {
		return nil, errors.Wrap(errors.ErrState, "no open payee slot")
	}
	cheque.Payees[idx] = PayeeSlot{
		Payee:  msg.Payee,
		UsedAt: weave.AsUnixTime(now),
		State:  ChequeState_USED,
	}

	if err := h.ctrl.MoveCoins(db, cheque.Address, msg.Payee, cheque.AmountPayee); err != nil {
		return nil, errors.Wrap(err, "payout")
	}
	remaining, err := cheque.AmountRemaining.Subtract(cheque.AmountPayee)
	if err != nil {
		return nil, errors.Wrap(err, "remaining escrow")
	}
	cheque.AmountRemaining = remaining

	if cheque.FirstOpenSlot() == -1 {
		cheque.State = ChequeState_USED
		cheque.UsedAt = weave.AsUnixTime(now)
		dropExpireTask(db, h.scheduler, cheque)
	}

	if _, err := h.bucket.Put(db, key, cheque); err != nil {
		return nil, errors.Wrap(err, "cannot store cheque")
	}
	return &weave.DeliverResult{Data: key}, nil
}

func (h *redeemChequeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*RedeemMsg, []byte, *Cheque, error) {
	var msg RedeemMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, nil, errors.Wrap(err, "load msg")
	}

	if !h.auth.HasAddress(ctx, msg.Payee) {
		return nil, nil, nil, errors.Wrap(errors.ErrUnauthorized, "payee signature is required")
	}

	key, cheque, err := chequeByCode(db, h.bucket, msg.Code)
	if err != nil {
		return nil, nil, nil, err
	}

	if cheque.State != ChequeState_OPEN {
		return nil, nil, nil, errors.Wrapf(errors.ErrState, "cheque code %q has been already used", msg.Code)
	}
	if msg.Amount.Ticker != cheque.AmountPayee.Ticker {
		return nil, nil, nil, errors.Wrap(errors.ErrCurrency, "cheque asset id is invalid")
	}
	if !msg.Amount.Equals(cheque.AmountPayee) {
		return nil, nil, nil, errors.Wrap(errors.ErrAmount, "cheque amount is invalid")
	}
	if cheque.HasPayee(msg.Payee) {
		return nil, nil, nil, errors.Wrapf(errors.ErrDuplicate,
			"cheque code %q has been already used for account %s", msg.Code, msg.Payee)
	}

	return &msg, key, cheque, nil
}

type reverseChequeHandler struct {
	auth      x.Authenticator
	bucket    orm.ModelBucket
	ctrl      CashController
	scheduler weave.Scheduler
}

var _ weave.Handler = (*reverseChequeHandler)(nil)

func (h *reverseChequeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: reverseChequeCost}, nil
}

func (h *reverseChequeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, cheque, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := returnToDrawer(ctx, db, h.ctrl, cheque); err != nil {
		return nil, err
	}
	dropExpireTask(db, h.scheduler, cheque)
	if _, err := h.bucket.Put(db, msg.ChequeID, cheque); err != nil {
		return nil, errors.Wrap(err, "cannot store cheque")
	}
	return &weave.DeliverResult{Data: msg.ChequeID}, nil
}

func (h *reverseChequeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*ReverseMsg, *Cheque, error) {
	var msg ReverseMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	var cheque Cheque
	if err := h.bucket.One(db, msg.ChequeID, &cheque); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load cheque from the store")
	}
	if !h.auth.HasAddress(ctx, cheque.Drawer) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "drawer signature is required")
	}
	if cheque.State != ChequeState_OPEN {
		return nil, nil, errors.Wrapf(errors.ErrState,
			"incorrect cheque state for reversing: %s", cheque.State)
	}
	return &msg, &cheque, nil
}

type expireChequeHandler struct {
	auth   x.Authenticator
	bucket orm.ModelBucket
	ctrl   CashController
}

var _ weave.Handler = (*expireChequeHandler)(nil)

func (h *expireChequeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *expireChequeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, cheque, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := returnToDrawer(ctx, db, h.ctrl, cheque); err != nil {
		return nil, err
	}
	cheque.ExpireTaskID = nil
	if _, err := h.bucket.Put(db, msg.ChequeID, cheque); err != nil {
		return nil, errors.Wrap(err, "cannot store cheque")
	}
	return &weave.DeliverResult{Data: msg.ChequeID}, nil
}

func (h *expireChequeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*ExpireMsg, *Cheque, error) {
	var msg ExpireMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, ExpireCondition(msg.ChequeID).Address()) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "only the scheduler can expire")
	}
	var cheque Cheque
	if err := h.bucket.One(db, msg.ChequeID, &cheque); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load cheque from the store")
	}
	if cheque.State != ChequeState_OPEN {
		return nil, nil, errors.Wrapf(errors.ErrState,
			"incorrect cheque state for expiration: %s", cheque.State)
	}
	return &msg, &cheque, nil
}

// returnToDrawer assigns all open slots to the drawer, moves the remaining
// escrow back and puts the cheque into its terminal reversed state.
func returnToDrawer(ctx weave.Context, db weave.KVStore, ctrl CashController, cheque *Cheque) error {
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return errors.Wrap(err, "block time")
	}
	for i := range cheque.Payees {
		if cheque.Payees[i].State != ChequeState_OPEN {
			continue
		}
		cheque.Payees[i] = PayeeSlot{
			Payee:  cheque.Drawer,
			UsedAt: weave.AsUnixTime(now),
			State:  ChequeState_USED,
		}
	}
	if cheque.AmountRemaining.IsPositive() {
		if err := ctrl.MoveCoins(db, cheque.Address, cheque.Drawer, cheque.AmountRemaining); err != nil {
			return errors.Wrap(err, "return escrow")
		}
	}
	cheque.AmountRemaining = coin.Coin{Ticker: cheque.AmountRemaining.Ticker}
	cheque.State = ChequeState_REVERSED
	cheque.UsedAt = weave.AsUnixTime(now)
	return nil
}

// dropExpireTask removes the scheduled expiration of a terminal cheque. A
// task that already fired is gone from the queue and that is fine. Any other
// task queue inconsistency must not block the payout.
func dropExpireTask(db weave.KVStore, scheduler weave.Scheduler, cheque *Cheque) {
	if len(cheque.ExpireTaskID) == 0 {
		return
	}
	_ = scheduler.Delete(db, cheque.ExpireTaskID)
	cheque.ExpireTaskID = nil
}

func chequeByCode(db weave.ReadOnlyKVStore, bucket orm.ModelBucket, code string) ([]byte, *Cheque, error) {
	var cheques []*Cheque
	keys, err := bucket.ByIndex(db, "code", []byte(code), &cheques)
	if err != nil {
		return nil, nil, errors.Wrap(err, "code lookup")
	}
	if len(cheques) == 0 {
		return nil, nil, errors.Wrapf(errors.ErrNotFound, "no cheque with code %q", code)
	}
	return keys[0], cheques[0], nil
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
	return errors.Wrap(errors.ErrAmount, "insufficient balance, unable to create receipt")
}
