package token

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
)

const registerTokenCost = 100

func RegisterQuery(qr weave.QueryRouter) {
	NewTokenInfoBucket().Register("tokens", qr)
}

// RegisterRoutes will instantiate and register all handlers in this package.
// Only the issuer is allowed to register new tokens. A nil issuer means
// anyone can register.
func RegisterRoutes(r weave.Registry, auth x.Authenticator, issuer weave.Address) {
	r = migration.SchemaMigratingRegistry("token", r)

	r.Handle(&RegisterTokenMsg{}, &registerTokenHandler{
		auth:   auth,
		issuer: issuer,
		bucket: NewTokenInfoBucket(),
	})
}

type registerTokenHandler struct {
	auth   x.Authenticator
	bucket orm.ModelBucket
	issuer weave.Address
}

func (h *registerTokenHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: registerTokenCost}, nil
}

func (h *registerTokenHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	info := TokenInfo{
		Metadata:  &weave.Metadata{Schema: 1},
		Name:      msg.Name,
		MaxSupply: msg.MaxSupply,
	}
	info.Issued.Ticker = msg.Ticker
	if _, err := h.bucket.Put(db, []byte(msg.Ticker), &info); err != nil {
		return nil, errors.Wrap(err, "store token")
	}
	return &weave.DeliverResult{Data: []byte(msg.Ticker)}, nil
}

func (h *registerTokenHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*RegisterTokenMsg, error) {
	var msg RegisterTokenMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}

	if h.issuer != nil && !h.auth.HasAddress(ctx, h.issuer) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "tokens are registered only by %s", h.issuer)
	}

	// A token can be registered only once and is never updated.
	switch err := h.bucket.Has(db, []byte(msg.Ticker)); {
	case err == nil:
		return nil, errors.Wrapf(errors.ErrDuplicate, "ticker %s", msg.Ticker)
	case errors.ErrNotFound.Is(err):
		// All good.
	default:
		return nil, errors.Wrap(err, "ticker lookup")
	}

	return &msg, nil
}
