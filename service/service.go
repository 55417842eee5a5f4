package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/logging"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"gorm.io/gorm"
)

type Options struct {
	DB       *gorm.DB
	Gateway  gateway.Gateway
	Schemes  *gateway.Schemes
	Notifier notify.Notifier
	Log      *slog.Logger
	AppURL   string
	Now      func() time.Time
}

// Engine bundles the reconciliation components sharing one store, lock table and notifier.
type Engine struct {
	Sequence  *Sequence
	Penalties *Penalties
	Orders    *Orders
	Payments  *Payments
	Webhooks  *Webhooks
	Groups    *Groups
	Sweeper   *Sweeper
}

type core struct {
	db       *gorm.DB
	gw       gateway.Gateway
	notifier notify.Notifier
	log      *slog.Logger
	locks    *KeyedMutex
	now      func() time.Time
}

func New(opts Options) *Engine {
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{Log: opts.Log}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &core{
		db:       opts.DB,
		gw:       opts.Gateway,
		notifier: opts.Notifier,
		log:      opts.Log,
		locks:    NewKeyedMutex(),
		now:      opts.Now,
	}

	e := &Engine{
		Sequence:  NewSequence(opts.DB),
		Penalties: NewPenalties(opts.DB),
	}
	e.Orders = &Orders{core: c, seq: e.Sequence, penalties: e.Penalties}
	e.Payments = &Payments{core: c, orders: e.Orders}
	e.Webhooks = &Webhooks{core: c, payments: e.Payments, schemes: opts.Schemes}
	e.Groups = &Groups{core: c, seq: e.Sequence, orders: e.Orders, payments: e.Payments, appURL: opts.AppURL}
	e.Sweeper = &Sweeper{core: c, payments: e.Payments, webhooks: e.Webhooks}

	e.Payments.Observe(e.Groups)
	return e
}

func orderKey(id uint) string { return fmt.Sprintf("order:%d", id) }

func groupKey(id uint) string { return fmt.Sprintf("group:%d", id) }

func (c *core) logger(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return c.log
}

// send delivers a notification without letting delivery failures leak into the caller.
func (c *core) send(ctx context.Context, n notify.Notification) {
	if n.UserID == 0 {
		return
	}
	if n.At.IsZero() {
		n.At = c.now()
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		c.logger(ctx).Warn("notify failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}
