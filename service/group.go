package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// GroupFanOut caps concurrent member intents per group update.
const GroupFanOut = 4

type Groups struct {
	*core
	seq      *Sequence
	orders   *Orders
	payments *Payments
	appURL   string
}

// GroupUpdate is the outcome of pricing a group cart.
type GroupUpdate struct {
	Group        model.GroupOrderResponse  `json:"group"`
	Transactions []model.MemberTransaction `json:"transactions"`
}

func (g *Groups) Create(ctx context.Context, actor model.Actor, input model.CreateGroupOrderInput) (*model.GroupOrderResponse, error) {
	if actor.UserID == 0 {
		return nil, apperror.Validation("creator is required")
	}
	if err := g.db.WithContext(ctx).First(&model.User{}, actor.UserID).Error; err != nil {
		return nil, notFound(err, "user %d", actor.UserID)
	}
	canteen, err := g.orders.openCanteen(ctx, input.CanteenID)
	if err != nil {
		return nil, err
	}
	seq, err := g.seq.Next(ctx, constants.COUNTER_GROUP_ORDER)
	if err != nil {
		return nil, err
	}

	code := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	group := model.GroupOrder{
		OrderNumber: formatNumber("GRP", seq),
		CreatorID:   actor.UserID,
		CanteenID:   canteen.ID,
		JoinCode:    code,
		JoinLink:    g.joinLink(canteen, code),
		Status:      model.GroupOpen,
		Members: []model.GroupOrderMember{
			{UserID: actor.UserID, Position: 1, JoinedAt: g.now()},
		},
	}
	if err := g.db.WithContext(ctx).Omit("Canteen").Create(&group).Error; err != nil {
		return nil, fmt.Errorf("create group order: %w", err)
	}
	g.logger(ctx).Info("group order created", "group_order_id", group.ID, "order_number", group.OrderNumber)

	return g.response(ctx, &groupAggregate{GroupOrder: group})
}

func (g *Groups) joinLink(canteen *model.Canteen, code string) string {
	s := canteen.Slug
	if s == "" {
		s = slug.Make(canteen.Name)
	}
	return fmt.Sprintf("%s/group-orders/join/%s/%s", strings.TrimRight(g.appURL, "/"), s, code)
}

// joinCode accepts a full join link or a bare code.
func joinCode(link string) string {
	link = strings.TrimSpace(link)
	if u, err := url.Parse(link); err == nil && strings.Contains(link, "/") {
		link = u.Path
	}
	link = strings.TrimRight(link, "/")
	if i := strings.LastIndex(link, "/"); i >= 0 {
		link = link[i+1:]
	}
	return link
}

func (g *Groups) Join(ctx context.Context, actor model.Actor, link string) (*model.GroupOrderResponse, error) {
	code := joinCode(link)
	if code == "" {
		return nil, apperror.Validation("join link is required")
	}
	var group model.GroupOrder
	if err := g.db.WithContext(ctx).Where("join_code = ?", code).First(&group).Error; err != nil {
		return nil, notFound(err, "group order for code %s", code)
	}

	unlock := g.locks.Lock(groupKey(group.ID))
	defer unlock()

	loaded, err := g.load(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	if loaded.isMember(actor.UserID) {
		return g.response(ctx, loaded)
	}
	if loaded.Status != model.GroupOpen {
		return nil, apperror.Policy("group order %s is no longer open", loaded.OrderNumber)
	}

	member := model.GroupOrderMember{
		GroupOrderID: loaded.ID,
		UserID:       actor.UserID,
		Position:     len(loaded.Members) + 1,
		JoinedAt:     g.now(),
	}
	if err := g.db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, fmt.Errorf("join group order: %w", err)
	}
	g.logger(ctx).Info("member joined group order", "group_order_id", loaded.ID, "user_id", actor.UserID)

	g.send(ctx, notify.Notification{
		UserID:       loaded.CreatorID,
		Kind:         notify.KindGroupOrder,
		Title:        "New group member",
		Message:      fmt.Sprintf("A member joined group order %s", loaded.OrderNumber),
		GroupOrderID: loaded.ID,
		OrderNumber:  loaded.OrderNumber,
	})
	loaded.Members = append(loaded.Members, member)
	return g.response(ctx, loaded)
}

type groupAggregate struct {
	model.GroupOrder
}

func (a *groupAggregate) isMember(userID uint) bool {
	for _, m := range a.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (a *groupAggregate) shareFor(userID uint) *model.GroupOrderShare {
	for i := range a.Shares {
		s := &a.Shares[i]
		if s.UserID == userID && s.Status != model.ShareCancelled {
			return s
		}
	}
	return nil
}

func (g *Groups) load(ctx context.Context, id uint) (*groupAggregate, error) {
	var group model.GroupOrder
	err := g.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Items").
		Preload("Shares").
		Preload("Canteen").
		First(&group, id).Error
	if err != nil {
		return nil, notFound(err, "group order %d", id)
	}
	return &groupAggregate{GroupOrder: group}, nil
}

func (g *Groups) Get(ctx context.Context, actor model.Actor, id uint) (*model.GroupOrderResponse, error) {
	group, err := g.load(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := group.isMember(actor.UserID) || actor.Role == constants.ROLE_ADMIN ||
		(actor.Role == constants.ROLE_VENDOR && group.Canteen.OwnerID == actor.UserID)
	if !allowed {
		return nil, apperror.Forbidden("not a member of group order %s", group.OrderNumber)
	}
	return g.response(ctx, group)
}

// Update prices the cart, splits it and opens one order and transaction per paying member.
func (g *Groups) Update(ctx context.Context, actor model.Actor, input model.UpdateGroupOrderInput) (*GroupUpdate, error) {
	if len(input.Items) == 0 {
		return nil, apperror.Validation("at least one item is required")
	}
	if input.PaymentMethod != model.MethodCOD && input.PaymentMethod != model.MethodUPI {
		return nil, apperror.Validation("unsupported payment method %q", input.PaymentMethod)
	}
	if input.SplitType != model.SplitEqual && input.SplitType != model.SplitCustom {
		return nil, apperror.Validation("unsupported split type %q", input.SplitType)
	}
	for _, li := range input.Items {
		if li.ItemID == 0 || li.Quantity < 1 {
			return nil, apperror.Validation("every item needs an id and a quantity of at least 1")
		}
	}

	unlock := g.locks.Lock(groupKey(input.GroupOrderID))
	defer unlock()

	group, err := g.load(ctx, input.GroupOrderID)
	if err != nil {
		return nil, err
	}
	if group.CreatorID != actor.UserID {
		return nil, apperror.Forbidden("only the creator can change group order %s", group.OrderNumber)
	}
	if group.Status != model.GroupOpen && group.Status != model.GroupPaymentPending {
		return nil, apperror.Policy("group order %s is %s", group.OrderNumber, group.Status)
	}
	for _, s := range group.Shares {
		if s.Status == model.SharePaid {
			return nil, apperror.Policy("group order %s already has paid shares", group.OrderNumber)
		}
	}
	if input.PickupTime.Before(g.now().Add(MinPickupLead)) {
		return nil, apperror.Policy("pickup time must be at least %d minutes from now", int(MinPickupLead.Minutes()))
	}
	if !group.Canteen.IsOpen {
		return nil, apperror.Policy("canteen %s is closed", group.Canteen.Name)
	}

	lines, total, err := g.orders.resolveLines(ctx, group.CanteenID, input.Items)
	if err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, apperror.Validation("group order total must be positive")
	}
	amounts, err := splitShares(group, total, input)
	if err != nil {
		return nil, err
	}

	items := make([]model.GroupOrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.GroupOrderItem{
			GroupOrderID: group.ID,
			ItemID:       *l.ItemID,
			Name:         l.Name,
			Price:        l.Price,
			Quantity:     l.Quantity,
			Subtotal:     l.Subtotal,
		})
	}
	pickup := input.PickupTime
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_order_id = ?", group.ID).Delete(&model.GroupOrderItem{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		return tx.Model(&model.GroupOrder{}).Where("id = ?", group.ID).Updates(map[string]any{
			"total_amount":   toFloat(total),
			"split_type":     input.SplitType,
			"payer_id":       input.PayerID,
			"payment_method": input.PaymentMethod,
			"pickup_time":    pickup,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update group cart: %w", err)
	}
	group.TotalAmount = toFloat(total)
	group.PaymentMethod = input.PaymentMethod
	group.PickupTime = &pickup
	group.Items = items

	if err := g.dropStaleShares(ctx, group, amounts); err != nil {
		return nil, err
	}

	members := group.Members
	results := make([]*model.MemberTransaction, len(members))
	var eg errgroup.Group
	eg.SetLimit(GroupFanOut)
	for i, m := range members {
		amount := amounts[m.UserID]
		if !amount.IsPositive() {
			continue
		}
		i, m := i, m
		existing := group.shareFor(m.UserID)
		eg.Go(func() error {
			mt, err := g.openShare(ctx, group, m.UserID, amount, existing)
			if err != nil {
				g.logger(ctx).Warn("member share skipped", "group_order_id", group.ID, "user_id", m.UserID, "error", err)
				return nil
			}
			results[i] = mt
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]model.MemberTransaction, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) > 0 {
		if err := g.db.WithContext(ctx).Model(&model.GroupOrder{}).
			Where("id = ? AND status = ?", group.ID, model.GroupOpen).
			Update("status", model.GroupPaymentPending).Error; err != nil {
			return nil, fmt.Errorf("mark group payment pending: %w", err)
		}
	}
	for _, mt := range out {
		g.send(ctx, notify.Notification{
			UserID:       mt.UserID,
			Kind:         notify.KindGroupOrder,
			Title:        "Your group order share",
			Message:      fmt.Sprintf("Your share of group order %s is %.2f", group.OrderNumber, mt.Amount),
			OrderID:      mt.OrderID,
			OrderNumber:  mt.OrderNumber,
			GroupOrderID: group.ID,
			Status:       string(mt.Status),
		})
	}

	reloaded, err := g.load(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	resp, err := g.response(ctx, reloaded)
	if err != nil {
		return nil, err
	}
	return &GroupUpdate{Group: *resp, Transactions: out}, nil
}

// splitShares maps every member to the amount they owe.
func splitShares(group *groupAggregate, total decimal.Decimal, input model.UpdateGroupOrderInput) (map[uint]decimal.Decimal, error) {
	amounts := make(map[uint]decimal.Decimal, len(group.Members))

	if input.PayerID != nil {
		if !group.isMember(*input.PayerID) {
			return nil, apperror.Policy("payer %d is not a member of group order %s", *input.PayerID, group.OrderNumber)
		}
		amounts[*input.PayerID] = total
		return amounts, nil
	}

	if input.SplitType == model.SplitEqual {
		parts := SplitEqual(total, len(group.Members))
		for i, m := range group.Members {
			amounts[m.UserID] = parts[i]
		}
		return amounts, nil
	}

	sum := decimal.Zero
	for _, a := range input.Amounts {
		if !group.isMember(a.UserID) {
			return nil, apperror.Policy("user %d is not a member of group order %s", a.UserID, group.OrderNumber)
		}
		if _, dup := amounts[a.UserID]; dup {
			return nil, apperror.Validation("duplicate amount for user %d", a.UserID)
		}
		if a.Amount < 0 {
			return nil, apperror.Validation("amount for user %d is negative", a.UserID)
		}
		d := toDecimal(a.Amount)
		amounts[a.UserID] = d
		sum = sum.Add(d)
	}
	if len(amounts) != len(group.Members) {
		return nil, apperror.Policy("custom split needs an amount for every member")
	}
	if !withinTolerance(sum, total) {
		return nil, apperror.Policy("custom split adds up to %s, total is %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return amounts, nil
}

// dropStaleShares cancels unpaid member orders whose amount or payment method no longer match.
// The caller holds the group lock; member order locks are taken one at a time.
func (g *Groups) dropStaleShares(ctx context.Context, group *groupAggregate, amounts map[uint]decimal.Decimal) error {
	for i := range group.Shares {
		share := &group.Shares[i]
		if share.Status == model.ShareCancelled {
			continue
		}
		keep := share.OrderID != nil && share.Status != model.ShareFailed &&
			toDecimal(share.Amount).Equal(amounts[share.UserID])
		if keep {
			order, err := g.orders.load(ctx, *share.OrderID)
			if err != nil {
				return err
			}
			keep = order.PaymentMethod == group.PaymentMethod && !order.Status.IsTerminal()
		}
		if keep {
			if err := g.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", *share.OrderID).
				Update("pickup_time", group.PickupTime).Error; err != nil {
				return fmt.Errorf("move member pickup: %w", err)
			}
			continue
		}

		if share.OrderID != nil {
			if err := g.cancelMemberOrder(ctx, *share.OrderID); err != nil {
				return err
			}
		}
		if err := g.db.WithContext(ctx).Model(&model.GroupOrderShare{}).Where("id = ?", share.ID).
			Update("status", model.ShareCancelled).Error; err != nil {
			return fmt.Errorf("cancel share: %w", err)
		}
		share.Status = model.ShareCancelled
		g.logger(ctx).Info("stale member share cancelled", "group_order_id", group.ID, "user_id", share.UserID)
	}
	return nil
}

func (g *Groups) cancelMemberOrder(ctx context.Context, orderID uint) error {
	unlock := g.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := g.orders.load(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}
	if order.Transaction != nil && order.Transaction.Status == model.TxnPaid {
		return apperror.Policy("member order %s is already paid", order.OrderNumber)
	}
	_, _, err = g.orders.transition(ctx, order, model.OrderCancelled, "group", false)
	return err
}

// openShare makes sure member userID has an order, a transaction and, for UPI, a gateway order.
// The member order lock is held while its intent is opened.
func (g *Groups) openShare(ctx context.Context, group *groupAggregate, userID uint, amount decimal.Decimal, existing *model.GroupOrderShare) (*model.MemberTransaction, error) {
	if existing == nil || existing.OrderID == nil {
		var err error
		if _, existing, err = g.createShareOrder(ctx, group, userID, amount); err != nil {
			return nil, err
		}
	}

	unlock := g.locks.Lock(orderKey(*existing.OrderID))
	defer unlock()
	order, err := g.orders.load(ctx, *existing.OrderID)
	if err != nil {
		return nil, err
	}

	txn := order.Transaction
	if txn == nil {
		return nil, fmt.Errorf("member order %s has no transaction", order.OrderNumber)
	}
	mt := &model.MemberTransaction{
		UserID:        userID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TransactionID: txn.ID,
		Amount:        txn.Amount,
		Status:        txn.Status,
	}
	if group.PaymentMethod == model.MethodCOD || txn.GatewayOrderID != nil {
		if txn.GatewayOrderID != nil {
			mt.GatewayOrderID = *txn.GatewayOrderID
		}
		return mt, nil
	}

	gwOrderID, err := g.payments.openIntent(ctx, txn, map[string]string{
		"group_order_id": fmt.Sprint(group.ID),
		"user_id":        fmt.Sprint(userID),
		"order_number":   order.OrderNumber,
	})
	shareStatus := model.SharePending
	if err != nil {
		shareStatus = model.ShareIntentFailed
	}
	if uerr := g.db.WithContext(ctx).Model(&model.GroupOrderShare{}).Where("id = ?", existing.ID).
		Update("status", shareStatus).Error; uerr != nil {
		g.logger(ctx).Error("update share status", "share_id", existing.ID, "error", uerr)
	}
	if err != nil {
		return nil, err
	}
	mt.GatewayOrderID = gwOrderID
	return mt, nil
}

func (g *Groups) createShareOrder(ctx context.Context, group *groupAggregate, userID uint, amount decimal.Decimal) (*model.Order, *model.GroupOrderShare, error) {
	number, err := g.orders.nextNumber(ctx)
	if err != nil {
		return nil, nil, err
	}
	groupID := group.ID
	share := model.GroupOrderShare{
		GroupOrderID: group.ID,
		UserID:       userID,
		Amount:       toFloat(amount),
		Status:       model.SharePending,
	}
	var order *model.Order
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = g.orders.insert(tx, newOrder{
			Number:    number,
			StudentID: userID,
			CanteenID: group.CanteenID,
			Lines: []model.OrderItem{{
				Name:     fmt.Sprintf("Share of group order %s", group.OrderNumber),
				Price:    toFloat(amount),
				Quantity: 1,
				Subtotal: toFloat(amount),
			}},
			PickupTime:   *group.PickupTime,
			Method:       group.PaymentMethod,
			GroupOrderID: &groupID,
			Status:       model.OrderPaymentPending,
		})
		if err != nil {
			return err
		}
		txn := model.Transaction{
			OrderID:  order.ID,
			UserID:   userID,
			Provider: string(model.MethodCOD),
			Receipt:  fmt.Sprintf("grp%d-u%d-%s", group.ID, userID, strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
			Amount:   order.Total,
			Currency: "INR",
			Method:   group.PaymentMethod,
			Status:   model.TxnCreated,
		}
		if group.PaymentMethod == model.MethodUPI {
			txn.Provider = g.gw.Provider()
		}
		if err := tx.Create(&txn).Error; err != nil {
			return fmt.Errorf("create member transaction: %w", err)
		}
		order.Transaction = &txn
		share.OrderID = &order.ID
		share.TransactionID = &txn.ID
		return tx.Create(&share).Error
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create member order: %w", err)
	}
	return order, &share, nil
}

// UpdateOrderStatus moves the whole group and broadcasts the status to every member order.
func (g *Groups) UpdateOrderStatus(ctx context.Context, actor model.Actor, input model.UpdateGroupStatusInput) (*model.GroupOrderResponse, error) {
	if !validTarget(input.Status) {
		return nil, apperror.Validation("invalid status %q", input.Status)
	}
	target := model.GroupStatus(input.Status)

	unlock := g.locks.Lock(groupKey(input.GroupOrderID))
	defer unlock()

	group, err := g.load(ctx, input.GroupOrderID)
	if err != nil {
		return nil, err
	}
	staff := actor.Role == constants.ROLE_ADMIN ||
		(actor.Role == constants.ROLE_VENDOR && group.Canteen.OwnerID == actor.UserID)
	creatorCancel := group.PaymentMethod == model.MethodUPI && target == model.GroupCancelled && group.CreatorID == actor.UserID
	if !staff && !creatorCancel {
		return nil, apperror.Forbidden("not allowed to change group order %s", group.OrderNumber)
	}

	observed := group.Status
	if observed == target {
		return g.response(ctx, group)
	}
	if observed == model.GroupCancelled {
		return nil, apperror.Policy("group order %s is cancelled", group.OrderNumber)
	}
	if observed.IsTerminal() {
		return nil, apperror.Policy("group order %s is already %s", group.OrderNumber, observed)
	}
	if target != model.GroupCancelled {
		confirmed := observed == model.GroupPlaced || observed == model.GroupPreparing || observed == model.GroupReady ||
			(observed == model.GroupPaymentPending && group.PaymentMethod == model.MethodCOD)
		if !confirmed {
			return nil, apperror.Policy("group order %s is not confirmed yet", group.OrderNumber)
		}
		if groupRank(target) <= groupRank(observed) {
			return nil, apperror.Policy("group order %s cannot move from %s to %s", group.OrderNumber, observed, target)
		}
	}

	res := g.db.WithContext(ctx).Model(&model.GroupOrder{}).
		Where("id = ? AND status = ?", group.ID, observed).
		Update("status", target)
	if res.Error != nil {
		return nil, fmt.Errorf("update group status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.Conflict("group order %s changed concurrently", group.OrderNumber)
	}

	var errs []error
	for _, share := range group.Shares {
		if share.OrderID == nil || share.Status == model.ShareCancelled {
			continue
		}
		if err := g.broadcast(ctx, *share.OrderID, input.Status, actor.Role); err != nil {
			errs = append(errs, err)
			continue
		}
		next := share.Status
		switch {
		case target == model.GroupCompleted:
			next = model.SharePaid
		case target == model.GroupCancelled && share.Status != model.SharePaid:
			next = model.ShareCancelled
		}
		if next != share.Status {
			if err := g.db.WithContext(ctx).Model(&model.GroupOrderShare{}).Where("id = ?", share.ID).
				Update("status", next).Error; err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		g.logger(ctx).Error("group status broadcast incomplete", "group_order_id", group.ID, "error", err)
	}
	g.logger(ctx).Info("group order status changed", "group_order_id", group.ID, "from", observed, "to", target)

	for _, m := range group.Members {
		g.send(ctx, notify.Notification{
			UserID:       m.UserID,
			Kind:         notify.KindGroupOrder,
			Title:        "Group order update",
			Message:      fmt.Sprintf("Group order %s is now %s", group.OrderNumber, target),
			GroupOrderID: group.ID,
			OrderNumber:  group.OrderNumber,
			Status:       string(target),
		})
	}

	reloaded, err := g.load(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return g.response(ctx, reloaded)
}

func groupRank(s model.GroupStatus) int {
	return statusRank[model.OrderStatus(s)]
}

// broadcast applies status to one member order. Lock order is group then order.
func (g *Groups) broadcast(ctx context.Context, orderID uint, status model.OrderStatus, by string) error {
	unlock := g.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := g.orders.load(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() || order.Status == status {
		return nil
	}
	if status != model.OrderCancelled && order.Status.IsCart() && order.PaymentMethod != model.MethodCOD {
		return nil
	}
	updated, changed, err := g.orders.transition(ctx, order, status, by, false)
	if err == nil && changed {
		g.orders.notifyStatus(ctx, updated)
	}
	return err
}

// PaymentChanged keeps the share of a group member order in step with its payment.
func (g *Groups) PaymentChanged(ctx context.Context, order model.Order) {
	if order.GroupOrderID == nil {
		return
	}
	if err := g.SyncShare(ctx, order.ID); err != nil {
		g.logger(ctx).Error("sync group share", "order_id", order.ID, "group_order_id", *order.GroupOrderID, "error", err)
	}
}

// SyncShare copies a member payment onto its share and places the group once every share is paid.
func (g *Groups) SyncShare(ctx context.Context, orderID uint) error {
	var share model.GroupOrderShare
	if err := g.db.WithContext(ctx).Where("order_id = ?", orderID).First(&share).Error; err != nil {
		return notFound(err, "share for order %d", orderID)
	}

	unlock := g.locks.Lock(groupKey(share.GroupOrderID))
	defer unlock()

	order, err := g.orders.load(ctx, orderID)
	if err != nil {
		return err
	}
	next := share.Status
	switch order.PaymentStatus {
	case model.PaymentPaid:
		next = model.SharePaid
	case model.PaymentFailed:
		next = model.ShareFailed
	}
	if next != share.Status {
		if err := g.db.WithContext(ctx).Model(&model.GroupOrderShare{}).Where("id = ?", share.ID).
			Update("status", next).Error; err != nil {
			return fmt.Errorf("update share: %w", err)
		}
	}

	group, err := g.load(ctx, share.GroupOrderID)
	if err != nil {
		return err
	}
	if group.Status != model.GroupOpen && group.Status != model.GroupPaymentPending {
		return nil
	}
	active := 0
	for _, s := range group.Shares {
		if s.Status == model.ShareCancelled {
			continue
		}
		active++
		if s.Status != model.SharePaid {
			return nil
		}
	}
	if active == 0 {
		return nil
	}

	res := g.db.WithContext(ctx).Model(&model.GroupOrder{}).
		Where("id = ? AND status = ?", group.ID, group.Status).
		Update("status", model.GroupPlaced)
	if res.Error != nil {
		return fmt.Errorf("place group order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	g.logger(ctx).Info("group order fully paid", "group_order_id", group.ID)

	recipients := []uint{group.Canteen.OwnerID}
	for _, m := range group.Members {
		recipients = append(recipients, m.UserID)
	}
	for _, uid := range recipients {
		g.send(ctx, notify.Notification{
			UserID:       uid,
			Kind:         notify.KindGroupOrder,
			Title:        "Group order placed",
			Message:      fmt.Sprintf("Group order %s is fully paid and placed", group.OrderNumber),
			GroupOrderID: group.ID,
			OrderNumber:  group.OrderNumber,
			Status:       string(model.GroupPlaced),
		})
	}
	return nil
}

var qrCache sync.Map

func (g *Groups) response(ctx context.Context, group *groupAggregate) (*model.GroupOrderResponse, error) {
	var resp model.GroupOrderResponse
	if err := copier.Copy(&resp, &group.GroupOrder); err != nil {
		return nil, fmt.Errorf("map group order: %w", err)
	}
	sort.Slice(resp.Members, func(i, j int) bool { return resp.Members[i].Position < resp.Members[j].Position })

	if v, ok := qrCache.Load(group.JoinLink); ok {
		resp.QRCode = v.(string)
		return &resp, nil
	}
	qr, err := utils.QRCodeDataURI(group.JoinLink, 256)
	if err != nil {
		g.logger(ctx).Warn("generate join qr", "group_order_id", group.ID, "error", err)
		return &resp, nil
	}
	resp.QRCode = qr
	qrCache.Store(group.JoinLink, resp.QRCode)
	return &resp, nil
}
