package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MinPickupLead is how far ahead of now a pickup time has to be.
const MinPickupLead = 10 * time.Minute

type Orders struct {
	*core
	seq       *Sequence
	penalties *Penalties
}

var statusRank = map[model.OrderStatus]int{
	model.OrderPending:        0,
	model.OrderPaymentPending: 1,
	model.OrderPlaced:         2,
	model.OrderPreparing:      3,
	model.OrderReady:          4,
	model.OrderCompleted:      5,
}

func validTarget(s model.OrderStatus) bool {
	switch s {
	case model.OrderPreparing, model.OrderReady, model.OrderCompleted, model.OrderCancelled:
		return true
	}
	return false
}

// newOrder carries everything needed to persist an order and its line snapshot.
type newOrder struct {
	Number       string
	StudentID    uint
	CanteenID    uint
	Lines        []model.OrderItem
	PickupTime   time.Time
	Method       model.PaymentMethod
	DeviceID     string
	GroupOrderID *uint
	Status       model.OrderStatus
	ApplyPenalty bool
}

func (o *Orders) Create(ctx context.Context, actor model.Actor, input model.CreateOrderInput) (*model.Order, error) {
	switch {
	case actor.UserID == 0:
		return nil, apperror.Validation("student is required")
	case input.CanteenID == 0:
		return nil, apperror.Validation("canteen is required")
	case len(input.Items) == 0:
		return nil, apperror.Validation("at least one item is required")
	case input.PickupTime.IsZero():
		return nil, apperror.Validation("pickup time is required")
	case actor.DeviceID == "":
		return nil, apperror.Validation("device id is required")
	}
	if input.PaymentMethod != model.MethodCOD && input.PaymentMethod != model.MethodUPI {
		return nil, apperror.Validation("unsupported payment method %q", input.PaymentMethod)
	}
	for _, li := range input.Items {
		if li.ItemID == 0 || li.Quantity < 1 {
			return nil, apperror.Validation("every item needs an id and a quantity of at least 1")
		}
	}
	if input.PickupTime.Before(o.now().Add(MinPickupLead)) {
		return nil, apperror.Policy("pickup time must be at least %d minutes from now", int(MinPickupLead.Minutes()))
	}

	db := o.db.WithContext(ctx)
	if err := db.First(&model.User{}, actor.UserID).Error; err != nil {
		return nil, notFound(err, "student %d", actor.UserID)
	}
	canteen, err := o.openCanteen(ctx, input.CanteenID)
	if err != nil {
		return nil, err
	}
	lines, _, err := o.resolveLines(ctx, canteen.ID, input.Items)
	if err != nil {
		return nil, err
	}

	status := model.OrderPending
	if input.PaymentMethod == model.MethodCOD {
		status = model.OrderPlaced
	}
	number, err := o.nextNumber(ctx)
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = o.insert(tx, newOrder{
			Number:       number,
			StudentID:    actor.UserID,
			CanteenID:    canteen.ID,
			Lines:        lines,
			PickupTime:   input.PickupTime,
			Method:       input.PaymentMethod,
			DeviceID:     actor.DeviceID,
			Status:       status,
			ApplyPenalty: true,
		})
		if err != nil {
			return err
		}
		if input.PaymentMethod != model.MethodCOD {
			return nil
		}
		txn := model.Transaction{
			OrderID:  order.ID,
			UserID:   order.StudentID,
			Provider: string(model.MethodCOD),
			Receipt:  order.OrderNumber,
			Amount:   order.Total,
			Currency: "INR",
			Method:   model.MethodCOD,
			Status:   model.TxnCreated,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return fmt.Errorf("create cod transaction: %w", err)
		}
		order.Transaction = &txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger(ctx).Info("order created",
		"order_id", order.ID, "order_number", order.OrderNumber, "method", order.PaymentMethod, "total", order.Total)

	if order.PaymentMethod == model.MethodCOD {
		o.send(ctx, notify.Notification{
			UserID:      canteen.OwnerID,
			Kind:        notify.KindNewOrder,
			Title:       "New order",
			Message:     fmt.Sprintf("Order %s was placed (cash on delivery)", order.OrderNumber),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      string(order.Status),
		})
	}
	return order, nil
}

// nextNumber has to run outside any open transaction.
func (o *Orders) nextNumber(ctx context.Context) (string, error) {
	seq, err := o.seq.Next(ctx, constants.COUNTER_ORDER)
	if err != nil {
		return "", err
	}
	return formatNumber("ORD", seq), nil
}

// insert persists the order inside tx.
// Outstanding penalties are reserved by the new order when ApplyPenalty is set.
func (o *Orders) insert(tx *gorm.DB, in newOrder) (*model.Order, error) {
	itemsTotal := decimal.Zero
	for _, l := range in.Lines {
		itemsTotal = itemsTotal.Add(toDecimal(l.Subtotal))
	}

	order := model.Order{
		OrderNumber:   in.Number,
		StudentID:     in.StudentID,
		CanteenID:     in.CanteenID,
		Items:         in.Lines,
		Total:         toFloat(itemsTotal),
		Status:        in.Status,
		PaymentStatus: model.PaymentPending,
		PaymentMethod: in.Method,
		PickupTime:    in.PickupTime,
		DeviceID:      in.DeviceID,
		GroupOrderID:  in.GroupOrderID,
	}
	if err := tx.Omit("Student", "Canteen", "Transaction").Create(&order).Error; err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if !in.ApplyPenalty {
		return &order, nil
	}
	penalty, err := o.penalties.reserve(tx, in.DeviceID, in.CanteenID, order.ID)
	if err != nil {
		return nil, err
	}
	if penalty.IsZero() {
		return &order, nil
	}
	order.PenaltyAmount = toFloat(penalty)
	order.Total = toFloat(itemsTotal.Add(penalty))
	if err := tx.Model(&model.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"penalty_amount": order.PenaltyAmount,
		"total":          order.Total,
	}).Error; err != nil {
		return nil, fmt.Errorf("apply penalty: %w", err)
	}
	return &order, nil
}

func (o *Orders) openCanteen(ctx context.Context, canteenID uint) (*model.Canteen, error) {
	var canteen model.Canteen
	if err := o.db.WithContext(ctx).First(&canteen, canteenID).Error; err != nil {
		return nil, notFound(err, "canteen %d", canteenID)
	}
	if !canteen.IsOpen {
		return nil, apperror.Policy("canteen %s is closed", canteen.Name)
	}
	return &canteen, nil
}

// resolveLines snapshots the current name and price of every requested item.
func (o *Orders) resolveLines(ctx context.Context, canteenID uint, in []model.LineItemInput) ([]model.OrderItem, decimal.Decimal, error) {
	ids := make([]uint, 0, len(in))
	for _, li := range in {
		ids = append(ids, li.ItemID)
	}
	var items []model.Item
	if err := o.db.WithContext(ctx).Where("canteen_id = ? AND id IN ?", canteenID, ids).Find(&items).Error; err != nil {
		return nil, decimal.Zero, fmt.Errorf("resolve items: %w", err)
	}
	byID := make(map[uint]model.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	total := decimal.Zero
	lines := make([]model.OrderItem, 0, len(in))
	for _, li := range in {
		it, ok := byID[li.ItemID]
		if !ok {
			return nil, decimal.Zero, apperror.NotFound("item %d in canteen %d", li.ItemID, canteenID)
		}
		if !it.IsAvailable {
			return nil, decimal.Zero, apperror.Policy("item %s is not available", it.Name)
		}
		price := toDecimal(it.Price)
		subtotal := price.Mul(decimal.NewFromInt(int64(li.Quantity)))
		total = total.Add(subtotal)
		itemID := it.ID
		lines = append(lines, model.OrderItem{
			ItemID:   &itemID,
			Name:     it.Name,
			Price:    toFloat(price),
			Quantity: li.Quantity,
			Subtotal: toFloat(subtotal),
		})
	}
	return lines, total, nil
}

// UpdateStatus moves an order forward or cancels it on behalf of actor.
func (o *Orders) UpdateStatus(ctx context.Context, actor model.Actor, orderID uint, target model.OrderStatus) (*model.Order, error) {
	if !validTarget(target) {
		return nil, apperror.Validation("invalid status %q", target)
	}

	unlock := o.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := o.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrderStatus(actor, order, target); err != nil {
		return nil, err
	}

	accrue := actor.Role == constants.ROLE_STUDENT && order.GroupOrderID == nil &&
		(order.Status == model.OrderPreparing || order.Status == model.OrderReady)
	updated, changed, err := o.transition(ctx, order, target, actor.Role, accrue)
	if err != nil {
		return nil, err
	}
	if changed {
		o.notifyStatus(ctx, updated)
	}
	return updated, nil
}

func authorizeOrderStatus(actor model.Actor, order *model.Order, target model.OrderStatus) error {
	switch actor.Role {
	case constants.ROLE_ADMIN:
		return nil
	case constants.ROLE_VENDOR:
		if order.Canteen.OwnerID == actor.UserID {
			return nil
		}
		return apperror.Forbidden("order %s belongs to another canteen", order.OrderNumber)
	case constants.ROLE_STUDENT:
		if order.StudentID != actor.UserID {
			return apperror.Forbidden("order %s belongs to another student", order.OrderNumber)
		}
		if target != model.OrderCancelled {
			return apperror.Forbidden("students can only cancel their orders")
		}
		return nil
	}
	return apperror.Forbidden("role %q cannot change orders", actor.Role)
}

// transition applies target to order with a conditional update on the observed status.
// The caller holds the order lock. changed is false when the order already had target.
func (o *Orders) transition(ctx context.Context, order *model.Order, target model.OrderStatus, by string, accrue bool) (*model.Order, bool, error) {
	observed := order.Status
	if observed == target {
		return order, false, nil
	}
	if observed == model.OrderCancelled {
		return nil, false, apperror.Policy("order %s is cancelled", order.OrderNumber)
	}
	if observed.IsTerminal() {
		return nil, false, apperror.Policy("order %s is already %s", order.OrderNumber, observed)
	}
	if target != model.OrderCancelled {
		confirmed := observed == model.OrderPlaced || observed == model.OrderPreparing || observed == model.OrderReady ||
			(observed == model.OrderPaymentPending && order.PaymentMethod == model.MethodCOD)
		if !confirmed {
			return nil, false, apperror.Policy("order %s is not confirmed yet", order.OrderNumber)
		}
		if statusRank[target] <= statusRank[observed] {
			return nil, false, apperror.Policy("order %s cannot move from %s to %s", order.OrderNumber, observed, target)
		}
	}

	now := o.now()
	fields := map[string]any{"status": target}
	switch target {
	case model.OrderCancelled:
		fields["cancelled_by"] = by
		fields["cancelled_at"] = now
	case model.OrderCompleted:
		fields["completed_at"] = now
		fields["payment_status"] = model.PaymentPaid
	}

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).Where("id = ? AND status = ?", order.ID, observed).Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("update order status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errStale
		}

		switch target {
		case model.OrderCancelled:
			if err := o.penalties.release(tx, order.ID); err != nil {
				return err
			}
			if accrue {
				if _, err := o.penalties.accrue(tx, *order, fmt.Sprintf("late cancellation at %s", observed)); err != nil {
					return err
				}
			}
			if err := tx.Model(&model.Transaction{}).
				Where("order_id = ? AND status IN ?", order.ID, openTxnStatuses).
				Update("status", model.TxnCancelled).Error; err != nil {
				return fmt.Errorf("cancel transaction: %w", err)
			}
		case model.OrderCompleted:
			if err := o.penalties.settle(tx, order.ID, now); err != nil {
				return err
			}
			if err := tx.Model(&model.Transaction{}).
				Where("order_id = ? AND status IN ?", order.ID, openTxnStatuses).
				Updates(map[string]any{"status": model.TxnPaid, "paid_at": now}).Error; err != nil {
				return fmt.Errorf("capture transaction: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errStale) {
		current, lerr := o.load(ctx, order.ID)
		if lerr != nil {
			return nil, false, lerr
		}
		if current.Status == target {
			return current, false, nil
		}
		return nil, false, apperror.Conflict("order %s changed to %s concurrently", order.OrderNumber, current.Status)
	}
	if err != nil {
		return nil, false, err
	}

	o.logger(ctx).Info("order status changed",
		"order_id", order.ID, "from", observed, "to", target, "by", by, "penalty", accrue)

	updated, err := o.load(ctx, order.ID)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

var errStale = errors.New("stale order status")

var openTxnStatuses = []model.TransactionStatus{model.TxnCreated, model.TxnAttempted}

func (o *Orders) notifyStatus(ctx context.Context, order *model.Order) {
	o.send(ctx, notify.Notification{
		UserID:      order.StudentID,
		Kind:        notify.KindOrderStatus,
		Title:       "Order update",
		Message:     fmt.Sprintf("Your order %s is now %s", order.OrderNumber, order.Status),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	})
}

func (o *Orders) load(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order
	err := o.db.WithContext(ctx).
		Preload("Items").
		Preload("Canteen").
		Preload("Transaction").
		First(&order, id).Error
	if err != nil {
		return nil, notFound(err, "order %d", id)
	}
	return &order, nil
}

// Get returns an order visible to actor.
func (o *Orders) Get(ctx context.Context, actor model.Actor, id uint) (*model.Order, error) {
	order, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrderView(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func authorizeOrderView(actor model.Actor, order *model.Order) error {
	switch {
	case actor.Role == constants.ROLE_ADMIN:
		return nil
	case actor.Role == constants.ROLE_VENDOR && order.Canteen.OwnerID == actor.UserID:
		return nil
	case order.StudentID == actor.UserID:
		return nil
	}
	return apperror.Forbidden("order %s is not yours", order.OrderNumber)
}

// listable hides carts, except cash group shares waiting for pickup.
func listable(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false).
		Where("status NOT IN ? OR (status = ? AND payment_method = ? AND group_order_id IS NOT NULL)",
			[]model.OrderStatus{model.OrderPending, model.OrderPaymentPending},
			model.OrderPaymentPending, model.MethodCOD)
}

func (o *Orders) ListForStudent(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	var orders []model.Order
	err := o.db.WithContext(ctx).
		Scopes(listable).
		Preload("Items").
		Where("student_id = ?", actor.UserID).
		Order("created_at desc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list student orders: %w", err)
	}
	return orders, nil
}

func (o *Orders) ListForCanteen(ctx context.Context, actor model.Actor, canteenID uint) ([]model.Order, error) {
	var canteen model.Canteen
	if err := o.db.WithContext(ctx).First(&canteen, canteenID).Error; err != nil {
		return nil, notFound(err, "canteen %d", canteenID)
	}
	if actor.Role != constants.ROLE_ADMIN && canteen.OwnerID != actor.UserID {
		return nil, apperror.Forbidden("canteen %s is not yours", canteen.Name)
	}

	var orders []model.Order
	err := o.db.WithContext(ctx).
		Scopes(listable).
		Preload("Items").
		Where("canteen_id = ?", canteenID).
		Order("pickup_time asc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list canteen orders: %w", err)
	}
	return orders, nil
}

// notFound turns a missing row into a NotFound error and wraps anything else.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
