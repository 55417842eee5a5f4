package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"gorm.io/gorm"
)

// PaymentObserver is told about payment outcomes after they are committed.
type PaymentObserver interface {
	PaymentChanged(ctx context.Context, order model.Order)
}

type Payments struct {
	*core
	orders    *Orders
	observers []PaymentObserver
}

func (p *Payments) Observe(o PaymentObserver) {
	p.observers = append(p.observers, o)
}

func (p *Payments) changed(ctx context.Context, orderID uint) {
	if len(p.observers) == 0 {
		return
	}
	order, err := p.orders.load(ctx, orderID)
	if err != nil {
		p.logger(ctx).Error("reload order for observers", "order_id", orderID, "error", err)
		return
	}
	for _, o := range p.observers {
		o.PaymentChanged(ctx, *order)
	}
}

// CreatePaymentIntent opens (or returns) the gateway order for a UPI order.
// The transaction is committed before the gateway is called, so a timeout leaves
// the order in payment_pending with a transaction waiting for its gateway id.
func (p *Payments) CreatePaymentIntent(ctx context.Context, actor model.Actor, orderID uint) (*model.PaymentIntentResponse, error) {
	unlock := p.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := p.orders.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.StudentID != actor.UserID {
		return nil, apperror.Forbidden("order %s belongs to another student", order.OrderNumber)
	}
	if order.PaymentMethod != model.MethodUPI {
		return nil, apperror.Policy("order %s is not an online payment order", order.OrderNumber)
	}
	if !order.Status.IsCart() {
		return nil, apperror.Policy("order %s is already %s", order.OrderNumber, order.Status)
	}

	txn := order.Transaction
	if txn != nil {
		switch {
		case txn.Status == model.TxnFailed:
			return nil, apperror.Policy("payment for order %s failed, place a new order", order.OrderNumber)
		case txn.Status.IsTerminal():
			return nil, apperror.Policy("payment for order %s is %s", order.OrderNumber, txn.Status)
		case txn.GatewayOrderID != nil:
			return p.intentResponse(order, txn), nil
		}
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).
			Where("id = ? AND status IN ?", order.ID, []model.OrderStatus{model.OrderPending, model.OrderPaymentPending}).
			Update("status", model.OrderPaymentPending)
		if res.Error != nil {
			return fmt.Errorf("mark payment pending: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("order %s changed concurrently", order.OrderNumber)
		}
		if txn != nil {
			return nil
		}
		txn = &model.Transaction{
			OrderID:  order.ID,
			UserID:   order.StudentID,
			Provider: p.gw.Provider(),
			Receipt:  order.OrderNumber,
			Amount:   order.Total,
			Currency: "INR",
			Method:   model.MethodUPI,
			Status:   model.TxnCreated,
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gwOrderID, err := p.openIntent(ctx, txn, map[string]string{
		"order_id":     fmt.Sprint(order.ID),
		"order_number": order.OrderNumber,
	})
	if err != nil {
		return nil, err
	}
	txn.GatewayOrderID = &gwOrderID
	return p.intentResponse(order, txn), nil
}

// openIntent creates the gateway order for txn and records its id.
func (p *Payments) openIntent(ctx context.Context, txn *model.Transaction, notes map[string]string) (string, error) {
	intent, err := p.gw.CreateIntent(ctx, gateway.IntentRequest{
		Amount:   toDecimal(txn.Amount),
		Currency: txn.Currency,
		Receipt:  txn.Receipt,
		Notes:    notes,
	})
	if err != nil {
		p.logger(ctx).Error("create payment intent failed", "transaction_id", txn.ID, "order_id", txn.OrderID, "error", err)
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	res := p.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND gateway_order_id IS NULL", txn.ID).
		Update("gateway_order_id", intent.ID)
	if res.Error != nil {
		return "", fmt.Errorf("store gateway order id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		stored, err := p.transaction(ctx, txn.ID)
		if err != nil {
			return "", err
		}
		if stored.GatewayOrderID == nil {
			return "", apperror.Conflict("transaction %d changed concurrently", txn.ID)
		}
		p.logger(ctx).Warn("gateway order already stored, dropping the new one",
			"transaction_id", txn.ID, "stored", *stored.GatewayOrderID, "dropped", intent.ID)
		return *stored.GatewayOrderID, nil
	}
	p.logger(ctx).Info("payment intent created", "transaction_id", txn.ID, "order_id", txn.OrderID, "gateway_order_id", intent.ID)
	return intent.ID, nil
}

func (p *Payments) intentResponse(order *model.Order, txn *model.Transaction) *model.PaymentIntentResponse {
	resp := &model.PaymentIntentResponse{
		OrderID:       order.ID,
		TransactionID: txn.ID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		KeyID:         p.gw.KeyID(),
	}
	if txn.GatewayOrderID != nil {
		resp.GatewayOrderID = *txn.GatewayOrderID
	}
	return resp
}

// VerifyPayment confirms a client-side checkout with the gateway before applying the capture.
func (p *Payments) VerifyPayment(ctx context.Context, actor model.Actor, input model.VerifyPaymentInput) (*model.Order, error) {
	if !p.gw.VerifySignature(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		return nil, apperror.Auth("invalid payment signature")
	}
	txn, err := p.txnByGatewayOrder(ctx, input.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != actor.UserID && actor.Role != constants.ROLE_ADMIN {
		return nil, apperror.Forbidden("payment belongs to another student")
	}

	payment, err := p.gw.FetchPayment(ctx, input.GatewayPaymentID)
	if err != nil {
		return nil, fmt.Errorf("fetch payment: %w", err)
	}
	if payment.OrderID != input.GatewayOrderID {
		return nil, apperror.Auth("payment %s does not belong to %s", payment.ID, input.GatewayOrderID)
	}
	if payment.Status != gateway.StatusCaptured {
		return nil, apperror.Policy("payment %s is %s, not captured", payment.ID, payment.Status)
	}

	if _, err := p.markCaptured(ctx, input.GatewayOrderID, input.GatewayPaymentID); err != nil {
		return nil, err
	}
	return p.orders.load(ctx, txn.OrderID)
}

func (p *Payments) ReportPaymentFailure(ctx context.Context, actor model.Actor, input model.PaymentFailureInput) (*model.Order, error) {
	txn, err := p.txnByGatewayOrder(ctx, input.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != actor.UserID && actor.Role != constants.ROLE_ADMIN {
		return nil, apperror.Forbidden("payment belongs to another student")
	}
	reason := input.Reason
	if reason == "" {
		reason = "payment failed at checkout"
	}
	if _, err := p.markFailed(ctx, input.GatewayOrderID, input.GatewayPaymentID, reason); err != nil {
		return nil, err
	}
	return p.orders.load(ctx, txn.OrderID)
}

func (p *Payments) txnByGatewayOrder(ctx context.Context, gatewayOrderID string) (*model.Transaction, error) {
	var txn model.Transaction
	if err := p.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&txn).Error; err != nil {
		return nil, notFound(err, "transaction for gateway order %s", gatewayOrderID)
	}
	return &txn, nil
}

// errOrderClosed rolls back a capture whose order left the cart states meanwhile.
var errOrderClosed = errors.New("order no longer awaits payment")

var capturableTxnStatuses = []model.TransactionStatus{model.TxnCreated, model.TxnAttempted, model.TxnFailed}

// markCaptured is the single path into paid, shared by verification, webhooks and the sweep.
// applied is false when the capture had already been recorded or could not be applied.
func (p *Payments) markCaptured(ctx context.Context, gatewayOrderID, paymentID string) (bool, error) {
	txn, err := p.txnByGatewayOrder(ctx, gatewayOrderID)
	if err != nil {
		return false, err
	}

	unlock := p.locks.Lock(orderKey(txn.OrderID))
	order, err := p.orders.load(ctx, txn.OrderID)
	if err != nil {
		unlock()
		return false, err
	}
	txn = order.Transaction
	log := p.logger(ctx).With("transaction_id", txn.ID, "order_id", order.ID, "gateway_order_id", gatewayOrderID)

	switch txn.Status {
	case model.TxnPaid, model.TxnRefunded:
		unlock()
		log.Info("capture already recorded")
		return false, nil
	case model.TxnCancelled:
		unlock()
		log.Warn("capture for cancelled transaction needs a manual refund", "payment_id", paymentID)
		return false, nil
	}
	if !order.Status.IsCart() {
		unlock()
		log.Warn("capture for closed order needs a manual refund", "payment_id", paymentID, "order_status", order.Status)
		return false, nil
	}

	now := p.now()
	applied := false
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Transaction{}).
			Where("id = ? AND status IN ?", txn.ID, capturableTxnStatuses).
			Updates(map[string]any{
				"status":             model.TxnPaid,
				"paid_at":            now,
				"gateway_payment_id": paymentID,
				"failure_reason":     "",
			})
		if res.Error != nil {
			return fmt.Errorf("mark transaction paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		placed := tx.Model(&model.Order{}).
			Where("id = ? AND status IN ?", order.ID, []model.OrderStatus{model.OrderPending, model.OrderPaymentPending}).
			Updates(map[string]any{"status": model.OrderPlaced, "payment_status": model.PaymentPaid})
		if placed.Error != nil {
			return fmt.Errorf("place order: %w", placed.Error)
		}
		if placed.RowsAffected == 0 {
			return errOrderClosed
		}
		applied = true
		return nil
	})
	unlock()
	if errors.Is(err, errOrderClosed) {
		log.Warn("capture for closed order needs a manual refund", "payment_id", paymentID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	log.Info("payment captured", "payment_id", paymentID)
	p.send(ctx, notify.Notification{
		UserID:      order.StudentID,
		Kind:        notify.KindPayment,
		Title:       "Payment received",
		Message:     fmt.Sprintf("Payment for order %s was received", order.OrderNumber),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(model.OrderPlaced),
	})
	p.send(ctx, notify.Notification{
		UserID:      order.Canteen.OwnerID,
		Kind:        notify.KindNewOrder,
		Title:       "New order",
		Message:     fmt.Sprintf("Order %s was paid and placed", order.OrderNumber),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(model.OrderPlaced),
	})
	p.changed(ctx, order.ID)
	return true, nil
}

func (p *Payments) markFailed(ctx context.Context, gatewayOrderID, paymentID, reason string) (bool, error) {
	txn, err := p.txnByGatewayOrder(ctx, gatewayOrderID)
	if err != nil {
		return false, err
	}

	unlock := p.locks.Lock(orderKey(txn.OrderID))
	order, err := p.orders.load(ctx, txn.OrderID)
	if err != nil {
		unlock()
		return false, err
	}
	txn = order.Transaction
	if txn.Status.IsTerminal() {
		unlock()
		p.logger(ctx).Info("failure ignored for settled transaction", "transaction_id", txn.ID, "status", txn.Status)
		return false, nil
	}

	fields := map[string]any{"status": model.TxnFailed, "failure_reason": reason}
	if paymentID != "" {
		fields["gateway_payment_id"] = paymentID
	}
	applied := false
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Transaction{}).
			Where("id = ? AND status IN ?", txn.ID, openTxnStatuses).
			Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("mark transaction failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		if err := tx.Model(&model.Order{}).
			Where("id = ? AND status IN ?", order.ID, []model.OrderStatus{model.OrderPending, model.OrderPaymentPending}).
			Updates(map[string]any{"status": model.OrderPending, "payment_status": model.PaymentFailed}).Error; err != nil {
			return fmt.Errorf("revert order: %w", err)
		}
		return nil
	})
	unlock()
	if err != nil || !applied {
		return false, err
	}

	p.logger(ctx).Info("payment failed", "transaction_id", txn.ID, "order_id", order.ID, "reason", reason)
	p.send(ctx, notify.Notification{
		UserID:      order.StudentID,
		Kind:        notify.KindPayment,
		Title:       "Payment failed",
		Message:     fmt.Sprintf("Payment for order %s failed: %s", order.OrderNumber, reason),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(model.OrderPending),
	})
	p.changed(ctx, order.ID)
	return true, nil
}

// markAuthorized records that the student started paying.
func (p *Payments) markAuthorized(ctx context.Context, gatewayOrderID string) (bool, error) {
	res := p.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("gateway_order_id = ? AND status = ?", gatewayOrderID, model.TxnCreated).
		Update("status", model.TxnAttempted)
	if res.Error != nil {
		return false, fmt.Errorf("mark transaction attempted: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// InitiateRefund commits the refund as pending and then asks the gateway for it.
func (p *Payments) InitiateRefund(ctx context.Context, actor model.Actor, orderID uint, reason string) (*model.Transaction, error) {
	unlock := p.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := p.orders.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != constants.ROLE_ADMIN && !(actor.Role == constants.ROLE_VENDOR && order.Canteen.OwnerID == actor.UserID) {
		return nil, apperror.Forbidden("only the canteen owner or an admin can refund order %s", order.OrderNumber)
	}
	txn := order.Transaction
	switch {
	case txn == nil || txn.Status != model.TxnPaid:
		return nil, apperror.Policy("order %s has no paid transaction", order.OrderNumber)
	case order.Status != model.OrderPlaced && order.Status != model.OrderCompleted:
		return nil, apperror.Policy("order %s is %s and cannot be refunded", order.OrderNumber, order.Status)
	case txn.Refund.Status == model.RefundPending || txn.Refund.Status == model.RefundProcessed:
		return nil, apperror.Policy("refund for order %s is already %s", order.OrderNumber, txn.Refund.Status)
	}
	if reason == "" {
		reason = "refund requested"
	}

	now := p.now()
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Transaction{}).
			Where("id = ? AND status = ? AND (refund_status IS NULL OR refund_status IN ?)",
				txn.ID, model.TxnPaid, []model.RefundStatus{"", model.RefundFailed}).
			Updates(map[string]any{
				"refund_refund_id":      "",
				"refund_amount":         txn.Amount,
				"refund_reason":         reason,
				"refund_status":         model.RefundPending,
				"refund_initiated_by":   actor.UserID,
				"refund_initiated_at":   now,
				"refund_processed_at":   nil,
				"refund_failure_reason": "",
			})
		if res.Error != nil {
			return fmt.Errorf("mark refund pending: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("refund for order %s changed concurrently", order.OrderNumber)
		}
		return tx.Model(&model.Order{}).Where("id = ?", order.ID).
			Update("payment_status", model.PaymentRefundPending).Error
	})
	if err != nil {
		return nil, err
	}
	p.logger(ctx).Info("refund initiated", "order_id", order.ID, "transaction_id", txn.ID, "amount", txn.Amount)

	if txn.Method == model.MethodCOD {
		if _, err := p.settleRefund(ctx, order, txn.ID, "", true, ""); err != nil {
			return nil, err
		}
		return p.transaction(ctx, txn.ID)
	}

	if txn.GatewayPaymentID == nil {
		gwErr := &apperror.GatewayError{Op: "refund", Err: errors.New("transaction has no gateway payment id")}
		p.failRefundInitiation(ctx, order, txn.ID, gwErr)
		return nil, gwErr
	}
	result, err := p.gw.Refund(ctx, *txn.GatewayPaymentID, toDecimal(txn.Amount), map[string]string{
		"order_number": order.OrderNumber,
		"reason":       reason,
	})
	if err != nil {
		p.failRefundInitiation(ctx, order, txn.ID, err)
		return nil, fmt.Errorf("refund order %s: %w", order.OrderNumber, err)
	}
	if err := p.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND refund_status = ?", txn.ID, model.RefundPending).
		Update("refund_refund_id", result.ID).Error; err != nil {
		return nil, fmt.Errorf("store refund id: %w", err)
	}
	p.logger(ctx).Info("refund requested at gateway", "order_id", order.ID, "refund_id", result.ID, "status", result.Status)
	return p.transaction(ctx, txn.ID)
}

func (p *Payments) failRefundInitiation(ctx context.Context, order *model.Order, txnID uint, cause error) {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Transaction{}).
			Where("id = ? AND refund_status = ?", txnID, model.RefundPending).
			Updates(map[string]any{"refund_status": model.RefundFailed, "refund_failure_reason": cause.Error()}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Order{}).Where("id = ?", order.ID).
			Update("payment_status", model.PaymentPaid).Error
	})
	if err != nil {
		p.logger(ctx).Error("record refund failure", "order_id", order.ID, "error", err)
	}
}

// applyRefundResult completes or fails the pending refund identified by paymentID and refundID.
// Results for refunds the system is not waiting on are dropped as stale.
func (p *Payments) applyRefundResult(ctx context.Context, paymentID, refundID string, success bool, reason string) (bool, error) {
	var txn model.Transaction
	if err := p.db.WithContext(ctx).Where("gateway_payment_id = ?", paymentID).First(&txn).Error; err != nil {
		return false, notFound(err, "transaction for payment %s", paymentID)
	}

	unlock := p.locks.Lock(orderKey(txn.OrderID))
	defer unlock()

	order, err := p.orders.load(ctx, txn.OrderID)
	if err != nil {
		return false, err
	}
	return p.settleRefund(ctx, order, txn.ID, refundID, success, reason)
}

// settleRefund finishes the pending refund of txnID. The caller holds the order lock.
func (p *Payments) settleRefund(ctx context.Context, order *model.Order, txnID uint, refundID string, success bool, reason string) (bool, error) {
	txn, err := p.transaction(ctx, txnID)
	if err != nil {
		return false, err
	}
	stale := txn.Refund.Status != model.RefundPending || txn.Refund.RefundID != refundID ||
		(txn.Method != model.MethodCOD && refundID == "")
	if stale {
		p.logger(ctx).Info("stale refund result dropped",
			"transaction_id", txn.ID, "refund_id", refundID, "expected", txn.Refund.RefundID, "refund_status", txn.Refund.Status)
		return false, nil
	}

	now := p.now()
	applied := false
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := tx.Model(&model.Transaction{}).
			Where("id = ? AND refund_status = ? AND refund_refund_id = ?", txn.ID, model.RefundPending, refundID)
		if !success {
			res := scope.Updates(map[string]any{"refund_status": model.RefundFailed, "refund_failure_reason": reason})
			if res.Error != nil {
				return res.Error
			}
			applied = res.RowsAffected > 0
			if !applied {
				return nil
			}
			return tx.Model(&model.Order{}).Where("id = ?", order.ID).
				Update("payment_status", model.PaymentPaid).Error
		}

		res := scope.Updates(map[string]any{
			"refund_status":       model.RefundProcessed,
			"refund_processed_at": now,
			"status":              model.TxnRefunded,
		})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		if !applied {
			return nil
		}
		return tx.Model(&model.Order{}).Where("id = ?", order.ID).
			Updates(map[string]any{"status": model.OrderRefunded, "payment_status": model.PaymentRefunded}).Error
	})
	if err != nil {
		return false, fmt.Errorf("settle refund: %w", err)
	}
	if !applied {
		return false, nil
	}

	title, msg := "Refund processed", fmt.Sprintf("Your refund for order %s was processed", order.OrderNumber)
	if !success {
		title, msg = "Refund failed", fmt.Sprintf("Your refund for order %s failed: %s", order.OrderNumber, reason)
	}
	p.logger(ctx).Info("refund settled", "order_id", order.ID, "transaction_id", txn.ID, "refund_id", refundID, "success", success)
	p.send(ctx, notify.Notification{
		UserID:      order.StudentID,
		Kind:        notify.KindRefund,
		Title:       title,
		Message:     msg,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	})
	return true, nil
}

// RefundStatus returns the refund record, refreshing a pending one from the gateway first.
func (p *Payments) RefundStatus(ctx context.Context, actor model.Actor, orderID uint) (*model.Refund, error) {
	order, err := p.orders.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrderView(actor, order); err != nil {
		return nil, err
	}
	txn := order.Transaction
	if txn == nil {
		return nil, apperror.NotFound("transaction for order %s", order.OrderNumber)
	}
	if txn.Refund.Status == "" {
		return nil, apperror.NotFound("refund for order %s", order.OrderNumber)
	}

	if txn.Refund.Status == model.RefundPending && txn.Refund.RefundID != "" && txn.GatewayPaymentID != nil {
		if err := p.refreshRefund(ctx, txn); err != nil {
			p.logger(ctx).Warn("refresh refund status", "order_id", order.ID, "error", err)
		}
		if txn, err = p.transaction(ctx, txn.ID); err != nil {
			return nil, err
		}
	}
	refund := txn.Refund
	return &refund, nil
}

func (p *Payments) refreshRefund(ctx context.Context, txn *model.Transaction) error {
	result, err := p.gw.FetchRefund(ctx, *txn.GatewayPaymentID, txn.Refund.RefundID)
	if err != nil {
		return err
	}
	switch result.Status {
	case gateway.RefundStatusProcessed:
		_, err = p.applyRefundResult(ctx, *txn.GatewayPaymentID, result.ID, true, "")
	case gateway.RefundStatusFailed:
		_, err = p.applyRefundResult(ctx, *txn.GatewayPaymentID, result.ID, false, "refund failed at gateway")
	}
	return err
}

func (p *Payments) transaction(ctx context.Context, id uint) (*model.Transaction, error) {
	var txn model.Transaction
	if err := p.db.WithContext(ctx).First(&txn, id).Error; err != nil {
		return nil, notFound(err, "transaction %d", id)
	}
	return &txn, nil
}
