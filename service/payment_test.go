package service

import (
	"errors"
	"testing"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePaymentIntent_IsReusedWhileOpen(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	order := f.createOrder(alice, model.MethodUPI, line(f.dosa, 1))

	first, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, first.GatewayOrderID)
	assert.Equal(t, 100.0, first.Amount)
	assert.Equal(t, "rzp_test_key", first.KeyID)

	second, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
	assert.Equal(t, 1, f.gw.intentCount())

	reloaded := f.reload(order.ID)
	assert.Equal(t, model.OrderPaymentPending, reloaded.Status)
	require.NotNil(t, reloaded.Transaction)
	assert.Equal(t, model.TxnCreated, reloaded.Transaction.Status)
	assert.Equal(t, order.OrderNumber, reloaded.Transaction.Receipt)
}

func TestCreatePaymentIntent_GatewayTimeoutLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	order := f.createOrder(alice, model.MethodUPI, line(f.dosa, 1))
	f.gw.failIntent = func(gateway.IntentRequest) bool { return true }

	_, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	require.ErrorIs(t, err, apperror.ErrGateway)
	var gwErr *apperror.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, 504, gwErr.StatusCode)

	reloaded := f.reload(order.ID)
	assert.Equal(t, model.OrderPaymentPending, reloaded.Status)
	require.NotNil(t, reloaded.Transaction)
	assert.Nil(t, reloaded.Transaction.GatewayOrderID)

	// a retry reuses the committed transaction
	f.gw.failIntent = nil
	intent, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, reloaded.Transaction.ID, intent.TransactionID)
}

func TestCreatePaymentIntent_Rejects(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	cash := f.createOrder(alice, model.MethodCOD, line(f.dosa, 1))
	upi := f.createOrder(alice, model.MethodUPI, line(f.dosa, 1))

	_, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, cash.ID)
	assert.ErrorIs(t, err, apperror.ErrPolicy)

	_, err = f.engine.Payments.CreatePaymentIntent(f.ctx, student(f.bob), upi.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.engine.Payments.CreatePaymentIntent(f.ctx, alice, 9999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	order := f.createOrder(alice, model.MethodUPI, line(f.dosa, 1))
	intent, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	require.NoError(t, err)

	sig := gateway.HMACSHA256{}.Sign([]byte(intent.GatewayOrderID+"|pay_1"), testKeySecret)

	_, err = f.engine.Payments.VerifyPayment(f.ctx, alice, model.VerifyPaymentInput{
		GatewayOrderID: intent.GatewayOrderID, GatewayPaymentID: "pay_1", Signature: "deadbeef",
	})
	assert.ErrorIs(t, err, apperror.ErrAuth)

	f.gw.pay(intent.GatewayOrderID, "pay_1", gateway.StatusAuthorized)
	_, err = f.engine.Payments.VerifyPayment(f.ctx, alice, model.VerifyPaymentInput{
		GatewayOrderID: intent.GatewayOrderID, GatewayPaymentID: "pay_1", Signature: sig,
	})
	assert.ErrorIs(t, err, apperror.ErrPolicy, "payment not captured yet")
	assert.Equal(t, model.OrderPaymentPending, f.reload(order.ID).Status)

	f.gw.pay(intent.GatewayOrderID, "pay_1", gateway.StatusCaptured)
	placed, err := f.engine.Payments.VerifyPayment(f.ctx, alice, model.VerifyPaymentInput{
		GatewayOrderID: intent.GatewayOrderID, GatewayPaymentID: "pay_1", Signature: sig,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderPlaced, placed.Status)
	assert.Equal(t, model.PaymentPaid, placed.PaymentStatus)
	assert.Equal(t, model.TxnPaid, placed.Transaction.Status)
	require.NotNil(t, placed.Transaction.GatewayPaymentID)
	assert.Equal(t, "pay_1", *placed.Transaction.GatewayPaymentID)
	assert.Equal(t, 1, f.notes.count(f.vendor.ID, notify.KindNewOrder))

	// the webhook arriving afterwards changes nothing
	_, err = f.deliver(capturedBody(intent.GatewayOrderID, "pay_1"), "evt_late")
	require.NoError(t, err)
	assert.Equal(t, 1, f.notes.count(f.alice.ID, notify.KindPayment))
}

func TestReportPaymentFailure_RequiresNewOrder(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	order := f.createOrder(alice, model.MethodUPI, line(f.dosa, 1))
	intent, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	require.NoError(t, err)

	failed, err := f.engine.Payments.ReportPaymentFailure(f.ctx, alice, model.PaymentFailureInput{
		GatewayOrderID: intent.GatewayOrderID, GatewayPaymentID: "pay_x", Reason: "user dismissed",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, failed.Status)
	assert.Equal(t, model.PaymentFailed, failed.PaymentStatus)
	assert.Equal(t, model.TxnFailed, failed.Transaction.Status)
	assert.Equal(t, "user dismissed", failed.Transaction.FailureReason)

	_, err = f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	assert.ErrorIs(t, err, apperror.ErrPolicy)
}

func TestRefund_PendingUntilGatewayConfirms(t *testing.T) {
	f := newFixture(t)
	order, paymentID := f.paidUPIOrder(student(f.alice), line(f.dosa, 1))
	require.Equal(t, model.TxnPaid, order.Transaction.Status)

	txn, err := f.engine.Payments.InitiateRefund(f.ctx, staff(f.vendor), order.ID, "stale food")
	require.NoError(t, err)
	assert.Equal(t, model.RefundPending, txn.Refund.Status)
	assert.Equal(t, 100.0, txn.Refund.Amount)
	assert.Equal(t, "stale food", txn.Refund.Reason)
	require.NotEmpty(t, txn.Refund.RefundID)
	assert.Equal(t, model.PaymentRefundPending, f.reload(order.ID).PaymentStatus)

	_, err = f.engine.Payments.InitiateRefund(f.ctx, staff(f.vendor), order.ID, "again")
	assert.ErrorIs(t, err, apperror.ErrPolicy, "one refund at a time")

	// a result for a refund we never asked for is stale
	_, err = f.deliver(refundBody(EventRefundProcessed, "rfnd_other", paymentID), "")
	require.NoError(t, err)
	assert.Equal(t, model.TxnPaid, f.reload(order.ID).Transaction.Status)

	_, err = f.deliver(refundBody(EventRefundProcessed, txn.Refund.RefundID, paymentID), "")
	require.NoError(t, err)

	refunded := f.reload(order.ID)
	assert.Equal(t, model.OrderRefunded, refunded.Status)
	assert.Equal(t, model.PaymentRefunded, refunded.PaymentStatus)
	assert.Equal(t, model.TxnRefunded, refunded.Transaction.Status)
	assert.Equal(t, model.RefundProcessed, refunded.Transaction.Refund.Status)
	assert.NotNil(t, refunded.Transaction.Refund.ProcessedAt)
	assert.Equal(t, 1, f.notes.count(f.alice.ID, notify.KindRefund))
}

func TestRefund_ResultWithoutRefundIDIsStale(t *testing.T) {
	f := newFixture(t)
	order, paymentID := f.paidUPIOrder(student(f.alice), line(f.dosa, 1))
	// refund committed as pending but its gateway id was never stored
	require.NoError(t, f.db.Model(&model.Transaction{}).Where("id = ?", order.Transaction.ID).
		Updates(map[string]any{"refund_status": model.RefundPending, "refund_amount": 100.0}).Error)

	_, err := f.deliver(refundBody(EventRefundProcessed, "", paymentID), "")
	require.NoError(t, err)

	reloaded := f.reload(order.ID)
	assert.Equal(t, model.TxnPaid, reloaded.Transaction.Status)
	assert.Equal(t, model.RefundPending, reloaded.Transaction.Refund.Status)
	assert.Zero(t, f.notes.count(f.alice.ID, notify.KindRefund))
}

func TestOpenIntent_KeepsStoredGatewayOrder(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	order := f.createOrder(alice, model.MethodUPI, line(f.dosa, 1))
	intent, err := f.engine.Payments.CreatePaymentIntent(f.ctx, alice, order.ID)
	require.NoError(t, err)

	txn := f.reload(order.ID).Transaction
	again, err := f.engine.Payments.openIntent(f.ctx, txn, nil)
	require.NoError(t, err)
	assert.Equal(t, intent.GatewayOrderID, again)
	assert.Equal(t, intent.GatewayOrderID, *f.reload(order.ID).Transaction.GatewayOrderID)
}

func TestRefund_FailedWebhookKeepsPayment(t *testing.T) {
	f := newFixture(t)
	order, paymentID := f.paidUPIOrder(student(f.alice), line(f.dosa, 1))
	txn, err := f.engine.Payments.InitiateRefund(f.ctx, staff(f.admin), order.ID, "")
	require.NoError(t, err)

	_, err = f.deliver(refundBody(EventRefundFailed, txn.Refund.RefundID, paymentID), "")
	require.NoError(t, err)

	reloaded := f.reload(order.ID)
	assert.Equal(t, model.OrderPlaced, reloaded.Status)
	assert.Equal(t, model.PaymentPaid, reloaded.PaymentStatus)
	assert.Equal(t, model.TxnPaid, reloaded.Transaction.Status)
	assert.Equal(t, model.RefundFailed, reloaded.Transaction.Refund.Status)

	// a failed refund may be retried
	_, err = f.engine.Payments.InitiateRefund(f.ctx, staff(f.admin), order.ID, "retry")
	require.NoError(t, err)
}

func TestRefund_GatewayErrorMarksRefundFailed(t *testing.T) {
	f := newFixture(t)
	order, _ := f.paidUPIOrder(student(f.alice), line(f.dosa, 1))
	f.gw.refundErr = &apperror.GatewayError{Op: "refund", StatusCode: 400, Body: []byte(`{"error":{"description":"insufficient balance"}}`)}

	_, err := f.engine.Payments.InitiateRefund(f.ctx, staff(f.vendor), order.ID, "wrong order")
	require.ErrorIs(t, err, apperror.ErrGateway)

	reloaded := f.reload(order.ID)
	assert.Equal(t, model.RefundFailed, reloaded.Transaction.Refund.Status)
	assert.Contains(t, reloaded.Transaction.Refund.FailureReason, "insufficient balance")
	assert.Equal(t, model.PaymentPaid, reloaded.PaymentStatus)
}

func TestRefund_Rules(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	order, _ := f.paidUPIOrder(alice, line(f.dosa, 1))
	unpaid := f.createOrder(alice, model.MethodUPI, line(f.dosa, 1))

	_, err := f.engine.Payments.InitiateRefund(f.ctx, alice, order.ID, "")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.engine.Payments.InitiateRefund(f.ctx, staff(f.otherVendor), order.ID, "")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.engine.Payments.InitiateRefund(f.ctx, staff(f.vendor), unpaid.ID, "")
	assert.ErrorIs(t, err, apperror.ErrPolicy)

	_, err = f.engine.Payments.RefundStatus(f.ctx, alice, order.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRefund_CashSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(student(f.alice), model.MethodCOD, line(f.dosa, 1))
	for _, s := range []model.OrderStatus{model.OrderPreparing, model.OrderReady, model.OrderCompleted} {
		_, err := f.engine.Orders.UpdateStatus(f.ctx, staff(f.vendor), order.ID, s)
		require.NoError(t, err)
	}

	txn, err := f.engine.Payments.InitiateRefund(f.ctx, staff(f.vendor), order.ID, "cold food")
	require.NoError(t, err)
	assert.Equal(t, model.TxnRefunded, txn.Status)
	assert.Equal(t, model.RefundProcessed, txn.Refund.Status)
	assert.Equal(t, model.OrderRefunded, f.reload(order.ID).Status)
}

func TestRefundStatus_RefreshesFromGateway(t *testing.T) {
	f := newFixture(t)
	alice := student(f.alice)
	order, paymentID := f.paidUPIOrder(alice, line(f.dosa, 1))
	txn, err := f.engine.Payments.InitiateRefund(f.ctx, staff(f.vendor), order.ID, "")
	require.NoError(t, err)

	refund, err := f.engine.Payments.RefundStatus(f.ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefundPending, refund.Status)

	f.gw.mu.Lock()
	r := f.gw.refunds[txn.Refund.RefundID]
	r.Status = gateway.RefundStatusProcessed
	f.gw.refunds[r.ID] = r
	f.gw.mu.Unlock()
	require.Equal(t, paymentID, r.PaymentID)

	refund, err = f.engine.Payments.RefundStatus(f.ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefundProcessed, refund.Status)
	assert.Equal(t, model.OrderRefunded, f.reload(order.ID).Status)
}
