package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/database"
	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/logging"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "whsec_test"
	testSaltKey       = "salt_test"
)

type fakeGateway struct {
	mu         sync.Mutex
	intents    map[string]gateway.IntentRequest
	payments   map[string]gateway.Payment
	byOrder    map[string][]gateway.Payment
	refunds    map[string]gateway.RefundResult
	failIntent func(req gateway.IntentRequest) bool
	refundErr  error
	nextID     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:  map[string]gateway.IntentRequest{},
		payments: map[string]gateway.Payment{},
		byOrder:  map[string][]gateway.Payment{},
		refunds:  map[string]gateway.RefundResult{},
	}
}

func (g *fakeGateway) Provider() string { return constants.PROVIDER_RAZORPAY }
func (g *fakeGateway) KeyID() string    { return "rzp_test_key" }

func (g *fakeGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failIntent != nil && g.failIntent(req) {
		return gateway.Intent{}, &apperror.GatewayError{Op: "create order", StatusCode: 504, Body: []byte(`{"error":"timeout"}`)}
	}
	g.nextID++
	id := fmt.Sprintf("order_%03d", g.nextID)
	g.intents[id] = req
	return gateway.Intent{ID: id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: gateway.StatusCreated}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.HMACSHA256{}.Verify([]byte(orderID+"|"+paymentID), signature, testKeySecret)
}

func (g *fakeGateway) FetchPayment(_ context.Context, paymentID string) (gateway.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return gateway.Payment{}, &apperror.GatewayError{Op: "fetch payment", StatusCode: 404}
	}
	return p, nil
}

func (g *fakeGateway) FetchOrderPayments(_ context.Context, orderID string) ([]gateway.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byOrder[orderID], nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amount decimal.Decimal, _ map[string]string) (gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return gateway.RefundResult{}, g.refundErr
	}
	g.nextID++
	r := gateway.RefundResult{ID: fmt.Sprintf("rfnd_%03d", g.nextID), PaymentID: paymentID, Amount: amount, Status: gateway.RefundStatusPending}
	g.refunds[r.ID] = r
	return r, nil
}

func (g *fakeGateway) FetchRefund(_ context.Context, _ string, refundID string) (gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.refunds[refundID]
	if !ok {
		return gateway.RefundResult{}, &apperror.GatewayError{Op: "fetch refund", StatusCode: 404}
	}
	return r, nil
}

// pay registers a captured payment for gwOrderID.
func (g *fakeGateway) pay(gwOrderID, paymentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := gateway.Payment{ID: paymentID, OrderID: gwOrderID, Status: status, Method: "upi"}
	g.payments[paymentID] = p
	g.byOrder[gwOrderID] = append(g.byOrder[gwOrderID], p)
}

func (g *fakeGateway) intentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.intents)
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) count(userID uint, kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.got {
		if x.UserID == userID && x.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	db     *gorm.DB
	engine *Engine
	gw     *fakeGateway
	notes  *recorder

	clockMu sync.Mutex
	clock   time.Time

	admin, vendor, otherVendor model.User
	alice, bob, carol          model.User
	canteen, closed            model.Canteen
	thali, dosa, soldOut       model.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(database.Models()...))

	f := &fixture{t: t, ctx: context.Background(), db: db, gw: newFakeGateway(), notes: &recorder{}, clock: time.Now()}

	schemes := gateway.NewSchemes()
	schemes.Register(constants.PROVIDER_RAZORPAY, gateway.HMACSHA256{}, testWebhookSecret)
	schemes.Register(constants.PROVIDER_PHONEPE, gateway.SaltedChecksum{SaltIndex: "1"}, testSaltKey)

	f.engine = New(Options{
		DB:       db,
		Gateway:  f.gw,
		Schemes:  schemes,
		Notifier: f.notes,
		Log:      logging.Discard(),
		AppURL:   "https://campusbites.test",
		Now:      f.now,
	})

	f.admin = f.user("Admin", constants.ROLE_ADMIN)
	f.vendor = f.user("Vendor", constants.ROLE_VENDOR)
	f.otherVendor = f.user("Other Vendor", constants.ROLE_VENDOR)
	f.alice = f.user("Alice", constants.ROLE_STUDENT)
	f.bob = f.user("Bob", constants.ROLE_STUDENT)
	f.carol = f.user("Carol", constants.ROLE_STUDENT)

	f.canteen = model.Canteen{Name: "Main Canteen", Slug: "main-canteen", OwnerID: f.vendor.ID, IsOpen: true}
	require.NoError(t, db.Create(&f.canteen).Error)
	f.closed = model.Canteen{Name: "Night Canteen", Slug: "night-canteen", OwnerID: f.otherVendor.ID, IsOpen: true}
	require.NoError(t, db.Create(&f.closed).Error)
	require.NoError(t, db.Model(&f.closed).Update("is_open", false).Error)

	f.thali = f.item(f.canteen.ID, "Veg Thali", 50, true)
	f.dosa = f.item(f.canteen.ID, "Masala Dosa", 100, true)
	f.soldOut = f.item(f.canteen.ID, "Biryani", 120, false)
	return f
}

func (f *fixture) now() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	return f.clock
}

func (f *fixture) advance(d time.Duration) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.clock = f.clock.Add(d)
}

func (f *fixture) user(name, role string) model.User {
	u := model.User{Name: name, Email: fmt.Sprintf("%s@campus.test", name), Password: "x", Role: role}
	require.NoError(f.t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) item(canteenID uint, name string, price float64, available bool) model.Item {
	it := model.Item{CanteenID: canteenID, Name: name, Price: price, IsAvailable: true}
	require.NoError(f.t, f.db.Create(&it).Error)
	if !available {
		require.NoError(f.t, f.db.Model(&it).Update("is_available", false).Error)
		it.IsAvailable = false
	}
	return it
}

func student(u model.User) model.Actor {
	return model.Actor{UserID: u.ID, Role: constants.ROLE_STUDENT, DeviceID: fmt.Sprintf("device-%d", u.ID)}
}

func staff(u model.User) model.Actor {
	return model.Actor{UserID: u.ID, Role: u.Role}
}

func (f *fixture) pickup() time.Time {
	return f.now().Add(30 * time.Minute)
}

func (f *fixture) createOrder(actor model.Actor, method model.PaymentMethod, items ...model.LineItemInput) *model.Order {
	f.t.Helper()
	order, err := f.engine.Orders.Create(f.ctx, actor, model.CreateOrderInput{
		CanteenID:     f.canteen.ID,
		Items:         items,
		PickupTime:    f.pickup(),
		PaymentMethod: method,
	})
	require.NoError(f.t, err)
	return order
}

func line(it model.Item, qty int) model.LineItemInput {
	return model.LineItemInput{ItemID: it.ID, Quantity: qty}
}

// paidUPIOrder walks a UPI order through intent and capture.
func (f *fixture) paidUPIOrder(actor model.Actor, items ...model.LineItemInput) (*model.Order, string) {
	f.t.Helper()
	order := f.createOrder(actor, model.MethodUPI, items...)
	intent, err := f.engine.Payments.CreatePaymentIntent(f.ctx, actor, order.ID)
	require.NoError(f.t, err)
	paymentID := "pay_" + intent.GatewayOrderID
	_, err = f.deliver(capturedBody(intent.GatewayOrderID, paymentID), "")
	require.NoError(f.t, err)
	return f.reload(order.ID), paymentID
}

func (f *fixture) reload(id uint) *model.Order {
	f.t.Helper()
	var order model.Order
	require.NoError(f.t, f.db.Preload("Items").Preload("Transaction").First(&order, id).Error)
	return &order
}

func (f *fixture) deliver(body []byte, eventID string) (*model.WebhookEvent, error) {
	sig := gateway.HMACSHA256{}.Sign(body, testWebhookSecret)
	return f.engine.Webhooks.Handle(f.ctx, constants.PROVIDER_RAZORPAY, body, sig, eventID)
}

func paymentBody(event, gwOrderID, paymentID, errorDescription string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":                paymentID,
					"order_id":          gwOrderID,
					"amount":            10000,
					"currency":          "INR",
					"status":            "captured",
					"error_description": errorDescription,
				},
			},
		},
	})
	return body
}

func capturedBody(gwOrderID, paymentID string) []byte {
	return paymentBody(EventPaymentCaptured, gwOrderID, paymentID, "")
}

func refundBody(event, refundID, paymentID string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"refund": map[string]any{
				"entity": map[string]any{"id": refundID, "payment_id": paymentID, "amount": 10000, "status": "processed"},
			},
		},
	})
	return body
}
