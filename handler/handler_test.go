package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/database"
	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/handler"
	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/logging"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/router"
	"github.com/campusbitesindia/cbBackend-sub000/service"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	jwtSecret     = "handler-test-secret"
	webhookSecret = "whsec_handler"
)

type testServer struct {
	t       *testing.T
	app     *fiber.App
	db      *gorm.DB
	student model.User
	vendor  model.User
	canteen model.Canteen
	item    model.Item
}

func newServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(database.Models()...))

	schemes := gateway.NewSchemes()
	schemes.Register(constants.PROVIDER_RAZORPAY, gateway.HMACSHA256{}, webhookSecret)
	engine := service.New(service.Options{
		DB:      db,
		Gateway: gateway.NewRazorpay(gateway.RazorpayOptions{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}),
		Schemes: schemes,
		Log:     logging.Discard(),
		AppURL:  "https://campusbites.test",
	})

	s := &testServer{t: t, db: db}
	hash, err := helper.HashPassword("campus123")
	require.NoError(t, err)
	s.student = model.User{Name: "Asha", Email: "asha@campus.test", Password: hash, Role: constants.ROLE_STUDENT}
	s.vendor = model.User{Name: "Ravi", Email: "ravi@campus.test", Password: hash, Role: constants.ROLE_VENDOR}
	require.NoError(t, db.Create(&s.student).Error)
	require.NoError(t, db.Create(&s.vendor).Error)
	s.canteen = model.Canteen{Name: "Main Canteen", Slug: "main-canteen", OwnerID: s.vendor.ID, IsOpen: true}
	require.NoError(t, db.Create(&s.canteen).Error)
	s.item = model.Item{CanteenID: s.canteen.ID, Name: "Veg Thali", Price: 90, IsAvailable: true}
	require.NoError(t, db.Create(&s.item).Error)

	s.app = fiber.New()
	router.SetupRoutes(s.app, &handler.Handler{
		Engine:    engine,
		DB:        db,
		JWTSecret: []byte(jwtSecret),
		Log:       logging.Discard(),
	})
	return s
}

func (s *testServer) token(u model.User) string {
	tok, err := helper.GenerateAccessToken(model.TokenClaim{UserId: u.ID, Role: u.Role, Name: u.Name}, []byte(jwtSecret))
	require.NoError(s.t, err)
	return tok
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(method, path string, body any, user *model.User, headers map[string]string) (int, response) {
	s.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*user))
		req.Header.Set(constants.HEADER_DEVICE_ID, "device-1")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	var out response
	require.NoError(s.t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func (s *testServer) orderInput() map[string]any {
	return map[string]any{
		"canteenId":     s.canteen.ID,
		"items":         []map[string]any{{"itemId": s.item.ID, "quantity": 2}},
		"pickupTime":    time.Now().Add(time.Hour).Format(time.RFC3339),
		"paymentMethod": "cod",
	}
}

func TestLogin(t *testing.T) {
	s := newServer(t)

	status, body := s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "asha@campus.test", "password": "campus123"}, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	var data struct {
		AccessToken string     `json:"accessToken"`
		User        model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.NotEmpty(t, data.AccessToken)
	assert.Equal(t, s.student.ID, data.User.ID)

	status, body = s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "asha@campus.test", "password": "nope"}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, body.Success)

	status, _ = s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "not-an-email"}, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOrders_RequireToken(t *testing.T) {
	s := newServer(t)

	status, body := s.do(http.MethodGet, "/api/orders/mine", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, body.Success)

	status, _ = s.do(http.MethodGet, "/api/orders/mine", nil, nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestOrders_CashFlow(t *testing.T) {
	s := newServer(t)

	status, body := s.do(http.MethodPost, "/api/orders", s.orderInput(), &s.student, nil)
	require.Equal(t, http.StatusCreated, status, body.Message)
	var order model.OrderResponse
	require.NoError(t, json.Unmarshal(body.Data, &order))
	assert.Equal(t, model.OrderPlaced, order.Status)
	assert.Equal(t, 180.0, order.Total)

	status, body = s.do(http.MethodGet, "/api/orders/mine", nil, &s.student, nil)
	require.Equal(t, http.StatusOK, status)
	var mine []model.OrderResponse
	require.NoError(t, json.Unmarshal(body.Data, &mine))
	assert.Len(t, mine, 1)

	status, _ = s.do(http.MethodGet, "/api/canteen/orders?canteenId=1", nil, &s.student, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(http.MethodGet, "/api/canteen/orders?canteenId="+jsonNumber(s.canteen.ID), nil, &s.vendor, nil)
	require.Equal(t, http.StatusOK, status)
	var live []model.OrderResponse
	require.NoError(t, json.Unmarshal(body.Data, &live))
	assert.Len(t, live, 1)

	path := "/api/orders/" + jsonNumber(order.ID) + "/status"
	status, _ = s.do(http.MethodPatch, path, map[string]string{"status": "preparing"}, &s.student, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(http.MethodPatch, path, map[string]string{"status": "preparing"}, &s.vendor, nil)
	require.Equal(t, http.StatusOK, status, body.Message)
	require.NoError(t, json.Unmarshal(body.Data, &order))
	assert.Equal(t, model.OrderPreparing, order.Status)

	status, _ = s.do(http.MethodPatch, path, map[string]string{"status": "placed"}, &s.vendor, nil)
	assert.Equal(t, http.StatusBadRequest, status, "placed is not a target status")
}

func TestOrders_PolicyErrorsAre400(t *testing.T) {
	s := newServer(t)

	input := s.orderInput()
	input["pickupTime"] = time.Now().Add(time.Minute).Format(time.RFC3339)
	status, body := s.do(http.MethodPost, "/api/orders", input, &s.student, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Message, "pickup time")

	status, _ = s.do(http.MethodGet, "/api/orders/999", nil, &s.student, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(http.MethodGet, "/api/orders/abc", nil, &s.student, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebhook(t *testing.T) {
	s := newServer(t)
	payload := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_unknown","amount":100,"currency":"INR","status":"captured"}}}}`)

	status, body := s.do(http.MethodPost, "/api/payments/webhook", payload, nil, map[string]string{constants.HEADER_SIGNATURE: "bad"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Success)
	var count int64
	s.db.Model(&model.WebhookEvent{}).Count(&count)
	assert.Zero(t, count)

	sig := gateway.HMACSHA256{}.Sign(payload, webhookSecret)
	status, body = s.do(http.MethodPost, "/api/payments/webhook", payload, nil, map[string]string{
		constants.HEADER_SIGNATURE: sig,
		constants.HEADER_EVENT_ID:  "evt_1",
	})
	assert.Equal(t, http.StatusOK, status, "reconciliation failures are still acknowledged")
	var ack struct {
		EventID string              `json:"eventId"`
		Status  model.WebhookStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &ack))
	assert.Equal(t, "evt_1", ack.EventID)
	assert.Equal(t, model.WebhookFailed, ack.Status)
}

func TestGroupOrders(t *testing.T) {
	s := newServer(t)

	status, body := s.do(http.MethodPost, "/api/group-orders", map[string]any{"canteenId": s.canteen.ID}, &s.student, nil)
	require.Equal(t, http.StatusCreated, status, body.Message)
	var group model.GroupOrderResponse
	require.NoError(t, json.Unmarshal(body.Data, &group))
	assert.NotEmpty(t, group.JoinCode)
	assert.NotEmpty(t, group.QRCode)

	status, _ = s.do(http.MethodGet, "/api/group-orders/"+jsonNumber(group.ID), nil, &s.vendor, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(http.MethodPost, "/api/group-orders/join", map[string]any{}, &s.student, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func jsonNumber(id uint) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
