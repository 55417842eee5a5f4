package router

import (
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/handler"
	"github.com/campusbitesindia/cbBackend-sub000/middleware"
	"github.com/campusbitesindia/cbBackend-sub000/validate"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func SetupRoutes(app *fiber.App, h *handler.Handler) {
	api := app.Group("/api", logger.New())
	protected := middleware.Protected(h.JWTSecret)
	vendor := middleware.RequireRole(constants.ROLE_VENDOR, constants.ROLE_ADMIN)

	auth := api.Group("/auth")
	auth.Post("/login", validate.Login(), h.Login)
	auth.Post("/logout", h.Logout)
	auth.Get("/me", protected, h.Me)

	orders := api.Group("/orders", protected)
	orders.Post("/", validate.CreateOrder(), h.CreateOrder)
	orders.Get("/mine", h.GetMyOrders)
	orders.Get("/:id", validate.GetById("id"), h.GetOrder)
	orders.Patch("/:id/status", validate.GetById("id"), validate.UpdateOrderStatus(), h.UpdateOrderStatus)

	canteen := api.Group("/canteen", protected, vendor)
	canteen.Get("/orders", h.GetCanteenOrders)

	// Server-to-Server
	api.Post("/payments/webhook", h.PaymentWebhook)
	api.Post("/payments/webhook/phonepe", h.PhonePeWebhook)

	payments := api.Group("/payments", protected)
	payments.Post("/order", validate.CreatePaymentIntent(), h.CreatePaymentIntent)
	payments.Post("/verify", validate.VerifyPayment(), h.VerifyPayment)
	payments.Post("/failure", validate.PaymentFailure(), h.ReportPaymentFailure)
	payments.Post("/:id/refund", validate.GetById("id"), validate.Refund(), h.InitiateRefund)
	payments.Get("/:id/refund-status", validate.GetById("id"), h.GetRefundStatus)

	groups := api.Group("/group-orders", protected)
	groups.Post("/", validate.CreateGroupOrder(), h.CreateGroupOrder)
	groups.Post("/join", validate.JoinGroupOrder(), h.JoinGroupOrder)
	groups.Patch("/items", validate.UpdateGroupOrder(), h.UpdateGroupOrder)
	groups.Patch("/status", validate.UpdateGroupStatus(), h.UpdateGroupStatus)
	groups.Get("/:id", validate.GetById("id"), h.GetGroupOrder)

	app.Get("/ws/notifications", protected, h.UpgradeNotifications, websocket.New(h.NotificationSocket))
}
