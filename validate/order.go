package validate

import (
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/gofiber/fiber/v2"
)

func CreateOrder() fiber.Handler {
	return body[model.CreateOrderInput]()
}

func UpdateOrderStatus() fiber.Handler {
	return body[model.UpdateOrderStatusInput]()
}

func CreatePaymentIntent() fiber.Handler {
	return body[model.CreatePaymentIntentInput]()
}

func VerifyPayment() fiber.Handler {
	return body[model.VerifyPaymentInput]()
}

func PaymentFailure() fiber.Handler {
	return body[model.PaymentFailureInput]()
}

func Refund() fiber.Handler {
	return optionalBody[model.RefundInput]()
}
