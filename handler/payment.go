package handler

import (
	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreatePaymentIntent(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.CreatePaymentIntentInput)

	intent, err := h.Engine.Payments.CreatePaymentIntent(h.ctx(c), actor, input.OrderID)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, intent)
}

func (h *Handler) VerifyPayment(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.VerifyPaymentInput)

	order, err := h.Engine.Payments.VerifyPayment(h.ctx(c), actor, input)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, toOrderResponse(order))
}

func (h *Handler) ReportPaymentFailure(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.PaymentFailureInput)

	order, err := h.Engine.Payments.ReportPaymentFailure(h.ctx(c), actor, input)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, toOrderResponse(order))
}

func (h *Handler) InitiateRefund(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.RefundInput)

	txn, err := h.Engine.Payments.InitiateRefund(h.ctx(c), actor, inputID(c), input.Reason)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, txn)
}

func (h *Handler) GetRefundStatus(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	refund, err := h.Engine.Payments.RefundStatus(h.ctx(c), actor, inputID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, refund)
}
