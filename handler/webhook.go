package handler

import (
	"errors"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/gofiber/fiber/v2"
)

// PaymentWebhook receives Razorpay callbacks. Only a bad signature or an undecodable body is
// rejected; everything else is acknowledged so the provider stops retrying.
func (h *Handler) PaymentWebhook(c *fiber.Ctx) error {
	return h.webhook(c, constants.PROVIDER_RAZORPAY, c.Get(constants.HEADER_SIGNATURE), c.Get(constants.HEADER_EVENT_ID))
}

func (h *Handler) PhonePeWebhook(c *fiber.Ctx) error {
	return h.webhook(c, constants.PROVIDER_PHONEPE, c.Get(constants.HEADER_PHONEPE_CHECK), c.Get(constants.HEADER_EVENT_ID))
}

func (h *Handler) webhook(c *fiber.Ctx, provider, signature, eventID string) error {
	body := append([]byte(nil), c.Body()...)

	event, err := h.Engine.Webhooks.Handle(h.ctx(c), provider, body, signature, eventID)
	switch {
	case errors.Is(err, apperror.ErrAuth), errors.Is(err, apperror.ErrValidation):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), err)
	case err != nil:
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{
		"eventId": event.EventID,
		"status":  event.Status,
	})
}
