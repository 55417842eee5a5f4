package handler

import (
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/jinzhu/copier"
)

func toOrderResponse(order *model.Order) model.OrderResponse {
	var resp model.OrderResponse
	_ = copier.Copy(&resp, order)
	return resp
}

func toOrderResponses(orders []model.Order) []model.OrderResponse {
	out := make([]model.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}

func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.CreateOrderInput)

	order, err := h.Engine.Orders.Create(h.ctx(c), actor, input)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, toOrderResponse(order))
}

func (h *Handler) UpdateOrderStatus(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.UpdateOrderStatusInput)

	order, err := h.Engine.Orders.UpdateStatus(h.ctx(c), actor, inputID(c), input.Status)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, toOrderResponse(order))
}

func (h *Handler) GetOrder(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	order, err := h.Engine.Orders.Get(h.ctx(c), actor, inputID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, toOrderResponse(order))
}

func (h *Handler) GetMyOrders(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	orders, err := h.Engine.Orders.ListForStudent(h.ctx(c), actor)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, toOrderResponses(orders))
}

// GetCanteenOrders lists the live orders of ?canteenId= for its vendor.
func (h *Handler) GetCanteenOrders(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	canteenID, err := queryID(c, "canteenId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	orders, err := h.Engine.Orders.ListForCanteen(h.ctx(c), actor, canteenID)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, toOrderResponses(orders))
}
