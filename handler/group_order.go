package handler

import (
	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateGroupOrder(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.CreateGroupOrderInput)

	group, err := h.Engine.Groups.Create(h.ctx(c), actor, input)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, group)
}

func (h *Handler) JoinGroupOrder(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.JoinGroupOrderInput)

	group, err := h.Engine.Groups.Join(h.ctx(c), actor, input.Link)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, group)
}

func (h *Handler) GetGroupOrder(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	group, err := h.Engine.Groups.Get(h.ctx(c), actor, inputID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, group)
}

// UpdateGroupOrder prices the cart and returns one payment per paying member.
func (h *Handler) UpdateGroupOrder(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.UpdateGroupOrderInput)

	res, err := h.Engine.Groups.Update(h.ctx(c), actor, input)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, res)
}

func (h *Handler) UpdateGroupStatus(c *fiber.Ctx) error {
	actor, ok := helper.GetActor(c)
	if !ok {
		return unauthorized(c)
	}
	input := c.Locals("input").(model.UpdateGroupStatusInput)

	group, err := h.Engine.Groups.UpdateOrderStatus(h.ctx(c), actor, input)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, group)
}
