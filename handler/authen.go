package handler

import (
	"errors"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Login(c *fiber.Ctx) error {
	input := c.Locals("input").(model.LoginInput)

	user, err := helper.GetUserByEmail(h.DB.WithContext(c.UserContext()), input.Email)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR, err)
	}
	if user == nil || !helper.CheckPasswordHash(input.Password, user.Password) {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password", errors.New("credentials mismatch"))
	}

	token, err := helper.GenerateAccessToken(model.TokenClaim{UserId: user.ID, Role: user.Role, Name: user.Name}, h.JWTSecret)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    token,
		Expires:  time.Now().Add(helper.AccessTokenTTL),
		HTTPOnly: true,
		SameSite: "Lax",
		Secure:   h.SecureCookie,
		Path:     "/",
	})

	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{
		"accessToken": token,
		"user":        user,
	})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	c.ClearCookie("access_token")
	return utils.SuccessResponse(c, fiber.StatusOK, nil)
}

func (h *Handler) Me(c *fiber.Ctx) error {
	claim, ok := helper.GetInfoFromToken(c)
	if !ok {
		return unauthorized(c)
	}
	var user model.User
	if err := h.DB.WithContext(c.UserContext()).First(&user, claim.UserId).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.ERROR_UNAUTHORIZED, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, user)
}
