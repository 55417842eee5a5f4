package middleware

import (
	"errors"
	"strings"

	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/gofiber/fiber/v2"
)

// Protected accepts the access_token cookie or an Authorization: Bearer header.
func Protected(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies("access_token")

		if token == "" {
			auth := c.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.ERROR_UNAUTHORIZED, errors.New("no token"))
		}

		jwtToken, err := helper.ParseToken(token, secret)
		if err != nil || !jwtToken.Valid {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token", err)
		}
		c.Locals("user", jwtToken)

		if _, ok := helper.GetInfoFromToken(c); !ok {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token", errors.New("token has no user"))
		}
		return c.Next()
	}
}

// RequireRole runs after Protected.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claim, ok := helper.GetInfoFromToken(c)
		if !ok {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.ERROR_UNAUTHORIZED, errors.New("no token"))
		}
		if !utils.IsValidValueOfConstant(claim.Role, roles) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, constants.ERROR_FORBIDDEN, errors.New("role "+claim.Role+" not allowed"))
		}
		return c.Next()
	}
}
