package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/logging"
	"github.com/campusbitesindia/cbBackend-sub000/service"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Handler struct {
	Engine       *service.Engine
	DB           *gorm.DB
	Redis        *redis.Client
	JWTSecret    []byte
	SecureCookie bool
	Log          *slog.Logger
}

// ctx carries a request-scoped logger into the engine.
func (h *Handler) ctx(c *fiber.Ctx) context.Context {
	log := h.Log
	if log == nil {
		log = logging.Discard()
	}
	log = log.With("method", c.Method(), "path", c.Path())
	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		log = log.With("request_id", rid)
	}
	return logging.IntoContext(c.UserContext(), log)
}

func unauthorized(c *fiber.Ctx) error {
	return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.ERROR_UNAUTHORIZED, nil)
}

func inputID(c *fiber.Ctx) uint {
	id, _ := c.Locals("inputId").(uint)
	return id
}

func queryID(c *fiber.Ctx, key string) (uint, error) {
	v := c.QueryInt(key, 0)
	if v <= 0 {
		return 0, fmt.Errorf("query %s must be a positive number", key)
	}
	return uint(v), nil
}
