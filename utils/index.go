package utils

import (
	"encoding/json"
	"errors"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/gofiber/fiber/v2"
)

// Detailed adds the underlying error text to error responses. Set from APP_ENV at startup.
var Detailed bool

func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	body := fiber.Map{
		"success": false,
		"message": message,
	}
	if Detailed && err != nil {
		body["error"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

func SuccessResponse(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// HandleError renders an engine error with the status of its kind.
func HandleError(c *fiber.Ctx, err error) error {
	status := apperror.HTTPStatus(err)

	var gwErr *apperror.GatewayError
	if errors.As(err, &gwErr) {
		body := fiber.Map{
			"success": false,
			"message": "Payment gateway error",
			"gateway": fiber.Map{"op": gwErr.Op, "status": gwErr.StatusCode, "payload": gatewayPayload(gwErr.Body)},
		}
		if Detailed {
			body["error"] = err.Error()
		}
		return c.Status(status).JSON(body)
	}

	if status == fiber.StatusInternalServerError {
		return ErrorResponse(c, status, constants.ERROR_INTERNAL_ERROR, err)
	}
	return ErrorResponse(c, status, err.Error(), err)
}

func gatewayPayload(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
