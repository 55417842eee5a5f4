package validate

import (
	"errors"
	"strconv"

	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// GetById stores a positive numeric route param under "inputId".
func GetById(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		value, err := strconv.ParseUint(c.Params(key), 10, 64)
		if err != nil || value == 0 {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, errors.New("params invalid"))
		}
		c.Locals("inputId", uint(value))
		return c.Next()
	}
}

// body parses and validates the request body into T and stores it under "input".
func body[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var input T
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.ERROR_INVALID_INPUT, err)
		}
		if err := validate.Struct(&input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, validationMessage(err), err)
		}
		c.Locals("input", input)
		return c.Next()
	}
}

// optionalBody is body for endpoints whose payload may be omitted entirely.
func optionalBody[T any]() fiber.Handler {
	parse := body[T]()
	return func(c *fiber.Ctx) error {
		if len(c.Body()) == 0 {
			var input T
			c.Locals("input", input)
			return c.Next()
		}
		return parse(c)
	}
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		fe := errs[0]
		return constants.ERROR_INVALID_INPUT + ": " + fe.Field() + " failed " + fe.Tag()
	}
	return constants.ERROR_INVALID_INPUT
}

func Login() fiber.Handler {
	return body[model.LoginInput]()
}
