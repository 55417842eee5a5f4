package validate

import (
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/gofiber/fiber/v2"
)

func CreateGroupOrder() fiber.Handler {
	return body[model.CreateGroupOrderInput]()
}

func JoinGroupOrder() fiber.Handler {
	return body[model.JoinGroupOrderInput]()
}

func UpdateGroupOrder() fiber.Handler {
	return body[model.UpdateGroupOrderInput]()
}

func UpdateGroupStatus() fiber.Handler {
	return body[model.UpdateGroupStatusInput]()
}
