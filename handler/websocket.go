package handler

import (
	"context"

	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// UpgradeNotifications only lets authenticated websocket upgrades through.
func (h *Handler) UpgradeNotifications(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	claim, ok := helper.GetInfoFromToken(c)
	if !ok {
		return unauthorized(c)
	}
	c.Locals("userId", claim.UserId)
	return c.Next()
}

// NotificationSocket forwards the caller's notification channel until either side closes.
func (h *Handler) NotificationSocket(c *websocket.Conn) {
	userID, _ := c.Locals("userId").(uint)
	defer c.Close()
	if h.Redis == nil || userID == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := h.Redis.Subscribe(ctx, notify.UserChannel(userID))
	defer pubsub.Close()

	// reader: a read error means the client went away
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	channel := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-channel:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
