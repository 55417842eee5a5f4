package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func UserChannel(userID uint) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

// Redis publishes each notification on the user's channel; websocket clients subscribe to it.
type Redis struct {
	Client *redis.Client
}

func (r Redis) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis notify: marshal: %w", err)
	}
	if err := r.Client.Publish(ctx, UserChannel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("redis notify: publish: %w", err)
	}
	return nil
}
