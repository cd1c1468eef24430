package notify

import (
	"context"
	"fmt"

	platformredis "printhub/internal/platform/redis"
)

// RedisSink pushes events over redis pub/sub. Gateway processes subscribe to
// the room channels and forward messages to their attached websockets.
type RedisSink struct {
	client *platformredis.Client
}

// NewRedisSink creates a sink over the shared redis client.
func NewRedisSink(client *platformredis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// UserChannel names the pub/sub channel for a requester's room.
func UserChannel(userID string) string { return fmt.Sprintf("user:%s", userID) }

// ShopChannel names the pub/sub channel for a shop's room.
func ShopChannel(shopID string) string { return fmt.Sprintf("shop:%s", shopID) }

func (s *RedisSink) NotifyUser(ctx context.Context, userID string, payload []byte) error {
	return s.client.Publish(ctx, UserChannel(userID), payload).Err()
}

func (s *RedisSink) NotifyShop(ctx context.Context, shopID string, payload []byte) error {
	return s.client.Publish(ctx, ShopChannel(shopID), payload).Err()
}
