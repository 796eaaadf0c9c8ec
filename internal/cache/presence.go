package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks online users in Redis. A user is online while their key
// lives; heartbeats and websocket traffic from any instance refresh it, and
// nothing deletes it early.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresence(rdb *redis.Client, ttl time.Duration) *Presence {
	return &Presence{rdb: rdb, ttl: ttl}
}

func presenceKey(userID uint) string {
	return fmt.Sprintf("presence:%d", userID)
}

// Touch marks userID online and records the time.
func (p *Presence) Touch(ctx context.Context, userID uint, at time.Time) error {
	return p.rdb.Set(ctx, presenceKey(userID), at.Unix(), p.ttl).Err()
}

// Online reports which of userIDs currently hold a presence key.
func (p *Presence) Online(ctx context.Context, userIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				out[userIDs[i]] = true
			}
		}
	}
	return out, nil
}
