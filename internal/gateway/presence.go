package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// presenceTTL auto-expires presence entries when heartbeats stop
const presenceTTL = 5 * time.Minute

// Presence tracks online users in Redis so other services (and future
// gateway replicas) can observe connectivity.
type Presence struct {
	client *redis.Client
}

// NewPresence creates a new Presence tracker
func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetOnline marks the user online
func (p *Presence) SetOnline(ctx context.Context, userID uuid.UUID) error {
	if err := p.client.Set(ctx, presenceKey(userID), "online", presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	if err := p.client.SAdd(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}
	return nil
}

// SetOffline marks the user offline
func (p *Presence) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if err := p.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	if err := p.client.SRem(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}
	return nil
}

// Refresh extends the presence TTL (heartbeat)
func (p *Presence) Refresh(ctx context.Context, userID uuid.UUID) error {
	if err := p.client.Expire(ctx, presenceKey(userID), presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// IsOnline checks whether the user is currently online
func (p *Presence) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	exists, err := p.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return exists > 0, nil
}
