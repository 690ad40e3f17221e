package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/store"
	"learnhub-backend/pkg/logger"
)

// CachedResolver wraps a Resolver with a Redis read-through cache.
// Cache failures degrade to direct lookups, never to request failures.
type CachedResolver struct {
	inner  Resolver
	client *redis.Client
	ttl    time.Duration
}

// negativeMarker caches directory misses so repeated lookups for a
// deleted user don't hammer the database.
const negativeMarker = "__missing__"

// NewCachedResolver creates a new CachedResolver
func NewCachedResolver(inner Resolver, client *redis.Client, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner:  inner,
		client: client,
		ttl:    ttl,
	}
}

func cacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("identity:user:%s", userID)
}

// Resolve returns the user for the given id, consulting the cache first
func (r *CachedResolver) Resolve(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	key := cacheKey(userID)

	cached, err := r.client.Get(ctx, key).Result()
	if err == nil {
		if cached == negativeMarker {
			return nil, store.ErrNotFound
		}
		user := &domain.User{}
		if jsonErr := json.Unmarshal([]byte(cached), user); jsonErr == nil {
			return user, nil
		}
		// Corrupt cache entry, fall through to the directory
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("identity cache read failed", zap.Error(err))
	}

	user, err := r.inner.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.set(ctx, key, negativeMarker)
		}
		return nil, err
	}

	if data, jsonErr := json.Marshal(user); jsonErr == nil {
		r.set(ctx, key, string(data))
	}

	return user, nil
}

// ResolveMany returns the users found for the given ids, keyed by id
func (r *CachedResolver) ResolveMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	result := make(map[uuid.UUID]*domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cacheKey(id)
	}

	var misses []uuid.UUID
	cached, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("identity cache read failed", zap.Error(err))
		misses = userIDs
	} else {
		for i, raw := range cached {
			value, ok := raw.(string)
			if !ok {
				misses = append(misses, userIDs[i])
				continue
			}
			if value == negativeMarker {
				continue
			}
			user := &domain.User{}
			if jsonErr := json.Unmarshal([]byte(value), user); jsonErr != nil {
				misses = append(misses, userIDs[i])
				continue
			}
			result[user.UserID] = user
		}
	}

	if len(misses) == 0 {
		return result, nil
	}

	resolved, err := r.inner.ResolveMany(ctx, misses)
	if err != nil {
		return nil, err
	}

	for _, id := range misses {
		user, found := resolved[id]
		if !found {
			r.set(ctx, cacheKey(id), negativeMarker)
			continue
		}
		result[id] = user
		if data, jsonErr := json.Marshal(user); jsonErr == nil {
			r.set(ctx, cacheKey(id), string(data))
		}
	}

	return result, nil
}

// Invalidate drops the cached entry for a user
func (r *CachedResolver) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		logger.Warn("identity cache invalidation failed", zap.Error(err))
	}
}

func (r *CachedResolver) set(ctx context.Context, key, value string) {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		logger.Warn("identity cache write failed", zap.Error(err))
	}
}
