package identity

import (
	"context"

	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
)

// Resolver looks up display identities for user ids. The messaging core
// hydrates message and conversation payloads through it; implementations
// must tolerate missing users and return store.ErrNotFound rather than
// fabricating records.
type Resolver interface {
	// Resolve returns the user for the given id.
	Resolve(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// ResolveMany returns the users found for the given ids, keyed by id.
	// Missing users are simply absent from the result, not an error.
	ResolveMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.User, error)
}
