package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"learnhub-backend/internal/store"
)

// Store is the relational backend, backed by a single pgx pool.
type Store struct {
	conversations *ConversationStore
	messages      *MessageStore
}

// NewStore creates the postgres-backed store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		conversations: NewConversationStore(pool),
		messages:      NewMessageStore(pool),
	}
}

// Conversations returns the conversation store.
func (s *Store) Conversations() store.ConversationStore {
	return s.conversations
}

// Messages returns the message store.
func (s *Store) Messages() store.MessageStore {
	return s.messages
}
