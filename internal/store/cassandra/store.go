// Package cassandra is the document-store variant of the messaging store.
// Data is denormalized the way the keyspace expects it:
//
//	conversations               ((conversation_id))
//	participants_by_conversation ((conversation_id), user_id)
//	conversations_by_user        ((user_id), conversation_id)
//	messages_by_conversation     ((conversation_id), created_at, message_id) DESC
//	messages_by_id               ((message_id))
//	reactions_by_message         ((message_id), user_id, emoji)
//	reads_by_message             ((message_id), user_id)
//
// CQL INSERT is already an upsert; reactivation and tombstoning use
// lightweight transactions so the uniqueness semantics match the relational
// backend. Predicates CQL cannot express (ILIKE search, kind/name filters)
// are evaluated on fetched partitions instead.
package cassandra

import (
	"github.com/gocql/gocql"

	"learnhub-backend/internal/store"
)

// Store is the Cassandra-backed store.
type Store struct {
	conversations *ConversationStore
	messages      *MessageStore
}

// NewStore creates the cassandra-backed store.
func NewStore(session *gocql.Session) *Store {
	conversations := NewConversationStore(session)
	return &Store{
		conversations: conversations,
		messages:      NewMessageStore(session, conversations),
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
