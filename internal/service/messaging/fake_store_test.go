package messaging

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/store"
)

// fakeStore is an in-memory store.Store used to exercise the service's
// business rules without a database.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*domain.Conversation
	participants  map[uuid.UUID]map[uuid.UUID]*domain.ConversationParticipant
	messages      map[uuid.UUID]*domain.Message
	reactions     map[uuid.UUID]map[string]*domain.MessageReaction
	reads         map[uuid.UUID]map[uuid.UUID]*domain.MessageRead
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[uuid.UUID]*domain.Conversation),
		participants:  make(map[uuid.UUID]map[uuid.UUID]*domain.ConversationParticipant),
		messages:      make(map[uuid.UUID]*domain.Message),
		reactions:     make(map[uuid.UUID]map[string]*domain.MessageReaction),
		reads:         make(map[uuid.UUID]map[uuid.UUID]*domain.MessageRead),
	}
}

func (f *fakeStore) Conversations() store.ConversationStore { return f }
func (f *fakeStore) Messages() store.MessageStore           { return f }

func (f *fakeStore) CreateConversation(_ context.Context, conv *domain.Conversation, participants []*domain.ConversationParticipant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := *conv
	f.conversations[conv.ConversationID] = &c
	f.participants[conv.ConversationID] = make(map[uuid.UUID]*domain.ConversationParticipant)
	for _, p := range participants {
		row := *p
		f.participants[conv.ConversationID][p.UserID] = &row
	}
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *conv
	return &c, nil
}

func (f *fakeStore) GetParticipants(_ context.Context, conversationID uuid.UUID, activeOnly bool) ([]*domain.ConversationParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.ConversationParticipant
	for _, p := range f.participants[conversationID] {
		if activeOnly && p.LeftAt != nil {
			continue
		}
		row := *p
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (f *fakeStore) GetParticipant(_ context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.participants[conversationID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	row := *p
	return &row, nil
}

func (f *fakeStore) ListByParticipant(_ context.Context, userID uuid.UUID, filter store.ConversationFilter) ([]*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*domain.Conversation
	for id, conv := range f.conversations {
		p, ok := f.participants[id][userID]
		if !ok || p.LeftAt != nil {
			continue
		}
		if filter.Kind != "" && conv.Kind != filter.Kind {
			continue
		}
		if filter.Search != "" {
			name := ""
			if conv.Name != nil {
				name = *conv.Name
			}
			if !strings.Contains(strings.ToLower(name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		c := *conv
		matched = append(matched, &c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (f *fakeStore) CountByParticipant(ctx context.Context, userID uuid.UUID, filter store.ConversationFilter) (int64, error) {
	all, err := f.ListByParticipant(ctx, userID, store.ConversationFilter{
		Kind:   filter.Kind,
		Search: filter.Search,
		Limit:  len(f.conversations) + 1,
	})
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (f *fakeStore) UpsertParticipant(_ context.Context, conversationID, userID uuid.UUID, role string) (*domain.ConversationParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.conversations[conversationID]; !ok {
		return nil, store.ErrNotFound
	}
	rows := f.participants[conversationID]
	if rows == nil {
		rows = make(map[uuid.UUID]*domain.ConversationParticipant)
		f.participants[conversationID] = rows
	}

	if p, ok := rows[userID]; ok {
		p.LeftAt = nil
		row := *p
		return &row, nil
	}

	p := &domain.ConversationParticipant{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		JoinedAt:       time.Now(),
	}
	rows[userID] = p
	row := *p
	return &row, nil
}

func (f *fakeStore) SetParticipantLeft(_ context.Context, conversationID, userID uuid.UUID, leftAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.participants[conversationID][userID]
	if !ok {
		return store.ErrNotFound
	}
	t := leftAt
	p.LeftAt = &t
	return nil
}

func (f *fakeStore) SetParticipantRole(_ context.Context, conversationID, userID uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.participants[conversationID][userID]
	if !ok {
		return store.ErrNotFound
	}
	p.Role = role
	return nil
}

func (f *fakeStore) SetParticipantMuted(_ context.Context, conversationID, userID uuid.UUID, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.participants[conversationID][userID]
	if !ok {
		return store.ErrNotFound
	}
	p.IsMuted = muted
	return nil
}

func (f *fakeStore) AdvanceLastRead(_ context.Context, conversationID, userID uuid.UUID, readAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.participants[conversationID][userID]
	if !ok {
		return store.ErrNotFound
	}
	if p.LastReadAt == nil || readAt.After(*p.LastReadAt) {
		t := readAt
		p.LastReadAt = &t
	}
	return nil
}

func (f *fakeStore) TouchConversation(_ context.Context, conversationID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	conv.UpdatedAt = at
	return nil
}

func (f *fakeStore) UpdateConversationMeta(_ context.Context, conversationID uuid.UUID, name, description *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	if name != nil {
		conv.Name = name
	}
	if description != nil {
		conv.Description = description
	}
	return nil
}

func (f *fakeStore) CreateMessage(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := *msg
	f.messages[msg.MessageID] = &m
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, messageID uuid.UUID) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m := *msg
	return &m, nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID uuid.UUID, filter store.MessageFilter) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.Message
	for _, msg := range f.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if filter.Before != nil && !msg.CreatedAt.Before(*filter.Before) {
			continue
		}
		if filter.After != nil && !msg.CreatedAt.After(*filter.After) {
			continue
		}
		m := *msg
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) CountMessages(_ context.Context, conversationID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) UpdateMessageContent(_ context.Context, messageID uuid.UUID, content string, editedAt time.Time) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[messageID]
	if !ok || msg.IsDeleted {
		return nil, store.ErrNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	t := editedAt
	msg.EditedAt = &t
	msg.UpdatedAt = editedAt
	m := *msg
	return &m, nil
}

func (f *fakeStore) SoftDeleteMessage(_ context.Context, messageID uuid.UUID, tombstone string, deletedAt time.Time) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg.Content = tombstone
	msg.IsDeleted = true
	t := deletedAt
	msg.DeletedAt = &t
	msg.UpdatedAt = deletedAt
	m := *msg
	return &m, nil
}

func (f *fakeStore) MarkConversationRead(_ context.Context, conversationID, userID uuid.UUID, readAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, msg := range f.messages {
		if msg.ConversationID != conversationID || msg.IsRead {
			continue
		}
		if msg.ReceiverID == nil || *msg.ReceiverID != userID {
			continue
		}
		msg.IsRead = true
		t := readAt
		msg.ReadAt = &t
		count++
	}
	return count, nil
}

func (f *fakeStore) SetMessageRead(_ context.Context, messageID uuid.UUID, readAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[messageID]
	if !ok {
		return store.ErrNotFound
	}
	msg.IsRead = true
	t := readAt
	msg.ReadAt = &t
	return nil
}

func (f *fakeStore) UpsertReaction(_ context.Context, reaction *domain.MessageReaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows := f.reactions[reaction.MessageID]
	if rows == nil {
		rows = make(map[string]*domain.MessageReaction)
		f.reactions[reaction.MessageID] = rows
	}
	key := reaction.UserID.String() + "|" + reaction.Emoji
	if _, ok := rows[key]; ok {
		return nil
	}
	r := *reaction
	rows[key] = &r
	return nil
}

func (f *fakeStore) DeleteReaction(_ context.Context, messageID, userID uuid.UUID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.reactions[messageID], userID.String()+"|"+emoji)
	return nil
}

func (f *fakeStore) ListReactions(_ context.Context, messageID uuid.UUID) ([]*domain.MessageReaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.MessageReaction
	for _, r := range f.reactions[messageID] {
		row := *r
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) UpsertRead(_ context.Context, read *domain.MessageRead) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows := f.reads[read.MessageID]
	if rows == nil {
		rows = make(map[uuid.UUID]*domain.MessageRead)
		f.reads[read.MessageID] = rows
	}
	r := *read
	rows[read.UserID] = &r
	return nil
}

func (f *fakeStore) CountUnread(_ context.Context, conversationID, userID uuid.UUID, since *time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, msg := range f.messages {
		if msg.ConversationID != conversationID || msg.SenderID == userID || msg.IsDeleted {
			continue
		}
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

func (f *fakeStore) SearchMessages(_ context.Context, userID uuid.UUID, conversationID *uuid.UUID, query string, limit, offset int) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	needle := strings.ToLower(query)
	var out []*domain.Message
	for _, msg := range f.messages {
		if msg.IsDeleted {
			continue
		}
		if conversationID != nil {
			if msg.ConversationID != *conversationID {
				continue
			}
		} else {
			p, ok := f.participants[msg.ConversationID][userID]
			if !ok || p.LeftAt != nil {
				continue
			}
		}
		if !strings.Contains(strings.ToLower(msg.Content), needle) {
			continue
		}
		m := *msg
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeResolver serves synthetic identities for any id it was seeded with
type fakeResolver struct {
	users map[uuid.UUID]*domain.User
}

func newFakeResolver(ids ...uuid.UUID) *fakeResolver {
	users := make(map[uuid.UUID]*domain.User, len(ids))
	for i, id := range ids {
		users[id] = &domain.User{
			UserID:   id,
			Username: "user" + string(rune('a'+i)),
			Email:    "user" + string(rune('a'+i)) + "@learnhub.test",
		}
	}
	return &fakeResolver{users: users}
}

func (f *fakeResolver) Resolve(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeResolver) ResolveMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	out := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
