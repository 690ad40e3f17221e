package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-backend/internal/domain"
	apperrors "learnhub-backend/pkg/errors"
)

func newTestService(userIDs ...uuid.UUID) (*Service, *fakeStore) {
	st := newFakeStore()
	return NewService(st, newFakeResolver(userIDs...), nil), st
}

func errCode(t *testing.T, err error) apperrors.ErrorCode {
	t.Helper()
	require.Error(t, err)
	return apperrors.GetAppError(err).Code
}

func strPtr(s string) *string { return &s }

func TestCreateDirectConversation(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationKindDirect, conv.Kind)
	assert.Equal(t, u1, conv.CreatedBy)
	require.Len(t, conv.Participants, 2)

	roles := map[uuid.UUID]string{}
	for _, p := range conv.Participants {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, domain.ParticipantRoleAdmin, roles[u1])
	assert.Equal(t, domain.ParticipantRoleMember, roles[u2])

	p, err := st.GetParticipant(ctx, conv.ConversationID, u2)
	require.NoError(t, err)
	assert.True(t, p.IsActive())
}

func TestCreateDirectConversation_DedupesPair(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	first, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	// Same pair in the opposite order, created by the other user
	second, err := svc.CreateConversation(ctx, u2, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u2, u1},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
}

func TestCreateDirectConversation_RejectsBadParticipants(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2, u3)

	// Duplicates collapse to a single participant
	_, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u1},
	})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	_, err = svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2, u3},
	})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))
}

func TestCreateGroupConversation(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2, u3)

	_, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err), "group without a name")

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Algebra study group"),
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	require.NoError(t, err)
	require.Len(t, conv.Participants, 3, "creator is added implicitly")

	for _, p := range conv.Participants {
		if p.UserID == u1 {
			assert.Equal(t, domain.ParticipantRoleAdmin, p.Role)
		} else {
			assert.Equal(t, domain.ParticipantRoleMember, p.Role)
		}
	}
}

func TestSendMessage_ToConversation(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{
		ConversationID: &conv.ConversationID,
		Content:        "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, conv.ConversationID, msg.ConversationID)
	assert.Equal(t, u1, msg.SenderID)
	require.NotNil(t, msg.ReceiverID, "direct messages carry the other participant")
	assert.Equal(t, u2, *msg.ReceiverID)
	assert.Equal(t, domain.MessageTypeText, msg.Type)
}

func TestSendMessage_ReceiverOnlyCreatesDirect(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{
		ReceiverID: &u2,
		Content:    "first contact",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ConversationID)

	// A second receiver-only send lands in the same conversation
	again, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{
		ReceiverID: &u2,
		Content:    "still here",
	})
	require.NoError(t, err)
	assert.Equal(t, msg.ConversationID, again.ConversationID)
}

func TestSendMessage_Validation(t *testing.T) {
	ctx := context.Background()
	u1 := uuid.New()
	svc, _ := newTestService(u1)

	_, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{Content: "no target"})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	_, err = svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u1, Content: "hi me"})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	convID := uuid.New()
	_, err = svc.SendMessage(ctx, u1, &domain.MessageCreate{ConversationID: &convID, Content: "   "})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err), "whitespace-only content without attachments")
}

func TestSendMessage_AttachmentOnly(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{
		ReceiverID: &u2,
		Type:       domain.MessageTypeFile,
		Attachments: []domain.Attachment{
			{Filename: "notes.pdf", URL: "https://files.learnhub.test/notes.pdf", Size: 1024, MimeType: "application/pdf"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "notes.pdf", msg.Attachments[0].Filename)
}

func TestSendMessage_ReplyTargetMustShareConversation(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3, u4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2, u3, u4)

	private, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{
		ReceiverID: &u2,
		Content:    "the secret exam answers",
	})
	require.NoError(t, err)

	// A reply across the conversation boundary must never leak content
	_, err = svc.SendMessage(ctx, u3, &domain.MessageCreate{
		ReceiverID: &u4,
		Content:    "what was that?",
		ReplyToID:  &private.MessageID,
	})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	missing := uuid.New()
	_, err = svc.SendMessage(ctx, u1, &domain.MessageCreate{
		ConversationID: &private.ConversationID,
		Content:        "dangling",
		ReplyToID:      &missing,
	})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	// Replying inside the same conversation works and hydrates the target
	reply, err := svc.SendMessage(ctx, u2, &domain.MessageCreate{
		ConversationID: &private.ConversationID,
		Content:        "got it",
		ReplyToID:      &private.MessageID,
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "the secret exam answers", reply.ReplyTo.Content)
}

func TestSendMessage_ConcurrentFirstSends(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Office hours"),
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	const sends = 16
	errs := make(chan error, sends)
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendMessage(ctx, u3, &domain.MessageCreate{
				ConversationID: &conv.ConversationID,
				Content:        "hello",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	participants, err := st.GetParticipants(ctx, conv.ConversationID, true)
	require.NoError(t, err)
	var rows int
	for _, p := range participants {
		if p.UserID == u3 {
			rows++
		}
	}
	assert.Equal(t, 1, rows, "concurrent first sends leave exactly one membership row")

	total, err := st.CountMessages(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, int64(sends), total)
}

func TestSendMessage_HealsMembership(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Physics"),
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	// u3 has no membership row at all
	_, err = svc.SendMessage(ctx, u3, &domain.MessageCreate{
		ConversationID: &conv.ConversationID,
		Content:        "can I join?",
	})
	require.NoError(t, err)

	p, err := st.GetParticipant(ctx, conv.ConversationID, u3)
	require.NoError(t, err)
	assert.True(t, p.IsActive())
	assert.Equal(t, domain.ParticipantRoleMember, p.Role)

	// A participant who left is reactivated by sending
	require.NoError(t, svc.LeaveConversation(ctx, conv.ConversationID, u2))
	_, err = svc.SendMessage(ctx, u2, &domain.MessageCreate{
		ConversationID: &conv.ConversationID,
		Content:        "back again",
	})
	require.NoError(t, err)

	p, err = st.GetParticipant(ctx, conv.ConversationID, u2)
	require.NoError(t, err)
	assert.True(t, p.IsActive())
}

func TestGetMessages_ChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{
			ConversationID: &conv.ConversationID,
			Content:        content,
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	result, err := svc.GetMessages(ctx, conv.ConversationID, u2, &GetMessagesInput{})
	require.NoError(t, err)

	messages, ok := result.Data.([]*domain.MessageResponse)
	require.True(t, ok)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Content)
	assert.Equal(t, "three", messages[2].Content)
	assert.Equal(t, int64(3), result.Pagination.Total)
}

func TestGetMessages_HealsMembership(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("History"),
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	_, err = svc.GetMessages(ctx, conv.ConversationID, u3, &GetMessagesInput{})
	require.NoError(t, err)

	p, err := st.GetParticipant(ctx, conv.ConversationID, u3)
	require.NoError(t, err)
	assert.True(t, p.IsActive())
}

func TestUpdateMessage(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: "typo"})
	require.NoError(t, err)

	_, err = svc.UpdateMessage(ctx, msg.MessageID, u2, "not yours")
	assert.Equal(t, apperrors.ErrCodeNotMessageSender, errCode(t, err))

	updated, err := svc.UpdateMessage(ctx, msg.MessageID, u1, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", updated.Content)
	assert.True(t, updated.IsEdited)
	require.NotNil(t, updated.EditedAt)
}

func TestDeleteMessage_Tombstone(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: "regret"})
	require.NoError(t, err)

	_, err = svc.DeleteMessage(ctx, msg.MessageID, u2)
	assert.Equal(t, apperrors.ErrCodeNotMessageSender, errCode(t, err))

	deleted, err := svc.DeleteMessage(ctx, msg.MessageID, u1)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, domain.DeletedMessageContent, deleted.Content)

	// Tombstoned messages cannot be edited
	_, err = svc.UpdateMessage(ctx, msg.MessageID, u1, "undo")
	assert.Equal(t, apperrors.ErrCodeMessageNotFound, errCode(t, err))

	// But they keep their position in history
	result, err := svc.GetMessages(ctx, msg.ConversationID, u2, &GetMessagesInput{})
	require.NoError(t, err)
	messages := result.Data.([]*domain.MessageResponse)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.DeletedMessageContent, messages[0].Content)
}

func TestMarkMessagesAsRead(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	var convID uuid.UUID
	for _, content := range []string{"a", "b"} {
		msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: content})
		require.NoError(t, err)
		convID = msg.ConversationID
	}

	count, err := svc.MarkMessagesAsRead(ctx, convID, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Repeating is a no-op
	count, err = svc.MarkMessagesAsRead(ctx, convID, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// The viewer's unread count drops to zero
	conv, err := svc.GetConversation(ctx, convID, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), conv.UnreadCount)

	_, err = svc.MarkMessagesAsRead(ctx, convID, uuid.New())
	assert.Equal(t, apperrors.ErrCodeNotParticipant, errCode(t, err))
}

func TestUnreadCountExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	first, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: "keep"})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: "retract"})
	require.NoError(t, err)

	conv, err := svc.GetConversation(ctx, first.ConversationID, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), conv.UnreadCount)

	msgs, err := svc.GetMessages(ctx, first.ConversationID, u1, &GetMessagesInput{})
	require.NoError(t, err)
	all := msgs.Data.([]*domain.MessageResponse)
	require.Len(t, all, 2)
	_, err = svc.DeleteMessage(ctx, all[1].MessageID, u1)
	require.NoError(t, err)

	conv, err = svc.GetConversation(ctx, first.ConversationID, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conv.UnreadCount, "tombstones never count as unread")
}

func TestMarkMessageAsRead(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: "hi"})
	require.NoError(t, err)

	convID, err := svc.MarkMessageAsRead(ctx, msg.MessageID, u2)
	require.NoError(t, err)
	assert.Equal(t, msg.ConversationID, convID)

	stored, err := st.GetMessage(ctx, msg.MessageID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead, "receiver read flips the coarse flag")

	// Repeat receipt is idempotent
	_, err = svc.MarkMessageAsRead(ctx, msg.MessageID, u2)
	require.NoError(t, err)

	_, err = svc.MarkMessageAsRead(ctx, msg.MessageID, u3)
	assert.Equal(t, apperrors.ErrCodeNotParticipant, errCode(t, err))
}

func TestMarkMessageAsRead_GroupKeepsCoarseFlag(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Chemistry"),
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{
		ConversationID: &conv.ConversationID,
		Content:        "lab at 3pm",
	})
	require.NoError(t, err)

	_, err = svc.MarkMessageAsRead(ctx, msg.MessageID, u2)
	require.NoError(t, err)

	stored, err := st.GetMessage(ctx, msg.MessageID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead, "group messages have no single receiver")
}

func TestReactions(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: "great news"})
	require.NoError(t, err)

	_, _, err = svc.AddReaction(ctx, msg.MessageID, u2, "")
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	_, _, err = svc.AddReaction(ctx, msg.MessageID, u3, "🎉")
	assert.Equal(t, apperrors.ErrCodeNotParticipant, errCode(t, err))

	reaction, convID, err := svc.AddReaction(ctx, msg.MessageID, u2, "🎉")
	require.NoError(t, err)
	assert.Equal(t, msg.ConversationID, convID)
	assert.Equal(t, "🎉", reaction.Emoji)

	// Re-adding the same triple leaves one row
	_, _, err = svc.AddReaction(ctx, msg.MessageID, u2, "🎉")
	require.NoError(t, err)

	reactions, err := st.ListReactions(ctx, msg.MessageID)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)

	_, err = svc.RemoveReaction(ctx, msg.MessageID, u2, "🎉")
	require.NoError(t, err)

	// Removing a reaction that does not exist is a silent no-op
	_, err = svc.RemoveReaction(ctx, msg.MessageID, u2, "🎉")
	require.NoError(t, err)

	reactions, err = st.ListReactions(ctx, msg.MessageID)
	require.NoError(t, err)
	assert.Empty(t, reactions)
}

func TestSearchMessages(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2, u3)

	msg, err := svc.SendMessage(ctx, u1, &domain.MessageCreate{ReceiverID: &u2, Content: "homework deadline Friday"})
	require.NoError(t, err)

	_, err = svc.SearchMessages(ctx, u1, &SearchMessagesInput{Query: "  "})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	_, err = svc.SearchMessages(ctx, u3, &SearchMessagesInput{
		ConversationID: &msg.ConversationID,
		Query:          "homework",
	})
	assert.Equal(t, apperrors.ErrCodeNotParticipant, errCode(t, err))

	results, err := svc.SearchMessages(ctx, u2, &SearchMessagesInput{Query: "DEADLINE"})
	require.NoError(t, err)
	require.Len(t, results, 1, "matching is case-insensitive")
	assert.Equal(t, msg.MessageID, results[0].MessageID)

	// Deleted content is never matched
	_, err = svc.DeleteMessage(ctx, msg.MessageID, u1)
	require.NoError(t, err)

	results, err = svc.SearchMessages(ctx, u2, &SearchMessagesInput{Query: "deadline"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	group, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Announcements"),
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	require.NoError(t, err)

	err = svc.DeleteConversation(ctx, group.ConversationID, u2)
	assert.Equal(t, apperrors.ErrCodeForbidden, errCode(t, err), "member cannot delete a group")

	require.NoError(t, svc.DeleteConversation(ctx, group.ConversationID, u1))

	for _, id := range []uuid.UUID{u1, u2, u3} {
		p, err := st.GetParticipant(ctx, group.ConversationID, id)
		require.NoError(t, err)
		assert.False(t, p.IsActive())
	}

	// Any active participant may delete a direct conversation
	direct, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteConversation(ctx, direct.ConversationID, u2))
}

func TestLeaveConversation(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Book club"),
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	require.NoError(t, err)

	require.NoError(t, svc.LeaveConversation(ctx, conv.ConversationID, u2))

	p, err := st.GetParticipant(ctx, conv.ConversationID, u2)
	require.NoError(t, err)
	assert.False(t, p.IsActive())

	// Leaving twice is rejected: the membership is no longer active
	err = svc.LeaveConversation(ctx, conv.ConversationID, u2)
	assert.Equal(t, apperrors.ErrCodeNotParticipant, errCode(t, err))

	// Others are untouched
	p, err = st.GetParticipant(ctx, conv.ConversationID, u3)
	require.NoError(t, err)
	assert.True(t, p.IsActive())
}

func TestAddParticipants(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3, u4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3, u4)

	direct, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	err = svc.AddParticipants(ctx, direct.ConversationID, u1, []uuid.UUID{u3})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err), "direct conversations stay two-party")

	group, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Project team"),
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	require.NoError(t, err)

	err = svc.AddParticipants(ctx, group.ConversationID, u2, []uuid.UUID{u4})
	assert.Equal(t, apperrors.ErrCodeForbidden, errCode(t, err), "member cannot add participants")

	require.NoError(t, svc.AddParticipants(ctx, group.ConversationID, u1, []uuid.UUID{u4}))

	p, err := st.GetParticipant(ctx, group.ConversationID, u4)
	require.NoError(t, err)
	assert.True(t, p.IsActive())
	assert.Equal(t, domain.ParticipantRoleMember, p.Role)
}

func TestUpdateParticipantRole(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2, u3)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Moderators"),
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	require.NoError(t, err)

	err = svc.UpdateParticipantRole(ctx, conv.ConversationID, u1, u2, "owner")
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	err = svc.UpdateParticipantRole(ctx, conv.ConversationID, u2, u3, domain.ParticipantRoleAdmin)
	assert.Equal(t, apperrors.ErrCodeForbidden, errCode(t, err))

	err = svc.UpdateParticipantRole(ctx, conv.ConversationID, u1, uuid.New(), domain.ParticipantRoleAdmin)
	assert.Equal(t, apperrors.ErrCodeNotFound, errCode(t, err))

	require.NoError(t, svc.UpdateParticipantRole(ctx, conv.ConversationID, u1, u2, domain.ParticipantRoleAdmin))

	p, err := st.GetParticipant(ctx, conv.ConversationID, u2)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantRoleAdmin, p.Role)
}

func TestMuteConversation(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, st := newTestService(u1, u2)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	require.NoError(t, svc.MuteConversation(ctx, conv.ConversationID, u2, true))

	p, err := st.GetParticipant(ctx, conv.ConversationID, u2)
	require.NoError(t, err)
	assert.True(t, p.IsMuted)

	require.NoError(t, svc.MuteConversation(ctx, conv.ConversationID, u2, false))

	p, err = st.GetParticipant(ctx, conv.ConversationID, u2)
	require.NoError(t, err)
	assert.False(t, p.IsMuted)
}

func TestUpdateConversationMeta(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Old name"),
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	_, err = svc.UpdateConversationMeta(ctx, conv.ConversationID, u2, &domain.ConversationUpdate{
		Name: strPtr("New name"),
	})
	assert.Equal(t, apperrors.ErrCodeForbidden, errCode(t, err))

	_, err = svc.UpdateConversationMeta(ctx, conv.ConversationID, u1, &domain.ConversationUpdate{
		Name: strPtr(""),
	})
	assert.Equal(t, apperrors.ErrCodeValidation, errCode(t, err))

	updated, err := svc.UpdateConversationMeta(ctx, conv.ConversationID, u1, &domain.ConversationUpdate{
		Name:        strPtr("New name"),
		Description: strPtr("Renamed"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "New name", *updated.Name)
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2, u3)

	_, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	_, err = svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindGroup,
		Name:           strPtr("Math revision"),
		ParticipantIDs: []uuid.UUID{u2, u3},
	})
	require.NoError(t, err)

	result, err := svc.ListConversations(ctx, u1, &ListConversationsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Pagination.Total)

	result, err = svc.ListConversations(ctx, u1, &ListConversationsInput{Kind: domain.ConversationKindGroup})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Pagination.Total)

	result, err = svc.ListConversations(ctx, u1, &ListConversationsInput{Search: "math"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Pagination.Total)

	// u3 only belongs to the group
	result, err = svc.ListConversations(ctx, u3, &ListConversationsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Pagination.Total)
}

func TestIsActiveParticipant(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc, _ := newTestService(u1, u2)

	conv, err := svc.CreateConversation(ctx, u1, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{u1, u2},
	})
	require.NoError(t, err)

	ok, err := svc.IsActiveParticipant(ctx, conv.ConversationID, u1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsActiveParticipant(ctx, conv.ConversationID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.LeaveConversation(ctx, conv.ConversationID, u2))
	ok, err = svc.IsActiveParticipant(ctx, conv.ConversationID, u2)
	require.NoError(t, err)
	assert.False(t, ok)
}
