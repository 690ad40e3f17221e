package messaging

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"learnhub-backend/internal/attachment"
	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/middleware"
	"learnhub-backend/internal/service/messaging"
	"learnhub-backend/pkg/response"
)

// maxAttachmentSize caps multipart uploads at 25 MiB
const maxAttachmentSize = 25 << 20

// SendMessage creates a message in a conversation, or to a receiver directly
// POST /v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.MessageCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), userID, &req)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, msg)
}

// GetMessages pages through a conversation's history, oldest first
// GET /v1/conversations/:id/messages?before=&after=&page=&limit=
func (h *Handler) GetMessages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	input := &messaging.GetMessagesInput{
		Page:  page,
		Limit: limit,
	}
	if before := c.Query("before"); before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			response.ValidationError(c, "Invalid before timestamp")
			return
		}
		input.Before = &t
	}
	if after := c.Query("after"); after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			response.ValidationError(c, "Invalid after timestamp")
			return
		}
		input.After = &t
	}

	result, err := h.service.GetMessages(c.Request.Context(), conversationID, userID, input)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// UpdateMessageRequest carries the replacement content
type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateMessage edits a message's content, sender only
// PATCH /v1/messages/:id
func (h *Handler) UpdateMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	msg, err := h.service.UpdateMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, msg)
}

// DeleteMessage tombstones a message, sender only
// DELETE /v1/messages/:id
func (h *Handler) DeleteMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	msg, err := h.service.DeleteMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, msg)
}

// MarkMessagesAsRead marks all of the caller's unread messages in a conversation
// POST /v1/conversations/:id/read
func (h *Handler) MarkMessagesAsRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	count, err := h.service.MarkMessagesAsRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"marked_read": count})
}

// MarkMessageAsRead records a per-message read receipt
// POST /v1/messages/:id/read
func (h *Handler) MarkMessageAsRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	if _, err := h.service.MarkMessageAsRead(c.Request.Context(), messageID, userID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// ReactionRequest carries the emoji to add
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// AddReaction adds or refreshes the caller's reaction on a message
// POST /v1/messages/:id/reactions
func (h *Handler) AddReaction(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	reaction, _, err := h.service.AddReaction(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, reaction)
}

// RemoveReaction deletes the caller's reaction on a message
// DELETE /v1/messages/:id/reactions/:emoji
func (h *Handler) RemoveReaction(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	emoji := c.Param("emoji")
	if emoji == "" {
		response.ValidationError(c, "Emoji is required")
		return
	}

	if _, err := h.service.RemoveReaction(c.Request.Context(), messageID, userID, emoji); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// SearchMessages searches message content across the caller's conversations
// GET /v1/messages/search?q=&conversation_id=&limit=&offset=
func (h *Handler) SearchMessages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	input := &messaging.SearchMessagesInput{
		Query:  c.Query("q"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := c.Query("conversation_id"); raw != "" {
		conversationID, err := uuid.Parse(raw)
		if err != nil {
			response.ValidationError(c, "Invalid conversation ID")
			return
		}
		input.ConversationID = &conversationID
	}

	results, err := h.service.SearchMessages(c.Request.Context(), userID, input)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, results)
}

// UploadAttachment stores a multipart file and returns its descriptor
// POST /v1/attachments
func (h *Handler) UploadAttachment(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if h.uploader == nil {
		response.ServiceUnavailable(c, "Attachment storage is not configured")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ValidationError(c, "A file field is required")
		return
	}
	if fileHeader.Size > maxAttachmentSize {
		response.ValidationError(c, "File exceeds the maximum allowed size")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.InternalError(c, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	desc, err := h.uploader.Upload(c.Request.Context(), attachment.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Size:        fileHeader.Size,
		Reader:      file,
		UploaderID:  userID.String(),
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, desc)
}
