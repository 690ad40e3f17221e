package messaging

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"learnhub-backend/internal/attachment"
	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/middleware"
	"learnhub-backend/internal/service/messaging"
	"learnhub-backend/pkg/response"
)

// Handler adapts HTTP requests to the messaging service
type Handler struct {
	service  *messaging.Service
	uploader attachment.Uploader
}

// NewHandler creates a new messaging handler. uploader may be nil when
// attachment storage is not configured.
func NewHandler(service *messaging.Service, uploader attachment.Uploader) *Handler {
	return &Handler{
		service:  service,
		uploader: uploader,
	}
}

// RegisterRoutes mounts the messaging REST surface on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations", h.CreateConversation)
	rg.GET("/conversations", h.ListConversations)
	rg.GET("/conversations/:id", h.GetConversation)
	rg.DELETE("/conversations/:id", h.DeleteConversation)
	rg.PATCH("/conversations/:id", h.UpdateConversation)
	rg.POST("/conversations/:id/participants", h.AddParticipants)
	rg.POST("/conversations/:id/leave", h.LeaveConversation)
	rg.PATCH("/conversations/:id/participants/:userID/role", h.UpdateParticipantRole)
	rg.POST("/conversations/:id/mute", h.MuteConversation)
	rg.POST("/conversations/:id/read", h.MarkMessagesAsRead)
	rg.GET("/conversations/:id/messages", h.GetMessages)

	rg.POST("/messages", h.SendMessage)
	rg.PATCH("/messages/:id", h.UpdateMessage)
	rg.DELETE("/messages/:id", h.DeleteMessage)
	rg.POST("/messages/:id/read", h.MarkMessageAsRead)
	rg.POST("/messages/:id/reactions", h.AddReaction)
	rg.DELETE("/messages/:id/reactions/:emoji", h.RemoveReaction)
	rg.GET("/messages/search", h.SearchMessages)

	rg.POST("/attachments", h.UploadAttachment)
}

// CreateConversation creates a direct or group conversation
// POST /v1/conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.ConversationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conv, err := h.service.CreateConversation(c.Request.Context(), userID, &req)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, conv)
}

// ListConversations lists the caller's conversations
// GET /v1/conversations?kind=&search=&page=&limit=
func (h *Handler) ListConversations(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.service.ListConversations(c.Request.Context(), userID, &messaging.ListConversationsInput{
		Kind:   c.Query("kind"),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetConversation returns one hydrated conversation
// GET /v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
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

	conv, err := h.service.GetConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// DeleteConversation soft-deletes a conversation for all participants
// DELETE /v1/conversations/:id
func (h *Handler) DeleteConversation(c *gin.Context) {
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

	if err := h.service.DeleteConversation(c.Request.Context(), conversationID, userID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// UpdateConversation updates name/description
// PATCH /v1/conversations/:id
func (h *Handler) UpdateConversation(c *gin.Context) {
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

	var req domain.ConversationUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conv, err := h.service.UpdateConversationMeta(c.Request.Context(), conversationID, userID, &req)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// AddParticipantsRequest carries the users to add
type AddParticipantsRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1"`
}

// AddParticipants adds members to a group conversation
// POST /v1/conversations/:id/participants
func (h *Handler) AddParticipants(c *gin.Context) {
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

	var req AddParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.service.AddParticipants(c.Request.Context(), conversationID, userID, req.UserIDs); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"added": len(req.UserIDs)})
}

// LeaveConversation removes the caller from the conversation
// POST /v1/conversations/:id/leave
func (h *Handler) LeaveConversation(c *gin.Context) {
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

	if err := h.service.LeaveConversation(c.Request.Context(), conversationID, userID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// UpdateRoleRequest carries the new role
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=member admin"`
}

// UpdateParticipantRole changes a participant's role
// PATCH /v1/conversations/:id/participants/:userID/role
func (h *Handler) UpdateParticipantRole(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	targetID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.service.UpdateParticipantRole(c.Request.Context(), conversationID, callerID, targetID, req.Role); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"role": req.Role})
}

// MuteRequest carries the mute flag
type MuteRequest struct {
	IsMuted bool `json:"is_muted"`
}

// MuteConversation flips the caller's mute flag
// POST /v1/conversations/:id/mute
func (h *Handler) MuteConversation(c *gin.Context) {
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

	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.service.MuteConversation(c.Request.Context(), conversationID, userID, req.IsMuted); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"is_muted": req.IsMuted})
}
