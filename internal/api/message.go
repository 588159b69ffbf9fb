package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sy264115809/techshow/internal/lifecycle"
	"github.com/sy264115809/techshow/internal/models"
)

// SendMessageRequest represents a request to post a chat message. Offset is
// the timeline position in seconds and is required when commenting on a
// finished channel's recording; it is ignored while the channel is live.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,min=1,max=512"`
	Offset  *int64 `json:"offset" binding:"omitempty,gte=0"`
}

// MessageResponse represents a chat message in API responses
type MessageResponse struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	Offset    int64     `json:"offset"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageResponse carries the stored message and the mirror task, when
// the channel was live
type SendMessageResponse struct {
	Message *MessageResponse `json:"message"`
	Mirror  *TaskRef         `json:"mirror,omitempty"`
}

// MessageListResponse represents a window of channel messages
type MessageListResponse struct {
	Messages []*MessageResponse `json:"messages"`
}

// ComplaintRequest represents a viewer report against a channel
type ComplaintRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=256"`
}

// ComplaintResponse represents a recorded complaint
type ComplaintResponse struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageHandler handles chat message and complaint API requests
type MessageHandler struct {
	service *lifecycle.Service
}

// NewMessageHandler creates a new message handler instance
func NewMessageHandler(service *lifecycle.Service) *MessageHandler {
	return &MessageHandler{service: service}
}

func toMessageResponse(m *models.Message) *MessageResponse {
	return &MessageResponse{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		Offset:    m.Offset,
		CreatedAt: m.CreatedAt,
	}
}

// SendMessage handles POST /api/channels/:id/messages
func (h *MessageHandler) SendMessage(c *gin.Context) {
	authorID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	message, mirror, err := h.service.SendMessage(ctx, id, authorID, req.Content, req.Offset)
	if err != nil {
		respondServiceError(c, "send_message", err)
		return
	}

	c.JSON(http.StatusCreated, SendMessageResponse{
		Message: toMessageResponse(message),
		Mirror:  toTaskRef(mirror),
	})
}

// ListMessages handles GET /api/channels/:id/messages
func (h *MessageHandler) ListMessages(c *gin.Context) {
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	start, err := strconv.ParseInt(c.DefaultQuery("start", "0"), 10, 64)
	if err != nil || start < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_start", Message: "Invalid start parameter"})
		return
	}
	span, err := strconv.ParseInt(c.DefaultQuery("span", "60"), 10, 64)
	if err != nil || span <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_span", Message: "Invalid span parameter"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100")) // nolint:errcheck

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	messages, err := h.service.ListMessages(ctx, id, start, span, limit)
	if err != nil {
		respondServiceError(c, "list_messages", err)
		return
	}

	responses := make([]*MessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = toMessageResponse(m)
	}
	c.JSON(http.StatusOK, MessageListResponse{Messages: responses})
}

// Complain handles POST /api/channels/:id/complaints
func (h *MessageHandler) Complain(c *gin.Context) {
	reporterID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	var req ComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	complaint, err := h.service.Complain(ctx, id, reporterID, req.Reason)
	if err != nil {
		respondServiceError(c, "complain", err)
		return
	}

	c.JSON(http.StatusCreated, ComplaintResponse{
		ID:        complaint.ID,
		ChannelID: complaint.ChannelID,
		CreatedAt: complaint.CreatedAt,
	})
}

// SetupMessageRoutes registers message and complaint routes
func SetupMessageRoutes(apiGroup *gin.RouterGroup, service *lifecycle.Service) {
	handler := NewMessageHandler(service)

	apiGroup.POST("/channels/:id/messages", handler.SendMessage)
	apiGroup.GET("/channels/:id/messages", handler.ListMessages)
	apiGroup.POST("/channels/:id/complaints", handler.Complain)
}
