package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sy264115809/techshow/internal/gateway"
	"github.com/sy264115809/techshow/internal/lifecycle"
	"github.com/sy264115809/techshow/internal/logger"
	"github.com/sy264115809/techshow/internal/models"
	"github.com/sy264115809/techshow/internal/scheduler"
)

// requestTimeout bounds synchronous handler work; it does not cover the
// background tasks a transition spawns
const requestTimeout = 10 * time.Second

// Request/Response DTOs

// CreateChannelRequest represents a request to create a new channel
type CreateChannelRequest struct {
	Title       string  `json:"title" binding:"required,min=1,max=32"`
	Desc        *string `json:"desc,omitempty"`
	Thumbnail   *string `json:"thumbnail,omitempty"`
	Quality     *int    `json:"quality,omitempty"`
	Orientation *int    `json:"orientation,omitempty"`
}

// ChannelResponse represents a channel in API responses
type ChannelResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Desc        *string    `json:"desc,omitempty"`
	Thumbnail   *string    `json:"thumbnail,omitempty"`
	OwnerID     int64      `json:"owner_id"`
	Status      string     `json:"status"`
	Quality     *int       `json:"quality,omitempty"`
	Orientation *int       `json:"orientation,omitempty"`
	Duration    *int64     `json:"duration,omitempty"`
	VisitCount  int64      `json:"visit_count"`
	LikeCount   int64      `json:"like_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChannelListResponse represents a list of channels
type ChannelListResponse struct {
	Channels []*ChannelResponse `json:"channels"`
}

// TaskRef identifies a background task spawned by a transition
type TaskRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// PublishResponse represents the outcome of publish or resume
type PublishResponse struct {
	Channel  *ChannelResponse  `json:"channel"`
	URLs     *gateway.LiveURLs `json:"urls"`
	Monitor  *TaskRef          `json:"monitor,omitempty"`
	ChatRoom *TaskRef          `json:"chat_room,omitempty"`
}

// FinishResponse represents the outcome of finish or disable
type FinishResponse struct {
	Channel     *ChannelResponse `json:"channel"`
	Reconcile   *TaskRef         `json:"reconcile,omitempty"`
	ChatDestroy *TaskRef         `json:"chat_destroy,omitempty"`
}

// AccessResponse represents what a viewer needs to watch a channel
type AccessResponse struct {
	Channel      *ChannelResponse  `json:"channel"`
	Live         bool              `json:"live"`
	LiveURLs     *gateway.LiveURLs `json:"live_urls,omitempty"`
	PlaybackURL  string            `json:"playback_url,omitempty"`
	Participants int               `json:"participants,omitempty"`
}

// ChannelHandler handles channel lifecycle API requests
type ChannelHandler struct {
	service *lifecycle.Service
}

// NewChannelHandler creates a new channel handler instance
func NewChannelHandler(service *lifecycle.Service) *ChannelHandler {
	return &ChannelHandler{service: service}
}

// toChannelResponse converts a channel model to API response format
func toChannelResponse(ch *models.Channel) *ChannelResponse {
	return &ChannelResponse{
		ID:          ch.ID,
		Title:       ch.Title,
		Desc:        ch.Desc,
		Thumbnail:   ch.Thumbnail,
		OwnerID:     ch.OwnerID,
		Status:      ch.Status.String(),
		Quality:     ch.Quality,
		Orientation: ch.Orientation,
		Duration:    ch.Duration,
		VisitCount:  ch.VisitCount,
		LikeCount:   ch.LikeCount,
		StartedAt:   ch.StartedAt,
		StoppedAt:   ch.StoppedAt,
		CreatedAt:   ch.CreatedAt,
	}
}

// toTaskRef converts a scheduler handle to its API reference
func toTaskRef(h *scheduler.Handle) *TaskRef {
	if h == nil {
		return nil
	}
	status := h.Status()
	return &TaskRef{
		ID:    status.ID.String(),
		Name:  status.Name,
		State: string(status.State),
	}
}

// CreateChannel handles POST /api/channels
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	channel, err := h.service.CreateChannel(ctx, ownerID, lifecycle.CreateChannelParams{
		Title:       req.Title,
		Desc:        req.Desc,
		Thumbnail:   req.Thumbnail,
		Quality:     req.Quality,
		Orientation: req.Orientation,
	})
	if err != nil {
		respondServiceError(c, "create", err)
		return
	}

	logger.Log.Info().
		Int64("channel_id", channel.ID).
		Int64("owner_id", ownerID).
		Msg("Channel created via API")

	c.JSON(http.StatusCreated, toChannelResponse(channel))
}

// ListChannels handles GET /api/channels
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	status := models.ChannelStatus(c.DefaultQuery("status", string(models.StatusPublishing)))

	var ownerID *int64
	if raw := c.Query("owner_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_owner", Message: "Invalid owner_id parameter"})
			return
		}
		ownerID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))  // nolint:errcheck
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0")) // nolint:errcheck

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	channels, err := h.service.ListChannels(ctx, status, ownerID, limit, offset)
	if err != nil {
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_status", Message: "Unknown channel status"})
			return
		}
		respondServiceError(c, "list", err)
		return
	}

	responses := make([]*ChannelResponse, len(channels))
	for i, ch := range channels {
		responses[i] = toChannelResponse(ch)
	}
	c.JSON(http.StatusOK, ChannelListResponse{Channels: responses})
}

// ListOwnChannels handles GET /api/channels/mine
func (h *ChannelHandler) ListOwnChannels(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	channels, err := h.service.ListOwnerChannels(ctx, ownerID)
	if err != nil {
		respondServiceError(c, "list", err)
		return
	}

	responses := make([]*ChannelResponse, len(channels))
	for i, ch := range channels {
		responses[i] = toChannelResponse(ch)
	}
	c.JSON(http.StatusOK, ChannelListResponse{Channels: responses})
}

// GetChannel handles GET /api/channels/:id
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	channel, err := h.service.GetChannel(ctx, id)
	if err != nil {
		respondServiceError(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, toChannelResponse(channel))
}

// Publish handles POST /api/channels/:id/publish
func (h *ChannelHandler) Publish(c *gin.Context) {
	h.publishWith(c, "publish", h.service.Publish)
}

// Resume handles POST /api/channels/:id/resume
func (h *ChannelHandler) Resume(c *gin.Context) {
	h.publishWith(c, "resume", h.service.Resume)
}

func (h *ChannelHandler) publishWith(c *gin.Context, op string, fn func(ctx context.Context, channelID, ownerID int64) (*lifecycle.PublishResult, error)) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := fn(ctx, id, ownerID)
	if err != nil {
		respondServiceError(c, op, err)
		return
	}

	urls := result.URLs
	c.JSON(http.StatusOK, PublishResponse{
		Channel:  toChannelResponse(result.Channel),
		URLs:     &urls,
		Monitor:  toTaskRef(result.Monitor),
		ChatRoom: toTaskRef(result.ChatRoom),
	})
}

// Finish handles POST /api/channels/:id/finish
func (h *ChannelHandler) Finish(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.Finish(ctx, id, ownerID)
	if err != nil {
		respondServiceError(c, "finish", err)
		return
	}

	c.JSON(http.StatusOK, FinishResponse{
		Channel:     toChannelResponse(result.Channel),
		Reconcile:   toTaskRef(result.Reconcile),
		ChatDestroy: toTaskRef(result.ChatDestroy),
	})
}

// Close handles POST /api/channels/:id/close
func (h *ChannelHandler) Close(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	channel, err := h.service.Close(ctx, id, ownerID)
	if err != nil {
		respondServiceError(c, "close", err)
		return
	}
	c.JSON(http.StatusOK, toChannelResponse(channel))
}

// Access handles POST /api/channels/:id/access
func (h *ChannelHandler) Access(c *gin.Context) {
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	info, err := h.service.AccessChannel(ctx, id)
	if err != nil {
		respondServiceError(c, "access", err)
		return
	}

	c.JSON(http.StatusOK, AccessResponse{
		Channel:      toChannelResponse(info.Channel),
		Live:         info.Live,
		LiveURLs:     info.LiveURLs,
		PlaybackURL:  info.PlaybackURL,
		Participants: info.Participants,
	})
}

// Like handles POST /api/channels/:id/like
func (h *ChannelHandler) Like(c *gin.Context) {
	h.rate(c, "like", h.service.Like)
}

// Dislike handles POST /api/channels/:id/dislike
func (h *ChannelHandler) Dislike(c *gin.Context) {
	h.rate(c, "dislike", h.service.Dislike)
}

func (h *ChannelHandler) rate(c *gin.Context, op string, fn func(ctx context.Context, channelID int64) error) {
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := fn(ctx, id); err != nil {
		respondServiceError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetupChannelRoutes registers channel lifecycle routes
func SetupChannelRoutes(apiGroup *gin.RouterGroup, service *lifecycle.Service) {
	handler := NewChannelHandler(service)

	channels := apiGroup.Group("/channels")
	channels.POST("", handler.CreateChannel)
	channels.GET("", handler.ListChannels)
	channels.GET("/mine", handler.ListOwnChannels)
	channels.GET("/:id", handler.GetChannel)
	channels.POST("/:id/publish", handler.Publish)
	channels.POST("/:id/resume", handler.Resume)
	channels.POST("/:id/finish", handler.Finish)
	channels.POST("/:id/close", handler.Close)
	channels.POST("/:id/access", handler.Access)
	channels.POST("/:id/like", handler.Like)
	channels.POST("/:id/dislike", handler.Dislike)
}
