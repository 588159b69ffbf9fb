package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sy264115809/techshow/internal/lifecycle"
	"github.com/sy264115809/techshow/internal/logger"
)

// AdminHandler handles moderation API requests. Routes registered here are
// expected to sit behind an operator-only ingress rule.
type AdminHandler struct {
	service *lifecycle.Service
}

// NewAdminHandler creates a new admin handler instance
func NewAdminHandler(service *lifecycle.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Disable handles POST /api/admin/channels/:id/disable
func (h *AdminHandler) Disable(c *gin.Context) {
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.Disable(ctx, id)
	if err != nil {
		respondServiceError(c, "disable", err)
		return
	}

	logger.Log.Warn().Int64("channel_id", id).Msg("Channel banned by operator")

	c.JSON(http.StatusOK, FinishResponse{
		Channel:     toChannelResponse(result.Channel),
		Reconcile:   toTaskRef(result.Reconcile),
		ChatDestroy: toTaskRef(result.ChatDestroy),
	})
}

// Enable handles POST /api/admin/channels/:id/enable
func (h *AdminHandler) Enable(c *gin.Context) {
	id, ok := channelIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	channel, err := h.service.Enable(ctx, id)
	if err != nil {
		respondServiceError(c, "enable", err)
		return
	}

	logger.Log.Info().Int64("channel_id", id).Msg("Channel ban lifted by operator")

	c.JSON(http.StatusOK, toChannelResponse(channel))
}

// GetTask handles GET /api/tasks/:id
func (h *AdminHandler) GetTask(c *gin.Context) {
	status, ok := h.service.TaskStatus(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "task_not_found", Message: "Task not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// SetupAdminRoutes registers moderation and task inspection routes
func SetupAdminRoutes(apiGroup *gin.RouterGroup, service *lifecycle.Service) {
	handler := NewAdminHandler(service)

	admin := apiGroup.Group("/admin")
	admin.POST("/channels/:id/disable", handler.Disable)
	admin.POST("/channels/:id/enable", handler.Enable)

	apiGroup.GET("/tasks/:id", handler.GetTask)
}
