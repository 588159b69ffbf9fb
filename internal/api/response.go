// Package api provides the HTTP handlers and request/response types for the
// channel lifecycle service.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sy264115809/techshow/internal/lifecycle"
	"github.com/sy264115809/techshow/internal/logger"
)

// userIDHeader carries the authenticated caller's id. Authentication itself
// is terminated upstream; this service trusts the header.
const userIDHeader = "X-User-ID"

// ErrorResponse represents an error returned by the API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// currentUserID extracts the caller's user id from the request headers
func currentUserID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(userIDHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_user",
			Message: "Missing " + userIDHeader + " header",
		})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_user",
			Message: "Invalid " + userIDHeader + " header",
		})
		return 0, false
	}
	return id, true
}

// channelIDParam parses the :id path parameter
func channelIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid channel ID format",
		})
		return 0, false
	}
	return id, true
}

// respondServiceError maps lifecycle service errors to HTTP responses
func respondServiceError(c *gin.Context, op string, err error) {
	switch {
	case lifecycle.IsChannelNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel_not_found", Message: "Channel not found"})
	case lifecycle.IsUserNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user_not_found", Message: "User not found"})
	case lifecycle.IsNotChannelOwner(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not_owner", Message: "Caller does not own this channel"})
	case lifecycle.IsPreconditionFailed(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "precondition_failed", Message: err.Error()})
	case lifecycle.IsNotAccessible(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not_accessible", Message: "Channel is not accessible"})
	case lifecycle.IsTooManyLiveChannels(err):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "too_many_live", Message: "Live channel limit reached, try again later"})
	case lifecycle.IsMessageOffsetRequired(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "offset_required", Message: "Replay comments must carry a timeline offset"})
	case lifecycle.IsMessageThrottled(err):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "throttled", Message: "Messages sent too frequently"})
	case lifecycle.IsStreamBusy(err):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "stream_busy", Message: "Stream is busy with another publish"})
	default:
		logger.Log.Error().Err(err).Str("op", op).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: op + "_failed", Message: "Internal error"})
	}
}
