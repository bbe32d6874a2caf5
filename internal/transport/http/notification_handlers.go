package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/service/notify"
	"github.com/vendalink/salechat-server/internal/store"
)

// NotificationHandlers provides HTTP handlers for the notification center.
type NotificationHandlers struct {
	notify *notify.Service
	log    *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(notifService *notify.Service, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		notify: notifService,
		log:    logger,
	}
}

// NotificationResponse represents a notification in API responses.
type NotificationResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	Read        bool   `json:"read"`
	ReferenceID *int64 `json:"reference_id,omitempty"`
	TS          int64  `json:"ts"`
}

// UnreadCountResponse represents the bell badge count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

func toNotificationResponse(n *store.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		Title:       n.Title,
		Message:     n.Message,
		Type:        string(n.Type),
		Read:        n.Read,
		ReferenceID: n.ReferenceID,
		TS:          n.CreatedAt.UnixMilli(),
	}
}

// List handles fetching the viewer's notifications, newest first.
// GET /api/notifications
func (h *NotificationHandlers) List(c *gin.Context) {
	viewerID, _, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	notifications, err := h.notify.List(c.Request.Context(), viewerID)
	if err != nil {
		h.log.Error().Err(err).Int64("viewer_id", viewerID).Msg("failed to list notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		response = append(response, toNotificationResponse(n))
	}
	c.JSON(http.StatusOK, response)
}

// MarkRead handles marking one notification as read.
// POST /api/notifications/:id/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	viewerID, _, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid notification id"})
		return
	}

	if err := h.notify.MarkRead(c.Request.Context(), viewerID, id); err != nil {
		h.log.Error().Err(err).Int64("notification_id", id).Msg("failed to mark notification read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkAllRead handles clearing the viewer's unread notifications.
// POST /api/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	viewerID, _, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.notify.MarkAllRead(c.Request.Context(), viewerID); err != nil {
		h.log.Error().Err(err).Int64("viewer_id", viewerID).Msg("failed to mark notifications read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// UnreadCount handles fetching the bell badge count.
// GET /api/notifications/unread-count
func (h *NotificationHandlers) UnreadCount(c *gin.Context) {
	viewerID, _, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	count, err := h.notify.UnreadCount(c.Request.Context(), viewerID)
	if err != nil {
		h.log.Error().Err(err).Int64("viewer_id", viewerID).Msg("failed to count unread notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, UnreadCountResponse{Count: count})
}
