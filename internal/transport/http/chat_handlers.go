package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/service/messaging"
)

// ChatHandlers provides HTTP handlers for direct-message operations.
type ChatHandlers struct {
	messaging *messaging.Service
	log       *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(msgService *messaging.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		messaging: msgService,
		log:       logger,
	}
}

// SendMessageRequest represents the send request body.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Body       string `json:"body" binding:"required"`
	ClientKey  string `json:"client_key"`
}

// SendMessage handles a one-shot message send over REST.
// POST /api/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	viewerID, viewerName, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messaging.SendMessage(c.Request.Context(), viewerID, viewerName, req.ReceiverID, req.Body)
	if err != nil {
		if errors.Is(err, messaging.ErrEmptyBody) ||
			errors.Is(err, messaging.ErrMissingPeer) ||
			errors.Is(err, messaging.ErrSelfMessage) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Int64("receiver_id", req.ReceiverID).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	payload := storeMessagePayload(msg)
	payload.ClientKey = req.ClientKey
	c.JSON(http.StatusCreated, payload)
}

// ListConversations handles fetching the viewer's conversation list snapshot.
// GET /api/conversations
func (h *ChatHandlers) ListConversations(c *gin.Context) {
	viewerID, _, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	convs, err := h.messaging.Conversations(c.Request.Context(), viewerID)
	if err != nil {
		h.log.Error().Err(err).Int64("viewer_id", viewerID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toConversationPayloads(convs))
}

// GetThread handles fetching the full thread with one peer.
// GET /api/conversations/:peer_id/messages
func (h *ChatHandlers) GetThread(c *gin.Context) {
	viewerID, _, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	peerID, err := strconv.ParseInt(c.Param("peer_id"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid peer id"})
		return
	}

	msgs, err := h.messaging.ListBetween(c.Request.Context(), viewerID, peerID)
	if err != nil {
		h.log.Error().Err(err).Int64("peer_id", peerID).Msg("failed to list thread")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	payloads := make([]any, 0, len(msgs))
	for _, m := range msgs {
		payloads = append(payloads, storeMessagePayload(m))
	}
	c.JSON(http.StatusOK, payloads)
}

// MarkThreadRead handles bulk read transition for one thread.
// POST /api/conversations/:peer_id/read
func (h *ChatHandlers) MarkThreadRead(c *gin.Context) {
	viewerID, _, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	peerID, err := strconv.ParseInt(c.Param("peer_id"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid peer id"})
		return
	}

	if err := h.messaging.MarkThreadRead(c.Request.Context(), viewerID, peerID); err != nil {
		h.log.Error().Err(err).Int64("peer_id", peerID).Msg("failed to mark thread read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
