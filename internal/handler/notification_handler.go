package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/middleware"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
)

// NotificationHandler exposes a user's transient notifications.
type NotificationHandler struct {
	notifications *service.NotificationService
	log           zerolog.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		log:           log.With().Str("component", "notification_handler").Logger(),
	}
}

// ListNotifications godoc
// GET /api/v1/notifications
// Returns the caller's notifications that have not expired yet.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	list, err := h.notifications.ListActive(c.Request.Context(), claims.UniqueID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.SuccessList(c, http.StatusOK, gin.H{"notifications": list}, len(list))
}

// StreamNotifications godoc
// GET /api/v1/notifications/stream
// Pushes each new notification of the caller as an SSE frame.
func (h *NotificationHandler) StreamNotifications(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()
	pubsub := h.notifications.Subscribe(reqCtx, claims.UniqueID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON-encoded notifications.
			_, _ = c.Writer.Write([]byte("data: " + msg.Payload + "\n\n"))
			c.Writer.Flush()
		case <-keepAlive.C:
			writeSSE(c, gin.H{"type": "ping"})
		}
	}
}
