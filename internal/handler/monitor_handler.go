package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/middleware"
	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams the live exam list of a school to admins.
type MonitorHandler struct {
	feed *service.ExamFeedService
	log  zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(feed *service.ExamFeedService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		feed: feed,
		log:  log.With().Str("component", "monitor_handler").Logger(),
	}
}

// feedEvent is one SSE message of the exam feed.
type feedEvent struct {
	Type   string              `json:"type"`
	Change *service.ExamChange `json:"change,omitempty"`
	Exams  []model.ExamSummary `json:"exams"`
}

// ExamFeedSSE godoc
// GET /api/v1/admin/exams/feed
// Pushes the full exam list of the admin's school on connect and after every change.
// Super admins receive every school.
func (h *MonitorHandler) ExamFeedSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	schoolID := claims.SchoolID
	if claims.Role == model.RoleSuperAdmin {
		schoolID = ""
	} else if schoolID == "" {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	reqCtx := c.Request.Context()

	// Subscribe before the first snapshot so no change falls in between.
	pubsub := h.feed.Subscribe(reqCtx, schoolID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.sendSnapshot(c, reqCtx, schoolID, nil)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Info().Str("school_id", schoolID).Str("by", claims.UniqueID).Msg("Admin attached to exam feed")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("school_id", schoolID).Msg("Admin detached from exam feed")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change service.ExamChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				h.log.Warn().Err(err).Msg("Discarding malformed exam change")
				continue
			}
			h.sendSnapshot(c, reqCtx, schoolID, &change)

		case <-keepAlive.C:
			writeSSE(c, gin.H{"type": "ping"})
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, schoolID string, change *service.ExamChange) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	exams, err := h.feed.Snapshot(ctx, schoolID)
	if err != nil {
		h.log.Warn().Err(err).Str("school_id", schoolID).Msg("Exam feed snapshot failed")
		return
	}
	writeSSE(c, feedEvent{Type: "exams", Change: change, Exams: exams})
}

// writeSSE writes v as one SSE data frame and flushes it.
func writeSSE(c *gin.Context, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
