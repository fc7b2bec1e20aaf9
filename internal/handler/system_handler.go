package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
)

const pingTimeout = 2 * time.Second

// SystemHandler reports process and dependency health.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	sessions  *service.ExamSessionService
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, sessions *service.ExamSessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Liveness plus a PostgreSQL and Redis ping. Responds 503 when either is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	status := http.StatusOK

	if err := h.pool.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("PostgreSQL ping failed")
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis ping failed")
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	response.Success(c, status, gin.H{
		"status": map[bool]string{true: "ok", false: "degraded"}[status == http.StatusOK],
		"checks": checks,
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Stats godoc
// GET /api/v1/system/stats
// Runtime figures for super admins: open attempts, queue depth and goroutines.
func (h *SystemHandler) Stats(c *gin.Context) {
	queued, err := h.rdb.LLen(c.Request.Context(), config.WorkerKey.PersistNotificationsQueue).Result()
	if err != nil {
		h.log.Warn().Err(err).Msg("Queue length lookup failed")
		queued = -1
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response.Success(c, http.StatusOK, gin.H{
		"open_attempts":      h.sessions.ActiveCount(),
		"notification_queue": queued,
		"goroutines":         runtime.NumGoroutine(),
		"heap_alloc_bytes":   mem.HeapAlloc,
		"db_total_conns":     h.pool.Stat().TotalConns(),
		"db_acquired_conns":  h.pool.Stat().AcquiredConns(),
		"uptime":             time.Since(h.startTime).Round(time.Second).String(),
		"go_version":         runtime.Version(),
	})
}
