package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/model"
)

const (
	BatchSize       = 50
	BatchTimeout    = 2 * time.Second
	PollTimeout     = 1 * time.Second // Must be >= 1s to satisfy Redis
	CleanupInterval = time.Minute
)

// NotificationStore is the persistence side of the worker.
type NotificationStore interface {
	BulkInsert(ctx context.Context, batch []model.Notification) error
	Insert(ctx context.Context, n *model.Notification) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NotificationWorker drains the notification queue into PostgreSQL in batches,
// then fans each stored message out on the recipient's PubSub channel.
type NotificationWorker struct {
	store NotificationStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(store NotificationStore, rdb *redis.Client, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]model.Notification, 0, BatchSize)
	lastFlush := time.Now()
	lastCleanup := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}
		if time.Since(lastCleanup) >= CleanupInterval {
			w.cleanup(ctx)
			lastCleanup = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistNotificationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var n model.Notification
		if err := json.Unmarshal([]byte(result[1]), &n); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed notification")
			continue
		}
		buffer = append(buffer, n)
	}
}

// flushSafe stores a batch, requeues what could not be stored and publishes the rest.
func (w *NotificationWorker) flushSafe(ctx context.Context, batch []model.Notification) {
	stored, failed := w.persist(ctx, batch)
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
	if len(stored) > 0 {
		w.publish(ctx, stored)
	}
}

// persist tries one bulk copy and falls back to row-by-row inserts.
func (w *NotificationWorker) persist(ctx context.Context, batch []model.Notification) (stored, failed []model.Notification) {
	err := w.store.BulkInsert(ctx, batch)
	if err == nil {
		return batch, nil
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	for i := range batch {
		if err := w.store.Insert(ctx, &batch[i]); err != nil {
			w.log.Error().Err(err).Str("user_id", batch[i].UserID).Msg("Insert failed, requeueing")
			failed = append(failed, batch[i])
			continue
		}
		stored = append(stored, batch[i])
	}
	return stored, failed
}

func (w *NotificationWorker) publish(ctx context.Context, stored []model.Notification) {
	pipe := w.rdb.Pipeline()
	for _, n := range stored {
		data, err := json.Marshal(n)
		if err != nil {
			continue
		}
		pipe.Publish(ctx, config.CacheKey.UserNotificationsChannel(n.UserID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Int("count", len(stored)).Msg("Publish notifications failed")
	}
}

func (w *NotificationWorker) requeue(ctx context.Context, items []model.Notification) {
	pipe := w.rdb.Pipeline()
	for _, n := range items {
		data, _ := json.Marshal(n)
		pipe.RPush(ctx, config.WorkerKey.PersistNotificationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue notifications")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed notifications")
	time.Sleep(2 * time.Second)
}

func (w *NotificationWorker) cleanup(ctx context.Context) {
	n, err := w.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("Delete expired notifications failed")
		}
		return
	}
	if n > 0 {
		w.log.Debug().Int64("count", n).Msg("Deleted expired notifications")
	}
}

func (w *NotificationWorker) shutdown(buffer []model.Notification) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}
