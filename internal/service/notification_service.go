package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/model"
)

// NotificationService is the fire-and-forget notification sink. Notify enqueues to
// Redis; the notification worker persists and fans the messages out.
type NotificationService struct {
	rdb   *redis.Client
	store NotificationStore
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(rdb *redis.Client, store NotificationStore, ttl time.Duration, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		rdb:   rdb,
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   log.With().Str("component", "notification_service").Logger(),
	}
}

// Build stamps a notification that auto-dismisses after the configured interval.
func (s *NotificationService) Build(userID, message string, level model.NotificationLevel) model.Notification {
	now := s.now().UTC()
	return model.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Message:   message,
		Level:     level,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
}

// Notify queues a message for userID. Failures are logged, never returned.
func (s *NotificationService) Notify(ctx context.Context, userID, message string, level model.NotificationLevel) {
	n := s.Build(userID, message, level)
	data, err := json.Marshal(n)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal notification")
		return
	}
	// The caller's request may end before the push; the message must still go out.
	ctx = context.WithoutCancel(ctx)
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistNotificationsQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Dropped notification")
	}
}

// ListActive returns the user's notifications that have not been dismissed yet.
func (s *NotificationService) ListActive(ctx context.Context, userID string) ([]model.Notification, error) {
	list, err := s.store.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// Subscribe opens the live notification channel of a user.
func (s *NotificationService) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.UserNotificationsChannel(userID))
}
