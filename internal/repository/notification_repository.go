package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/schoolcbt/internal/model"
)

// NotificationRepository handles short-lived user notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

var notificationCopyColumns = []string{"id", "user_id", "message", "level", "created_at", "expires_at"}

// BulkInsert copies a batch of notifications in one round trip.
func (r *NotificationRepository) BulkInsert(ctx context.Context, batch []model.Notification) error {
	rows := make([][]any, 0, len(batch))
	for _, n := range batch {
		rows = append(rows, []any{n.ID, n.UserID, n.Message, string(n.Level), n.CreatedAt, n.ExpiresAt})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		notificationCopyColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert stores a single notification, ignoring a replayed id.
func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, message, level, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Message, n.Level, n.CreatedAt, n.ExpiresAt)
	return err
}

// ListActive returns a user's notifications that have not expired at now.
func (r *NotificationRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, message, level, created_at, expires_at
		 FROM notifications
		 WHERE user_id = $1 AND expires_at > $2
		 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Level, &n.CreatedAt, &n.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteExpired purges notifications that expired before now.
func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
