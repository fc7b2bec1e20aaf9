package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLevel is the severity shown to the user.
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

// Notification is a short, auto-dismissing message for one user.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"user_id"`
	Message   string            `json:"message"`
	Level     NotificationLevel `json:"level"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}
