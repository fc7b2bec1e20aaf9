package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding a student's active login JTI.
func (r *CacheKeyStruct) StudentSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// SchoolExamsChannel returns the Redis PubSub channel carrying exam changes for a school.
func (r *CacheKeyStruct) SchoolExamsChannel(schoolID string) string {
	return fmt.Sprintf("school:%s:exams", schoolID)
}

// AllExamsChannel is the PubSub channel super admins listen on.
func (r *CacheKeyStruct) AllExamsChannel() string {
	return "exams:all"
}

// UserNotificationsChannel returns the Redis PubSub channel for a user's notifications.
func (r *CacheKeyStruct) UserNotificationsChannel(userID string) string {
	return fmt.Sprintf("user:%s:notifications", userID)
}

var CacheKey = NewCacheKeyStruct()
