package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of portal roles.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// UniqueIDPrefix is the prefix of generated unique ids for the role.
func (r Role) UniqueIDPrefix() string {
	switch r {
	case RoleStudent:
		return "STU-"
	case RoleTeacher:
		return "TCH-"
	case RoleAdmin:
		return "ADM-"
	case RoleSuperAdmin:
		return "SUP-"
	}
	return ""
}

// User is a portal account. Students are identified across the exam core by UniqueID.
type User struct {
	ID           uuid.UUID `json:"id"`
	UniqueID     string    `json:"unique_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	SchoolID     string    `json:"school_id,omitempty"`
	ClassLevel   string    `json:"class_level,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoginRequest is the email/password login payload for staff.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// StudentLoginRequest is the unique-id login payload for students.
type StudentLoginRequest struct {
	UniqueID string `json:"unique_id" binding:"required,min=4,max=32"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	Token       string   `json:"token"`
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
}
