package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/schoolcbt/internal/codegen"
	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("another session is already active, please contact admin to reset")
	ErrSessionInvalidated   = errors.New("session invalidated")
)

// uniqueIDLength is the random part of generated user unique ids.
const uniqueIDLength = 8

// Claims extends JWT standard claims with the portal identity.
type Claims struct {
	jwt.RegisteredClaims
	Role        model.Role `json:"role"`
	UniqueID    string     `json:"unique_id"`
	Name        string     `json:"name"`
	SchoolID    string     `json:"school_id,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
}

// Actor converts the claims into the caller identity used by services.
func (c *Claims) Actor() Actor {
	return Actor{
		UserID:   c.Subject,
		UniqueID: c.UniqueID,
		Name:     c.Name,
		Role:     c.Role,
		SchoolID: c.SchoolID,
	}
}

// HasPermission reports whether the token carries code.
func (c *Claims) HasPermission(code model.Permission) bool {
	for _, p := range c.Permissions {
		if p == string(code) {
			return true
		}
	}
	return false
}

// AuthService handles authentication, JWT, and student single-device sessions.
type AuthService struct {
	cfg   *config.Config
	rdb   *redis.Client
	users UserStore
	log   zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, users UserStore, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:   cfg,
		rdb:   rdb,
		users: users,
		log:   log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login authenticates staff by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.Role == model.RoleStudent {
		return nil, ErrInvalidCredentials
	}
	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}

	token, err := s.GenerateToken(user, uuid.NewString())
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("unique_id", user.UniqueID).Str("role", string(user.Role)).Msg("Staff login")
	return &model.LoginResponse{Token: token, User: *user, Permissions: model.PermissionsFor(user.Role)}, nil
}

// StudentLogin authenticates a student by unique id. Only one device may hold a
// student session; a second login is rejected until logout or an admin reset.
func (s *AuthService) StudentLogin(ctx context.Context, uniqueID, password string) (*model.LoginResponse, error) {
	user, err := s.users.GetByUniqueID(ctx, strings.TrimSpace(uniqueID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.Role != model.RoleStudent {
		return nil, ErrInvalidCredentials
	}
	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}

	jti := uuid.NewString()
	sessionKey := config.CacheKey.StudentSessionKey(user.UniqueID)

	// SETNX makes the check and the claim one step.
	ok, err := s.rdb.SetNX(ctx, sessionKey, jti, s.cfg.JWTExpiry).Result()
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return nil, ErrSessionAlreadyActive
	}

	token, err := s.GenerateToken(user, jti)
	if err != nil {
		s.rdb.Del(ctx, sessionKey)
		return nil, err
	}
	s.log.Info().Str("unique_id", user.UniqueID).Msg("Student login")
	return &model.LoginResponse{Token: token, User: *user, Permissions: model.PermissionsFor(user.Role)}, nil
}

// Logout releases a student's device session. Staff tokens are stateless.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if claims.Role != model.RoleStudent {
		return nil
	}
	if err := s.ValidateStudentSession(ctx, claims.UniqueID, claims.ID); err != nil {
		return err
	}
	return s.rdb.Del(ctx, config.CacheKey.StudentSessionKey(claims.UniqueID)).Err()
}

// GenerateToken signs a JWT for user with the given token id.
func (s *AuthService) GenerateToken(user *model.User, jti string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		Role:        user.Role,
		UniqueID:    user.UniqueID,
		Name:        user.Name,
		SchoolID:    user.SchoolID,
		Permissions: model.PermissionsFor(user.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Role.Valid() {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateStudentSession checks that the token's JTI matches the active session in Redis.
func (s *AuthService) ValidateStudentSession(ctx context.Context, uniqueID, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.StudentSessionKey(uniqueID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionInvalidated
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// ResetStudentSession frees a student's device session so they can sign in again.
func (s *AuthService) ResetStudentSession(ctx context.Context, actor Actor, studentUniqueID string) error {
	student, err := s.users.GetByUniqueID(ctx, studentUniqueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get student: %w", err)
	}
	if student.Role != model.RoleStudent {
		return ErrUserNotFound
	}
	if !actor.canAccessSchool(student.SchoolID) {
		return ErrWrongSchool
	}
	if err := s.rdb.Del(ctx, config.CacheKey.StudentSessionKey(student.UniqueID)).Err(); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	s.log.Info().Str("unique_id", student.UniqueID).Str("by", actor.UniqueID).Msg("Student session reset")
	return nil
}

// Me returns the account behind the claims.
func (s *AuthService) Me(ctx context.Context, claims *Claims) (*model.User, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// NewUser describes an account to provision.
type NewUser struct {
	Name       string
	Email      string
	Password   string
	Role       model.Role
	SchoolID   string
	ClassLevel string
}

// CreateUser provisions an account with a generated unique id (e.g. STU-7K2QX9PA).
func (s *AuthService) CreateUser(ctx context.Context, in NewUser) (*model.User, error) {
	if !in.Role.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"role": "unknown role"}}
	}
	if in.Role != model.RoleSuperAdmin && in.SchoolID == "" {
		return nil, &ValidationError{Fields: map[string]string{"school_id": "school is required for this role"}}
	}
	if in.Role != model.RoleStudent && in.Email == "" {
		return nil, &ValidationError{Fields: map[string]string{"email": "staff accounts sign in by email"}}
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	uniqueID, err := codegen.Unique(ctx, in.Role.UniqueIDPrefix(), uniqueIDLength, s.users.UniqueIDExists)
	if err != nil {
		return nil, fmt.Errorf("generate unique id: %w", err)
	}

	user := &model.User{
		UniqueID:     uniqueID,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         in.Role,
		SchoolID:     in.SchoolID,
		ClassLevel:   in.ClassLevel,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
