package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/model"
)

func newTestAuth(users *memUserStore) *AuthService {
	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	// Staff flows and token handling never reach Redis.
	return NewAuthService(cfg, nil, users, testLog)
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(&memUserStore{})
	user := &model.User{UniqueID: "TCH-ABCD1234", Name: "Mrs Obi", Role: model.RoleTeacher, SchoolID: "school-a"}

	token, err := auth.GenerateToken(user, "jti-1")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "jti-1", claims.ID)
	assert.Equal(t, model.RoleTeacher, claims.Role)
	assert.Equal(t, "school-a", claims.SchoolID)
	assert.True(t, claims.HasPermission(model.PermissionExamsWriteOwn))
	assert.False(t, claims.HasPermission(model.PermissionExamsApprove))

	actor := claims.Actor()
	assert.Equal(t, "TCH-ABCD1234", actor.UniqueID)
	assert.Equal(t, model.RoleTeacher, actor.Role)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	auth := newTestAuth(&memUserStore{})
	token, err := auth.GenerateToken(&model.User{UniqueID: "STU-1", Role: model.RoleStudent}, "jti")
	require.NoError(t, err)

	other := newTestAuth(&memUserStore{})
	other.cfg.JWTSecret = "another-secret"
	_, err = other.ValidateToken(token)
	assert.Error(t, err)

	_, err = auth.ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestCreateUserAndLogin(t *testing.T) {
	users := &memUserStore{}
	auth := newTestAuth(users)
	ctx := context.Background()

	user, err := auth.CreateUser(ctx, NewUser{
		Name:     " Mrs Obi ",
		Email:    "obi@school-a.test",
		Password: "s3cret!!",
		Role:     model.RoleTeacher,
		SchoolID: "school-a",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.UniqueID, "TCH-"))
	assert.Len(t, user.UniqueID, len("TCH-")+8)
	assert.Equal(t, "Mrs Obi", user.Name)

	resp, err := auth.Login(ctx, "OBI@school-a.test", "s3cret!!")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, user.UniqueID, resp.User.UniqueID)

	_, err = auth.Login(ctx, "obi@school-a.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "nobody@school-a.test", "s3cret!!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStaffLoginRejectsStudents(t *testing.T) {
	users := &memUserStore{}
	auth := newTestAuth(users)
	ctx := context.Background()

	_, err := auth.CreateUser(ctx, NewUser{
		Name:     "Ada",
		Email:    "ada@school-a.test",
		Password: "pass1234",
		Role:     model.RoleStudent,
		SchoolID: "school-a",
	})
	require.NoError(t, err)

	_, err = auth.Login(ctx, "ada@school-a.test", "pass1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUserValidation(t *testing.T) {
	auth := newTestAuth(&memUserStore{})
	ctx := context.Background()

	tests := []struct {
		name  string
		in    NewUser
		field string
	}{
		{"unknown role", NewUser{Role: "janitor", SchoolID: "s"}, "role"},
		{"missing school", NewUser{Role: model.RoleStudent}, "school_id"},
		{"staff without email", NewUser{Role: model.RoleAdmin, SchoolID: "s"}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.CreateUser(ctx, tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestMe(t *testing.T) {
	users := &memUserStore{}
	auth := newTestAuth(users)
	ctx := context.Background()

	user, err := auth.CreateUser(ctx, NewUser{Name: "Root", Email: "root@cbt.test", Password: "rootpass", Role: model.RoleSuperAdmin})
	require.NoError(t, err)
	token, err := auth.GenerateToken(user, "jti")
	require.NoError(t, err)
	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)

	me, err := auth.Me(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)

	claims.Subject = "not-a-uuid"
	_, err = auth.Me(ctx, claims)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
