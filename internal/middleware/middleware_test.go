package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator map[string]*service.Claims

func (s stubValidator) ValidateToken(token string) (*service.Claims, error) {
	if token == "expired" {
		return nil, jwt.ErrTokenExpired
	}
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

type stubSessions struct{ active map[string]string }

func (s stubSessions) ValidateStudentSession(_ context.Context, uniqueID, jti string) error {
	if s.active[uniqueID] != jti {
		return service.ErrSessionInvalidated
	}
	return nil
}

func claimsFor(role model.Role, uniqueID, jti string) *service.Claims {
	c := &service.Claims{Role: role, UniqueID: uniqueID, Permissions: model.PermissionsFor(role)}
	c.ID = jti
	return c
}

var tokens = stubValidator{
	"student": claimsFor(model.RoleStudent, "STU-1", "jti-1"),
	"teacher": claimsFor(model.RoleTeacher, "TCH-1", "jti-2"),
	"admin":   claimsFor(model.RoleAdmin, "ADM-1", "jti-3"),
}

func serve(t *testing.T, r *gin.Engine, req *http.Request) (int, response.ErrCode) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	if body.Error != nil {
		return w.Code, body.Error.Code
	}
	return w.Code, ""
}

func okHandler(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"unique_id": GetClaims(c).UniqueID})
}

func TestRequireAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", RequireAuth(tokens), okHandler)

	tests := []struct {
		name   string
		header string
		query  string
		status int
		code   response.ErrCode
	}{
		{"bearer header", "Bearer teacher", "", http.StatusOK, ""},
		{"lowercase scheme", "bearer admin", "", http.StatusOK, ""},
		{"query fallback", "", "student", http.StatusOK, ""},
		{"missing", "", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized, response.ErrTokenInvalid},
		{"expired", "Bearer expired", "", http.StatusUnauthorized, response.ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/me"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			status, code := serve(t, r, req)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRequireRoleAndPermission(t *testing.T) {
	r := gin.New()
	r.GET("/student", RequireAuth(tokens), RequireStudent(), okHandler)
	r.GET("/approve", RequireAuth(tokens), RequirePermission(model.PermissionExamsApprove), okHandler)
	r.GET("/staff", RequireAuth(tokens), RequireRole(model.RoleTeacher, model.RoleAdmin), okHandler)

	get := func(path, token string) (int, response.ErrCode) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return serve(t, r, req)
	}

	status, code := get("/student", "teacher")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, response.ErrStudentAccessOnly, code)

	status, _ = get("/student", "student")
	assert.Equal(t, http.StatusOK, status)

	status, code = get("/approve", "teacher")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, response.ErrPermissionDenied, code)

	status, _ = get("/approve", "admin")
	assert.Equal(t, http.StatusOK, status)

	status, code = get("/staff", "student")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, response.ErrForbidden, code)
}

func TestCheckSingleDeviceSession(t *testing.T) {
	sessions := stubSessions{active: map[string]string{"STU-1": "jti-1"}}
	r := gin.New()
	r.GET("/x", RequireAuth(tokens), CheckSingleDeviceSession(sessions), okHandler)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer student")
	status, _ := serve(t, r, req)
	assert.Equal(t, http.StatusOK, status)

	// Admin reset the session: the old token no longer matches.
	sessions.active["STU-1"] = "jti-other"
	status, code := serve(t, r, req)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, response.ErrSessionInvalidated, code)

	// Staff tokens are stateless.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer teacher")
	status, _ = serve(t, r, req)
	assert.Equal(t, http.StatusOK, status)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, ByClientIP)
	t.Cleanup(rl.Stop)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"), "buckets are per key")

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("1.1.1.1"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.buckets)
}
