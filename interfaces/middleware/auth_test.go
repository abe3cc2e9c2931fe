package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
	"multipost/interfaces/middleware"
)

const secret = "test-secret"

func newRouter(secretKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ping", middleware.Auth(secretKey), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(middleware.ContextSubject))
	})
	return r
}

func call(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ValidToken(t *testing.T) {
	token, err := middleware.IssueToken(secret, "ops", time.Hour)
	require.NoError(t, err)

	w := call(newRouter(secret), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}

func TestAuth_Rejects(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, model.ApiClaims{StandardClaims: jwt.StandardClaims{
		Subject: "ops", ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}})
	expiredToken, err := expired.SignedString([]byte(secret))
	require.NoError(t, err)
	otherKey, err := middleware.IssueToken("other-secret", "ops", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		wantMessage   string
	}{
		{name: "missing header", authorization: "", wantMessage: "Unauthorized"},
		{name: "not bearer", authorization: "Basic abc", wantMessage: "Unauthorized"},
		{name: "malformed", authorization: "Bearer not-a-jwt", wantMessage: "That's not even a token"},
		{name: "expired", authorization: "Bearer " + expiredToken, wantMessage: "Timing is everything"},
		{name: "wrong key", authorization: "Bearer " + otherKey, wantMessage: "Couldn't handle this token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(newRouter(secret), tt.authorization)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantMessage)
		})
	}
}

func TestAuth_NoSecretConfigured(t *testing.T) {
	token, err := middleware.IssueToken(secret, "ops", time.Hour)
	require.NoError(t, err)
	w := call(newRouter(""), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, err = middleware.IssueToken("", "ops", time.Hour)
	assert.Error(t, err)
}
