package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"multipost/domain/dto"
	"multipost/domain/model"
	httpHandler "multipost/interfaces/http"
	"multipost/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func oauthRouter(creds usecase.ICredentialManager) *gin.Engine {
	h := httpHandler.NewOAuthHandler(creds)
	r := gin.New()
	r.GET("/auth/:platform", h.GetAuthURL)
	r.GET("/auth/:platform/callback", h.Callback)
	return r
}

func TestOAuth_FullRoundTrip(t *testing.T) {
	creds := new(MockCredentialManager)
	creds.On("AuthCodeURL", model.PlatformYouTube, mock.AnythingOfType("string")).
		Return("https://accounts.example/auth?state=s", nil)
	creds.On("CompleteAuthorization", mock.Anything, model.PlatformYouTube, "the-code").
		Return(&model.CredentialRecord{PlatformID: model.PlatformYouTube, AccessToken: "tok"}, nil)
	r := oauthRouter(creds)

	w := serve(r, http.MethodGet, "/auth/YouTube", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got dto.AuthURLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "youtube", got.Platform)
	assert.Equal(t, "https://accounts.example/auth?state=s", got.AuthURL)
	require.NotEmpty(t, got.State)

	cb := fmt.Sprintf("/auth/youtube/callback?state=%s&code=the-code", got.State)
	w = serve(r, http.MethodGet, cb, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)

	// replaying the same state is refused
	w = serve(r, http.MethodGet, cb, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	creds.AssertNumberOfCalls(t, "CompleteAuthorization", 1)
}

func TestOAuth_Redirect(t *testing.T) {
	creds := new(MockCredentialManager)
	creds.On("AuthCodeURL", model.PlatformTikTok, mock.Anything).Return("https://tiktok.example/auth", nil)

	w := serve(oauthRouter(creds), http.MethodGet, "/auth/tiktok?redirect=true", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://tiktok.example/auth", w.Header().Get("Location"))
}

func TestOAuth_UnknownPlatform(t *testing.T) {
	creds := new(MockCredentialManager)
	creds.On("AuthCodeURL", model.PlatformID("myspace"), mock.Anything).
		Return("", fmt.Errorf("%w: myspace", usecase.ErrUnknownPlatform))

	w := serve(oauthRouter(creds), http.MethodGet, "/auth/myspace", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"response_code":"404"`)
}

func TestOAuth_CallbackRejects(t *testing.T) {
	creds := new(MockCredentialManager)
	creds.On("AuthCodeURL", mock.Anything, mock.Anything).Return("https://x", nil)
	r := oauthRouter(creds)

	w := serve(r, http.MethodGet, "/auth/facebook", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got dto.AuthURLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))

	tests := []struct {
		name   string
		target string
	}{
		{"provider error", "/auth/facebook/callback?error=access_denied"},
		{"missing state", "/auth/facebook/callback?code=c"},
		{"unknown state", "/auth/facebook/callback?state=nope&code=c"},
		{"state for another platform", "/auth/tiktok/callback?code=c&state=" + got.State},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	creds.AssertNotCalled(t, "CompleteAuthorization", mock.Anything, mock.Anything, mock.Anything)
}

func TestOAuth_ExchangeFailure(t *testing.T) {
	creds := new(MockCredentialManager)
	creds.On("AuthCodeURL", mock.Anything, mock.Anything).Return("https://x", nil)
	creds.On("CompleteAuthorization", mock.Anything, model.PlatformTikTok, "bad").
		Return(nil, model.NewAuthError(model.PlatformTikTok, model.AuthReasonRevoked, nil))
	r := oauthRouter(creds)

	w := serve(r, http.MethodGet, "/auth/tiktok", "")
	var got dto.AuthURLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))

	w = serve(r, http.MethodGet, "/auth/tiktok/callback?code=bad&state="+got.State, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
