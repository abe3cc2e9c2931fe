package http_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"multipost/domain/model"
	"multipost/domain/repository"
	httpHandler "multipost/interfaces/http"
)

var descriptors = []model.PlatformDescriptor{
	{ID: model.PlatformFacebook, DisplayName: "Facebook"},
	{ID: model.PlatformYouTube, DisplayName: "YouTube"},
}

func platformRouter(pm *MockPlatformManager, creds *MockCredentialManager, tracker *MockResultTracker) *gin.Engine {
	h := httpHandler.NewPlatformHandler(pm, creds, tracker)
	r := gin.New()
	r.GET("/api/platforms", h.List)
	r.POST("/api/platforms/:platform/invalidate", h.Invalidate)
	r.GET("/api/platforms/:platform/history", h.History)
	r.GET("/api/platforms/:platform/uploads/:remoteId", h.UploadStatus)
	return r
}

func TestPlatform_List(t *testing.T) {
	pm := new(MockPlatformManager)
	pm.On("Status", mock.Anything).Return([]model.PlatformStatus{
		{Descriptor: descriptors[1], Authenticated: true, Refreshable: true},
	}, nil)

	w := serve(platformRouter(pm, nil, nil), http.MethodGet, "/api/platforms", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"platform_id":"youtube"`)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
}

func TestPlatform_Invalidate(t *testing.T) {
	pm := new(MockPlatformManager)
	pm.On("Descriptors").Return(descriptors)
	creds := new(MockCredentialManager)
	creds.On("Invalidate", mock.Anything, model.PlatformYouTube, "rotated").Return(nil)
	creds.On("Invalidate", mock.Anything, model.PlatformFacebook, "rotated").Return(repository.ErrCredentialNotFound)
	r := platformRouter(pm, creds, nil)

	w := serve(r, http.MethodPost, "/api/platforms/youtube/invalidate", `{"reason":"rotated"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"invalidated":true`)

	w = serve(r, http.MethodPost, "/api/platforms/facebook/invalidate", `{"reason":"rotated"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodPost, "/api/platforms/youtube/invalidate", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodPost, "/api/platforms/tiktok/invalidate", `{"reason":"rotated"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	creds.AssertNumberOfCalls(t, "Invalidate", 2)
}

func TestPlatform_History(t *testing.T) {
	tracker := new(MockResultTracker)
	tracker.On("HistoryByPlatform", mock.Anything, model.PlatformYouTube).Return([]*model.PublishOutcome{
		{RequestID: "r1", PlatformID: model.PlatformYouTube, Status: model.OutcomeSuccess, RemotePostID: "abc"},
	}, nil)
	tracker.On("HistoryByPlatform", mock.Anything, model.PlatformTikTok).Return(nil, nil)
	r := platformRouter(nil, nil, tracker)

	w := serve(r, http.MethodGet, "/api/platforms/youtube/history", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remote_post_id":"abc"`)

	w = serve(r, http.MethodGet, "/api/platforms/tiktok/history", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcomes":[]`)
}

func TestPlatform_UploadStatus(t *testing.T) {
	pm := new(MockPlatformManager)
	pm.On("UploadStatus", mock.Anything, model.PlatformYouTube, "vid1").
		Return(&model.UploadStatus{PlatformID: model.PlatformYouTube, RemoteID: "vid1", State: "processed"}, nil)
	pm.On("UploadStatus", mock.Anything, model.PlatformTikTok, "p1").
		Return(nil, model.NewAuthError(model.PlatformTikTok, model.AuthReasonMissing, nil))
	r := platformRouter(pm, nil, nil)

	w := serve(r, http.MethodGet, "/api/platforms/youtube/uploads/vid1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed"`)

	w = serve(r, http.MethodGet, "/api/platforms/tiktok/uploads/p1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
