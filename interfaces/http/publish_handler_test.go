package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

func publishRouter(pm *MockPlatformManager, tracker *MockResultTracker) (*gin.Engine, httpHandler.IPublishHandler) {
	h := httpHandler.NewPublishHandler(context.Background(), pm, tracker)
	r := gin.New()
	r.POST("/api/publish", h.Publish)
	r.GET("/api/publish/:requestId", h.GetReport)
	return r, h
}

func TestPublish_Sync(t *testing.T) {
	pm := new(MockPlatformManager)
	pm.On("Publish", mock.Anything, mock.MatchedBy(func(req *model.PublishRequest) bool {
		return req.RequestID != "" &&
			req.Video.Path == "/videos/launch.mp4" &&
			len(req.Platforms) == 2 &&
			req.Platforms[0] == model.PlatformYouTube &&
			req.Metadata.Title == "Launch" &&
			req.Overrides[model.PlatformTikTok].Title == "Launch TT"
	})).Return(&model.PublishReport{RequestID: "r1", Outcomes: []model.PublishOutcome{
		{RequestID: "r1", PlatformID: model.PlatformTikTok, Status: model.OutcomeFailed, ErrorKind: model.ErrorKindAuth},
		{RequestID: "r1", PlatformID: model.PlatformYouTube, Status: model.OutcomeSuccess, RemotePostID: "yt1"},
	}}, nil)
	r, _ := publishRouter(pm, nil)

	body := `{"video_path":"/videos/launch.mp4","platforms":["YouTube","tiktok"],
		"metadata":{"title":"Launch","hashtags":["go"]},
		"overrides":{"tiktok":{"title":"Launch TT"}}}`
	w := serve(r, http.MethodPost, "/api/publish", body)
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "partial", got["summary"])
	assert.EqualValues(t, 1, got["succeeded"])
	assert.EqualValues(t, 1, got["failed"])
	pm.AssertExpectations(t)
}

func TestPublish_Errors(t *testing.T) {
	pm := new(MockPlatformManager)
	pm.On("Publish", mock.Anything, mock.MatchedBy(func(req *model.PublishRequest) bool { return req.RequestID == "dup" })).
		Return(nil, fmt.Errorf("%w: dup", usecase.ErrRequestExists))
	pm.On("Publish", mock.Anything, mock.MatchedBy(func(req *model.PublishRequest) bool { return req.RequestID == "bad" })).
		Return(nil, model.NewValidationError("", "at least one platform is required"))
	r, _ := publishRouter(pm, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing video", `{"platforms":["youtube"]}`, http.StatusBadRequest},
		{"no platforms", `{"video_path":"/v.mp4","platforms":[]}`, http.StatusBadRequest},
		{"not json", `video`, http.StatusBadRequest},
		{"duplicate request", `{"request_id":"dup","video_path":"/v.mp4","platforms":["youtube"]}`, http.StatusConflict},
		{"validation", `{"request_id":"bad","video_path":"/v.mp4","platforms":[" "]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodPost, "/api/publish", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestPublish_Async(t *testing.T) {
	pm := new(MockPlatformManager)
	pm.On("Publish", mock.Anything, mock.MatchedBy(func(req *model.PublishRequest) bool { return req.RequestID == "job-1" })).
		Return(&model.PublishReport{RequestID: "job-1"}, nil)
	tracker := new(MockResultTracker)
	tracker.On("HistoryByRequest", mock.Anything, "job-1").Return(nil, nil)
	tracker.On("HistoryByRequest", mock.Anything, "job-0").Return([]*model.PublishOutcome{{RequestID: "job-0"}}, nil)
	r, h := publishRouter(pm, tracker)

	w := serve(r, http.MethodPost, "/api/publish", `{"request_id":"job-1","video_path":"/v.mp4","platforms":["youtube"],"async":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted dto.PublishAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "/api/publish/job-1/stream", accepted.StreamURL)
	assert.Equal(t, "/api/publish/job-1", accepted.ReportURL)

	h.Wait()
	pm.AssertNumberOfCalls(t, "Publish", 1)

	w = serve(r, http.MethodPost, "/api/publish", `{"request_id":"job-0","video_path":"/v.mp4","platforms":["youtube"],"async":true}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	h.Wait()
	pm.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPublish_AsyncRejectsInvalidBeforeAccepting(t *testing.T) {
	pm := new(MockPlatformManager)
	tracker := new(MockResultTracker)
	r, h := publishRouter(pm, tracker)

	w := serve(r, http.MethodPost, "/api/publish", `{"request_id":"job-2","video_path":"/v.mp4","platforms":[" "],"async":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(r, http.MethodPost, "/api/publish", `{"request_id":"job-3","video_path":"  ","platforms":["youtube"],"async":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.Wait()
	pm.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	tracker.AssertNotCalled(t, "HistoryByRequest", mock.Anything, mock.Anything)
}

func TestPublish_GetReport(t *testing.T) {
	tracker := new(MockResultTracker)
	tracker.On("HistoryByRequest", mock.Anything, "r1").Return([]*model.PublishOutcome{
		{RequestID: "r1", PlatformID: model.PlatformYouTube, Status: model.OutcomeSuccess},
		{RequestID: "r1", PlatformID: model.PlatformFacebook, Status: model.OutcomeSuccess},
	}, nil)
	tracker.On("HistoryByRequest", mock.Anything, "missing").Return(nil, nil)
	r, _ := publishRouter(nil, tracker)

	w := serve(r, http.MethodGet, "/api/publish/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Summary  string                 `json:"summary"`
		Outcomes []model.PublishOutcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "all_succeeded", got.Summary)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, model.PlatformFacebook, got.Outcomes[0].PlatformID)

	w = serve(r, http.MethodGet, "/api/publish/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	pm := new(MockPlatformManager)
	pm.On("Descriptors").Return(descriptors)
	r := gin.New()
	r.GET("/healthz", httpHandler.NewHealthHandler(pm).Healthz)

	w := serve(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","platforms":["facebook","youtube"]}`, w.Body.String())
}
