package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
	"multipost/infrastructure/realtime"
)

func TestHub_DeliversOnlyToMatchingRequest(t *testing.T) {
	hub := realtime.NewPublishHub()
	mine, unsubMine := hub.Subscribe("req-1")
	other, unsubOther := hub.Subscribe("req-2")
	defer unsubOther()

	hub.StateChanged(context.Background(), model.StateChange{RequestID: "req-1", PlatformID: model.PlatformYouTube, State: model.StateUploading})
	hub.OutcomeRecorded(context.Background(), model.PublishOutcome{RequestID: "req-1", PlatformID: model.PlatformYouTube, Status: model.OutcomeSuccess})

	evt := <-mine
	assert.Equal(t, "state_changed", evt.Type)
	assert.Equal(t, model.StateUploading, evt.State)
	evt = <-mine
	assert.Equal(t, "outcome_recorded", evt.Type)
	require.NotNil(t, evt.Outcome)
	assert.Equal(t, model.OutcomeSuccess, evt.Outcome.Status)

	select {
	case e := <-other:
		t.Fatalf("unexpected event for other request: %+v", e)
	default:
	}

	assert.Equal(t, 1, hub.Subscribers("req-1"))
	unsubMine()
	unsubMine()
	assert.Equal(t, 0, hub.Subscribers("req-1"))
	_, open := <-mine
	assert.False(t, open)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := realtime.NewPublishHub()
	_, unsub := hub.Subscribe("req-1")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.StateChanged(context.Background(), model.StateChange{RequestID: "req-1", State: model.StatePending})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
}

func TestHub_Serve(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewPublishHub()
	r := gin.New()
	r.GET("/api/publish/:requestId/stream", hub.Serve)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/publish/req-9/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(served)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers("req-9") == 1 }, time.Second, 5*time.Millisecond)
	hub.OutcomeRecorded(context.Background(), model.PublishOutcome{RequestID: "req-9", PlatformID: model.PlatformTikTok, Status: model.OutcomeFailed})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-served

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"), w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, ":ok"))
	assert.Contains(t, body, "event:outcome_recorded")
	assert.Contains(t, body, `"platform_id":"tiktok"`)
	assert.Equal(t, 0, hub.Subscribers("req-9"))
}
