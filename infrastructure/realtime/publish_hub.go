package realtime

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"multipost/domain/model"
)

// PublishEvent is an SSE payload for one pipeline transition or outcome.
type PublishEvent struct {
	Type       string                `json:"type"`
	RequestID  string                `json:"request_id"`
	PlatformID model.PlatformID      `json:"platform_id"`
	State      model.PipelineState   `json:"state,omitempty"`
	Outcome    *model.PublishOutcome `json:"outcome,omitempty"`
}

// Hub fans publish events out to SSE subscribers of a request.
type Hub struct {
	mu       sync.RWMutex
	requests map[string]map[chan PublishEvent]struct{}
}

func NewPublishHub() *Hub {
	return &Hub{requests: make(map[string]map[chan PublishEvent]struct{})}
}

// Serve streams events for the :requestId path parameter until the client goes away.
func (h *Hub) Serve(c *gin.Context) {
	requestID := c.Param("requestId")
	if requestID == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch, unsubscribe := h.Subscribe(requestID)
	defer unsubscribe()

	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt := <-ch:
			c.SSEvent(evt.Type, evt)
			c.Writer.Flush()
		}
	}
}

// Subscribe registers a buffered channel for requestID. The returned func
// unregisters and closes it.
func (h *Hub) Subscribe(requestID string) (<-chan PublishEvent, func()) {
	ch := make(chan PublishEvent, 16)
	h.mu.Lock()
	if h.requests[requestID] == nil {
		h.requests[requestID] = make(map[chan PublishEvent]struct{})
	}
	h.requests[requestID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs := h.requests[requestID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.requests, requestID)
				}
			}
			close(ch)
		})
	}
}

func (h *Hub) Subscribers(requestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.requests[requestID])
}

func (h *Hub) StateChanged(_ context.Context, change model.StateChange) {
	h.broadcast(PublishEvent{
		Type:       "state_changed",
		RequestID:  change.RequestID,
		PlatformID: change.PlatformID,
		State:      change.State,
	})
}

func (h *Hub) OutcomeRecorded(_ context.Context, outcome model.PublishOutcome) {
	o := outcome
	h.broadcast(PublishEvent{
		Type:       "outcome_recorded",
		RequestID:  outcome.RequestID,
		PlatformID: outcome.PlatformID,
		Outcome:    &o,
	})
}

// broadcast never blocks the pipeline; slow subscribers drop events.
func (h *Hub) broadcast(evt PublishEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.requests[evt.RequestID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
