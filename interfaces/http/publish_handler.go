package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"multipost/domain/dto"
	"multipost/domain/model"
	"multipost/infrastructure/logger"
	"multipost/usecase"
)

type IPublishHandler interface {
	Publish(ctx *gin.Context)
	GetReport(ctx *gin.Context)
	// Wait blocks until every accepted async publish has finished.
	Wait()
}

type PublishHandler struct {
	platforms usecase.IPlatformManager
	tracker   usecase.IResultTracker
	// base outlives individual requests so async publishes survive the
	// response; serve cancels it on shutdown.
	base context.Context
	wg   sync.WaitGroup
}

func NewPublishHandler(base context.Context, platforms usecase.IPlatformManager, tracker usecase.IResultTracker) IPublishHandler {
	return &PublishHandler{platforms: platforms, tracker: tracker, base: base}
}

// Publish handles POST /api/publish
func (h *PublishHandler) Publish(ctx *gin.Context) {
	var body dto.PublishRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		abort(ctx, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req := toPublishRequest(body)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if !body.Async {
		report, err := h.platforms.Publish(ctx.Request.Context(), req)
		if err != nil {
			abortErr(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, reportBody(report))
		return
	}

	if _, err := usecase.ValidatePublishRequest(req); err != nil {
		abortErr(ctx, err)
		return
	}
	prior, err := h.tracker.HistoryByRequest(ctx.Request.Context(), req.RequestID)
	if err != nil {
		abortErr(ctx, err)
		return
	}
	if len(prior) > 0 {
		abortErr(ctx, usecase.ErrRequestExists)
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.platforms.Publish(h.base, req); err != nil {
			logger.GetLogger().WithField("request_id", req.RequestID).WithField("error", err.Error()).Error("Async publish rejected")
		}
	}()
	ctx.JSON(http.StatusAccepted, dto.PublishAccepted{
		RequestID: req.RequestID,
		StreamURL: "/api/publish/" + req.RequestID + "/stream",
		ReportURL: "/api/publish/" + req.RequestID,
	})
}

// GetReport handles GET /api/publish/:requestId. It returns whatever outcomes
// have been recorded so far.
func (h *PublishHandler) GetReport(ctx *gin.Context) {
	requestID := ctx.Param("requestId")
	outcomes, err := h.tracker.HistoryByRequest(ctx.Request.Context(), requestID)
	if err != nil {
		abortErr(ctx, err)
		return
	}
	if len(outcomes) == 0 {
		abort(ctx, http.StatusNotFound, "no outcomes recorded for request "+requestID)
		return
	}
	report := &model.PublishReport{RequestID: requestID}
	for _, o := range outcomes {
		report.Outcomes = append(report.Outcomes, *o)
	}
	report.Sort()
	ctx.JSON(http.StatusOK, reportBody(report))
}

func (h *PublishHandler) Wait() {
	h.wg.Wait()
}

func reportBody(r *model.PublishReport) gin.H {
	return gin.H{
		"request_id": r.RequestID,
		"summary":    r.Summary(),
		"succeeded":  r.Succeeded(),
		"failed":     r.Failed(),
		"skipped":    r.Skipped(),
		"outcomes":   r.Outcomes,
	}
}

func toPublishRequest(body dto.PublishRequest) *model.PublishRequest {
	req := &model.PublishRequest{
		RequestID: body.RequestID,
		Video:     model.Video{Path: body.VideoPath},
		Metadata:  toMetadata(body.Metadata),
	}
	for _, p := range body.Platforms {
		req.Platforms = append(req.Platforms, model.ParsePlatformID(p))
	}
	if len(body.Overrides) > 0 {
		req.Overrides = make(map[model.PlatformID]model.Metadata, len(body.Overrides))
		for p, m := range body.Overrides {
			req.Overrides[model.ParsePlatformID(p)] = toMetadata(m)
		}
	}
	return req
}

func toMetadata(m dto.MetadataRequest) model.Metadata {
	return model.Metadata{Title: m.Title, Description: m.Description, Hashtags: m.Hashtags, Extra: m.Extra}
}
