package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"multipost/domain/dto"
	"multipost/domain/model"
	"multipost/usecase"
)

type IPlatformHandler interface {
	List(ctx *gin.Context)
	Invalidate(ctx *gin.Context)
	History(ctx *gin.Context)
	UploadStatus(ctx *gin.Context)
}

type PlatformHandler struct {
	platforms usecase.IPlatformManager
	creds     usecase.ICredentialManager
	tracker   usecase.IResultTracker
}

func NewPlatformHandler(platforms usecase.IPlatformManager, creds usecase.ICredentialManager, tracker usecase.IResultTracker) IPlatformHandler {
	return &PlatformHandler{platforms: platforms, creds: creds, tracker: tracker}
}

func (h *PlatformHandler) registered(p model.PlatformID) bool {
	for _, d := range h.platforms.Descriptors() {
		if d.ID == p {
			return true
		}
	}
	return false
}

// List handles GET /api/platforms
func (h *PlatformHandler) List(ctx *gin.Context) {
	statuses, err := h.platforms.Status(ctx.Request.Context())
	if err != nil {
		abortErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"platforms": statuses})
}

// Invalidate handles POST /api/platforms/:platform/invalidate
func (h *PlatformHandler) Invalidate(ctx *gin.Context) {
	p := model.ParsePlatformID(ctx.Param("platform"))
	if !h.registered(p) {
		abort(ctx, http.StatusNotFound, "unknown platform: "+string(p))
		return
	}
	var req dto.InvalidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abort(ctx, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.creds.Invalidate(ctx.Request.Context(), p, req.Reason); err != nil {
		abortErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"platform": p, "invalidated": true, "reason": req.Reason})
}

// History handles GET /api/platforms/:platform/history
func (h *PlatformHandler) History(ctx *gin.Context) {
	p := model.ParsePlatformID(ctx.Param("platform"))
	outcomes, err := h.tracker.HistoryByPlatform(ctx.Request.Context(), p)
	if err != nil {
		abortErr(ctx, err)
		return
	}
	if outcomes == nil {
		outcomes = []*model.PublishOutcome{}
	}
	ctx.JSON(http.StatusOK, gin.H{"platform": p, "outcomes": outcomes})
}

// UploadStatus handles GET /api/platforms/:platform/uploads/:remoteId
func (h *PlatformHandler) UploadStatus(ctx *gin.Context) {
	p := model.ParsePlatformID(ctx.Param("platform"))
	st, err := h.platforms.UploadStatus(ctx.Request.Context(), p, ctx.Param("remoteId"))
	if err != nil {
		abortErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, st)
}
