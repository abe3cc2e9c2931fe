package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"multipost/usecase"
)

type IHealthHandler interface {
	Healthz(ctx *gin.Context)
}

type HealthHandler struct {
	platforms usecase.IPlatformManager
}

func NewHealthHandler(platforms usecase.IPlatformManager) IHealthHandler {
	return &HealthHandler{platforms: platforms}
}

// Healthz returns OK for health checks
func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ids := make([]string, 0)
	for _, d := range h.platforms.Descriptors() {
		ids = append(ids, string(d.ID))
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "platforms": ids})
}
