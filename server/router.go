package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	httpHandler "multipost/interfaces/http"
	"multipost/interfaces/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health   httpHandler.IHealthHandler
	OAuth    httpHandler.IOAuthHandler
	Platform httpHandler.IPlatformHandler
	Publish  httpHandler.IPublishHandler
	// Stream serves the SSE progress feed for one publish request.
	Stream gin.HandlerFunc
}

func InitiateRouter(h Handlers, secretKey string, corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if len(corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     corsOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", h.Health.Healthz)

	// OAuth authentication routes
	router.GET("/auth/:platform", h.OAuth.GetAuthURL)
	router.GET("/auth/:platform/callback", h.OAuth.Callback)

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))

	platforms := api.Group("/platforms")
	{
		platforms.GET("", h.Platform.List)
		platforms.POST("/:platform/invalidate", h.Platform.Invalidate)
		platforms.GET("/:platform/history", h.Platform.History)
		platforms.GET("/:platform/uploads/:remoteId", h.Platform.UploadStatus)
	}

	publish := api.Group("/publish")
	{
		publish.POST("", h.Publish.Publish)
		publish.GET("/:requestId", h.Publish.GetReport)
		if h.Stream != nil {
			publish.GET("/:requestId/stream", h.Stream)
		}
	}

	return router
}
