package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/conduit/pkg/api/handler"
	"github.com/LENAX/conduit/pkg/api/middleware"
	"github.com/LENAX/conduit/pkg/api/service"
)

// SetupRouter 设置路由
func SetupRouter(manager *service.RunManager, source handler.EventSource, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	runHandler := handler.NewRunHandler(manager)
	eventHandler := handler.NewEventHandler(manager, source)
	healthHandler := handler.NewHealthHandler(version)

	router.GET("/health", healthHandler.Health)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		v1.POST("/plan", runHandler.Plan)

		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.List)
			runs.POST("", runHandler.Submit)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/nodes", runHandler.GetNodes)
			runs.GET("/:id/nodes/:label/result", runHandler.GetResult)
			runs.GET("/:id/events", eventHandler.Stream)
		}
	}

	return router
}
