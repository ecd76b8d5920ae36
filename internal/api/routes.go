package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes. metrics may be nil.
func SetupRoutes(router *gin.Engine, handler *Handler, metrics http.Handler) {
	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	incidents := router.Group("/incidents")
	{
		incidents.POST("", handler.CreateIncident)
		incidents.GET("", handler.ListIncidents)
		incidents.POST("/merge", handler.MergeIncidents)
		incidents.GET("/:id", handler.GetIncident)
		incidents.POST("/:id/fork", handler.ForkIncident)
	}

	router.GET("/clusters", handler.ListClusters)

	pipeline := router.Group("/pipeline")
	{
		pipeline.POST("/run", handler.RunPipeline)
		pipeline.POST("/reannotate", handler.Reannotate)
	}
}
