package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(gin.Logger())

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		teams := v1.Group("/teams")
		{
			teams.POST("", handler.CreateTeam)
			teams.GET("", handler.ListTeams)
			teams.GET("/:id", handler.GetTeam)
			teams.DELETE("/:id", handler.DeleteTeam)
			teams.POST("/:id/refresh-stats", handler.RefreshTeamStats)
		}

		v1.GET("/ai-review", handler.GetAIReview)
		v1.GET("/fleet/metrics", handler.GetFleetMetrics)
	}

	return router
}
