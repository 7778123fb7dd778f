package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openprep/openprep/internal/api/handlers"
	"github.com/openprep/openprep/internal/api/middleware"
)

type Deps struct {
	Interview *handlers.InterviewHandler
	Profile   *handlers.ProfileHandler // nil when no resume store is configured
	Auth      middleware.JWTConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Anonymous practice is allowed; a bearer token, when sent, must be valid.
	api := r.Group("/")
	api.Use(middleware.OptionalAuth(d.Auth))

	interview := api.Group("/interview")
	interview.POST("/start", d.Interview.Start)
	interview.POST("/answer", d.Interview.Answer)
	interview.GET("/results/:session_id", d.Interview.Results)
	interview.GET("/history", d.Interview.History)
	interview.POST("/cleanup", d.Interview.Cleanup)

	if d.Profile != nil {
		profile := api.Group("/profile", middleware.RequireAuth())
		profile.GET("/resume", d.Profile.Resume)
		profile.PUT("/resume", d.Profile.UpdateResume)
	}

	admin := api.Group("/admin", middleware.RequireAuth(), middleware.RequireAdmin())
	admin.POST("/interview/cleanup/:owner_id", d.Interview.AdminCleanup)
}
