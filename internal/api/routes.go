package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"

	"github.com/StevenACZ/peso-tracker-backend/internal/api/handlers/photo"
	"github.com/StevenACZ/peso-tracker-backend/internal/api/middleware"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Client-Device")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

// RegisterRoutes wires the photo endpoints. The secure delivery route is
// token-gated rather than session-gated, so it stays outside the auth group.
func RegisterRoutes(r *gin.Engine, h *photo.Handler, auth *middleware.Authenticator) {
	r.Use(gintrace.Middleware("peso-photo-service"))
	r.Use(corsMiddleware())

	// Signed, time-limited photo delivery.
	r.GET("/photos/secure/:token", h.ServeSecurePhoto)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		photos := api.Group("/photos", auth.RequireAuth())
		{
			photos.POST("", h.UploadPhoto)
			photos.GET("/:id", h.GetPhoto)
			photos.DELETE("/:id", h.DeletePhoto)
		}
	}
}
