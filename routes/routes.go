// File: /routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"paddletrips-api/config"
	"paddletrips-api/controllers"
	"paddletrips-api/middleware"
	"paddletrips-api/services"
)

type Dependencies struct {
	DB           *gorm.DB
	Config       *config.Config
	EmailService *services.EmailService
	TripSync     *services.TripSyncService
	TripUpload   *services.TripUploadService
}

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	// Controllers
	authController := controllers.NewAuthController(deps.DB, deps.Config.JWTSecret, deps.EmailService)
	tripController := controllers.NewTripController(deps.TripSync, deps.TripUpload)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// API version 1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(120, 30))

	// Auth routes (public)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", authController.Login)
		auth.POST("/register", authController.Register)
		auth.POST("/logout", authController.Logout)
		auth.POST("/send-verification", authController.SendVerification)
		auth.POST("/verify-code", authController.VerifyCode)
	}

	// Trip routes. Reads are public; actions resolve the actor optionally
	// so the participation engine can answer with its login call-to-action
	// instead of a blanket 401.
	trips := v1.Group("/trips")
	trips.Use(middleware.OptionalAuth(deps.Config.JWTSecret))
	{
		trips.GET("/", tripController.GetTrips)
		trips.POST("/refresh", tripController.RefreshTrips)
		trips.GET("/live", tripController.LiveTrips)
		trips.GET("/:id", tripController.GetTrip)
		trips.POST("/:id/join", tripController.JoinTrip)
		trips.DELETE("/:id/cancel", tripController.CancelTrip)
		trips.POST("/:id/complete", tripController.CompleteTrip)
	}

	// Creating a trip requires a signed-in organizer.
	create := v1.Group("/trips")
	create.Use(middleware.AuthMiddleware(deps.Config.JWTSecret))
	{
		create.POST("/", tripController.CreateTrip)
	}
}

// SetupCORS configures cross-origin access for browser clients.
func SetupCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
