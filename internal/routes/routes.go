package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"koursa_back_end/internal/handlers"
	"koursa_back_end/internal/middleware"
)

func RegisterRoutes(r *gin.Engine) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.APIRateLimit())

	api := r.Group("/api", middleware.AuthRequired())
	{
		// Courses côté passager
		api.POST("/trips", middleware.TripCreateRateLimit(), handlers.CreateTrip)
		api.GET("/trips/:tripId", handlers.GetTrip)
		api.POST("/trips/:tripId/retry", handlers.RetryTrip)
		api.POST("/trips/:tripId/cancel", handlers.CancelTrip)

		// Litiges côté passager
		api.POST("/trips/:tripId/disputes", middleware.DisputeRateLimit(), handlers.CreateDispute)
		api.GET("/disputes", handlers.MyDisputes)

		// Console ops
		admin := api.Group("/admin", middleware.RequireAdmin)
		{
			admin.GET("/disputes", handlers.ListDisputes)
			admin.POST("/disputes/:disputeId/resolve", handlers.ResolveDispute)
			admin.POST("/trips/:tripId/void", handlers.VoidTripPayment)
			admin.GET("/escrows", handlers.ListEscrows)
			admin.GET("/evidence", handlers.EvidenceURL)
		}
	}

	// Flux temps réel (le token passe en query, pas de header sur un WS)
	r.GET("/ws/trips/:tripId", middleware.AuthRequired(), handlers.TripWebSocket)
}
