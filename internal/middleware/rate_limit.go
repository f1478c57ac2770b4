package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"koursa_back_end/internal/database"
)

const (
	// Limites par endpoint
	APIMaxRequests        = 100 // Par minute pour les endpoints généraux
	TripCreateMaxRequests = 5   // Demandes de course par minute et par passager
	DisputeMaxRequests    = 3   // Dépôts de litige par heure et par passager

	// Durées de cooldown
	APICooldown        = 1 * time.Minute
	TripCreateCooldown = 1 * time.Minute
	DisputeCooldown    = 1 * time.Hour
)

// APIRateLimit limite le nombre de requêtes par IP (général)
func APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		ip := c.ClientIP()
		key := "api_requests:" + ip

		// Vérifier le nombre de requêtes dans la dernière minute
		requests, _ := database.Redis.Get(ctx, key).Int()
		if requests >= APIMaxRequests {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Trop de requêtes. Réessayez dans 1 minute",
				"retry_after": 60,
			})
			c.Abort()
			return
		}

		// Incrémenter le compteur
		pipe := database.Redis.Pipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, APICooldown)
		pipe.Exec(ctx)

		// Ajouter les headers de rate limit
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", APIMaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", APIMaxRequests-requests-1))

		c.Next()
	}
}

// TripCreateRateLimit limite les demandes de course par passager (anti-spam)
func TripCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		ctx := context.Background()
		key := "trip_create:" + userID

		requests, _ := database.Redis.Get(ctx, key).Int()
		if requests >= TripCreateMaxRequests {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Trop de demandes de course. Réessayez dans 1 minute",
				"retry_after": 60,
			})
			c.Abort()
			return
		}

		// Incrémenter
		pipe := database.Redis.Pipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, TripCreateCooldown)
		pipe.Exec(ctx)

		c.Next()
	}
}

// DisputeRateLimit limite les dépôts de litige par passager
func DisputeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		ctx := context.Background()
		key := "dispute_create:" + userID

		requests, _ := database.Redis.Get(ctx, key).Int()
		if requests >= DisputeMaxRequests {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Trop de litiges déposés. Réessayez plus tard",
				"retry_after": int(DisputeCooldown.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()

		// N'incrémenter que les dépôts acceptés
		if c.Writer.Status() == http.StatusCreated {
			pipe := database.Redis.Pipeline()
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, DisputeCooldown)
			pipe.Exec(ctx)
		}
	}
}
