package middleware

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret = []byte(os.Getenv("JWT_SECRET"))

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		var tokenString string
		switch {
		case authHeader != "":
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Printf("❌ Format Authorization invalide: %v parties", len(parts))
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Format Authorization invalide"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		case c.Query("token") != "":
			// Les navigateurs ne posent pas de header sur un upgrade WebSocket
			tokenString = c.Query("token")
		default:
			log.Println("❌ Pas de header Authorization")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token manquant"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("méthode de signature inattendue: %v", token.Header["alg"])
			}
			return jwtSecret, nil
		})

		if err != nil {
			log.Printf("❌ Erreur parsing JWT: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
			// Vérifier l'expiration
			if exp, ok := claims["exp"].(float64); ok {
				if time.Now().Unix() > int64(exp) {
					log.Println("❌ Token expiré")
					c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expiré"})
					c.Abort()
					return
				}
			}

			userID, ok := claims["user_id"].(string)
			if !ok {
				log.Printf("❌ user_id manquant ou invalide dans claims: %+v", claims)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id manquant"})
				c.Abort()
				return
			}

			// ✅ Mettre les claims dans le context Gin
			c.Set("user_id", userID)
			c.Set("email", claims["email"])
			c.Set("role", claims["role"])

			c.Next()
		} else {
			log.Println("❌ Claims invalides")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
			c.Abort()
			return
		}
	}
}
