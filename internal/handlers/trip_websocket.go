package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/gorilla/websocket"

	"koursa_back_end/internal/coordinator"
	"koursa_back_end/internal/database"
	"koursa_back_end/internal/observer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Autoriser toutes les origines (à ajuster en production)
		return true
	},
}

// TripWebSocket pousse en temps réel les changements de statut de la course
// et les demandes de décision (continuer/annuler la recherche)
func TripWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	tripID := c.Param("tripId")

	tripUUID, err := gocql.ParseUUID(tripID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID course invalide"})
		return
	}

	trip, err := Trips.Trip(c.Request.Context(), tripUUID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course introuvable"})
		return
	}
	if trip.RiderID != userID && trip.DriverID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cette course ne vous appartient pas"})
		return
	}

	// Upgrade vers WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ Erreur upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	ctx := context.Background()

	// Statuts + demandes de décision sur un seul abonnement
	pubsub := database.Redis.Subscribe(ctx,
		observer.StatusChannel(tripID),
		coordinator.DecisionChannel(tripID),
	)
	defer pubsub.Close()

	ch := pubsub.Channel()

	// Envoyer un message de connexion avec l'état courant
	conn.WriteJSON(map[string]interface{}{
		"type":   "connected",
		"status": trip.Status,
		"search": searchStateJSON(tripID),
	})

	// Boucle d'écoute
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Les payloads Redis sont déjà du JSON, on les relaie tels quels
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Printf("❌ Erreur envoi WebSocket: %v", err)
				return
			}
		case <-time.After(30 * time.Second):
			// Ping pour garder la connexion active
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
