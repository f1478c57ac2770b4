package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"koursa_back_end/internal/coordinator"
	"koursa_back_end/internal/dispatch"
	"koursa_back_end/internal/models"
	"koursa_back_end/internal/store"
)

// CreateTrip enregistre la demande de course, pose le hold sur le montant
// estimé, envoie la première demande de mise en relation et arme la
// fenêtre de recherche
func CreateTrip(c *gin.Context) {
	userID := c.GetString("user_id")

	var req struct {
		Pickup          models.Location   `json:"pickup" binding:"required"`
		Destination     models.Location   `json:"destination" binding:"required"`
		Stops           []models.Location `json:"stops"`
		VehicleClass    string            `json:"vehicle_class"`
		EstimatedAmount float64           `json:"estimated_amount" binding:"required,gt=0"`
		Currency        string            `json:"currency"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	if req.Currency == "" {
		req.Currency = "eur"
	}
	if req.VehicleClass == "" {
		req.VehicleClass = "standard"
	}

	trip := models.Trip{
		ID:              gocql.TimeUUID(),
		RiderID:         userID,
		Pickup:          req.Pickup,
		Destination:     req.Destination,
		Stops:           req.Stops,
		VehicleClass:    req.VehicleClass,
		Status:          models.TripStatusRequested,
		PaymentStatus:   models.PaymentStatusPending,
		EstimatedAmount: req.EstimatedAmount,
		Currency:        req.Currency,
		CreatedAt:       time.Now(),
	}

	if err := Trips.Insert(c.Request.Context(), &trip); err != nil {
		log.Printf("❌ Erreur création course: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création course"})
		return
	}

	// L'estimation est verrouillée maintenant : le hold porte sur ce
	// montant quoi qu'il arrive ensuite
	auth, err := Ledger.Hold(c.Request.Context(), trip.ID, trip.EstimatedAmount, trip.Currency, "trip estimate")
	if err != nil {
		log.Printf("❌ Autorisation de paiement refusée pour la course %s: %v", trip.ID, err)
		Trips.MarkCancelled(c.Request.Context(), trip.ID, models.CancelledBySystem, "PAYMENT_DECLINED")
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Paiement refusé"})
		return
	}

	Trips.SetPaymentRef(c.Request.Context(), trip.ID, auth.Ref)
	Trips.SetPaymentStatus(c.Request.Context(), trip.ID, models.PaymentStatusAuthorized)
	trip.PaymentRef = auth.Ref
	trip.PaymentStatus = models.PaymentStatusAuthorized

	// Première demande : rayon resserré, l'élargissement vient avec les
	// relances
	if err := Dispatch.ResendMatchRequest(c.Request.Context(), trip.ID.String(), false); err != nil {
		log.Printf("⚠️ Demande de mise en relation initiale échouée pour %s: %v", trip.ID, err)
	}

	if err := Coord.Start(c.Request.Context(), &trip); err != nil {
		log.Printf("⚠️ Suivi de recherche non démarré pour %s: %v", trip.ID, err)
	}

	log.Printf("🚕 Course %s créée pour %s (%.2f %s autorisés)", trip.ID, userID, trip.EstimatedAmount, trip.Currency)

	c.JSON(http.StatusCreated, gin.H{
		"trip":   trip,
		"search": searchStateJSON(trip.ID.String()),
	})
}

// RetryTrip est la décision "continuer la recherche" du passager après
// l'épuisement des relances automatiques
func RetryTrip(c *gin.Context) {
	userID := c.GetString("user_id")
	tripID := c.Param("tripId")

	if !ownsTrip(c, tripID, userID) {
		return
	}

	state, err := Coord.ManualRetry(c.Request.Context(), tripID)
	switch {
	case errors.Is(err, coordinator.ErrSearchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Aucune recherche active pour cette course"})
		return
	case errors.Is(err, coordinator.ErrNoDecisionPending):
		c.JSON(http.StatusConflict, gin.H{"error": "Aucune décision en attente", "phase": string(state.Phase)})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur relance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Recherche relancée sur toute la zone",
		"search":  stateJSON(state),
	})
}

// CancelTrip est l'annulation explicite du passager pendant la recherche
func CancelTrip(c *gin.Context) {
	userID := c.GetString("user_id")
	tripID := c.Param("tripId")

	var req struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&req) // raison facultative

	if !ownsTrip(c, tripID, userID) {
		return
	}

	if err := Coord.Cancel(c.Request.Context(), tripID, req.Reason); err != nil {
		if errors.Is(err, store.ErrTripNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course introuvable"})
			return
		}
		if errors.Is(err, dispatch.ErrTripNotCancellable) {
			c.JSON(http.StatusConflict, gin.H{"error": "La course n'est plus annulable"})
			return
		}
		log.Printf("❌ Erreur annulation course %s: %v", tripID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur annulation"})
		return
	}

	log.Printf("🚫 Course %s annulée par le passager %s", tripID, userID)
	c.JSON(http.StatusOK, gin.H{"message": "Course annulée, aucun montant débité"})
}

// GetTrip retourne la course et, si une recherche est en cours, son état
func GetTrip(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{
		"trip":   trip,
		"search": searchStateJSON(tripID),
	})
}

// ownsTrip vérifie que la course appartient bien au passager authentifié
func ownsTrip(c *gin.Context, tripID, userID string) bool {
	tripUUID, err := gocql.ParseUUID(tripID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID course invalide"})
		return false
	}

	trip, err := Trips.Trip(c.Request.Context(), tripUUID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course introuvable"})
		return false
	}
	if trip.RiderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cette course ne vous appartient pas"})
		return false
	}
	return true
}

func searchStateJSON(tripID string) gin.H {
	state, ok := Coord.SearchState(tripID)
	if !ok {
		return nil
	}
	return stateJSON(state)
}

func stateJSON(state coordinator.State) gin.H {
	return gin.H{
		"phase":              string(state.Phase),
		"attempt":            state.Attempt,
		"attempts_remaining": coordinator.TotalMaxRetries - state.Attempt,
	}
}
