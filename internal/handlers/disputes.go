package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"koursa_back_end/internal/disputes"
	"koursa_back_end/internal/models"
	services "koursa_back_end/internal/service"
	"koursa_back_end/internal/store"
)

// CreateDispute dépose un litige sur une course terminée (multipart : champs
// + pièces justificatives). La fenêtre de 24h est validée côté serveur.
func CreateDispute(c *gin.Context) {
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
	if trip.RiderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cette course ne vous appartient pas"})
		return
	}

	reasonCode := c.PostForm("reason_code")
	details := c.PostForm("details")
	if reasonCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Motif requis"})
		return
	}

	// Pièces justificatives facultatives, stockées dans MinIO
	var evidence []string
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, file := range form.File["evidence"] {
			key, err := services.UploadEvidence(c.Request.Context(), tripID, file)
			if err != nil {
				log.Printf("⚠️ Pièce justificative non stockée pour %s: %v", tripID, err)
				continue
			}
			evidence = append(evidence, key)
		}
	}

	d, err := Engine.CreateDispute(c.Request.Context(), tripUUID, userID, reasonCode, details, evidence)
	switch {
	case errors.Is(err, disputes.ErrDisputeWindowExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "La fenêtre de contestation de 24h est dépassée",
			"code":  models.ReasonDisputeWindowExpired,
		})
		return
	case errors.Is(err, disputes.ErrDisputeExists):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Un litige est déjà ouvert sur cette course",
			"code":  models.ReasonDisputeExists,
		})
		return
	case errors.Is(err, disputes.ErrTripNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": "La course n'est pas terminée"})
		return
	case err != nil:
		log.Printf("❌ Erreur dépôt litige sur %s: %v", tripID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur dépôt litige"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Litige déposé, le paiement est retenu le temps de l'examen",
		"dispute": d,
	})
}

// MyDisputes liste les litiges du passager authentifié
func MyDisputes(c *gin.Context) {
	userID := c.GetString("user_id")

	list, err := Disputes.DisputesByRider(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, store.ErrDisputeNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture litiges"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"disputes": list, "count": len(list)})
}
