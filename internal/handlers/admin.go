package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"koursa_back_end/internal/disputes"
	"koursa_back_end/internal/models"
	services "koursa_back_end/internal/service"
)

// ListDisputes retourne les litiges ouverts, ou une recherche plein texte
// via Elasticsearch si ?q= est fourni (console ops)
func ListDisputes(c *gin.Context) {
	if q := c.Query("q"); q != "" {
		results, err := services.SearchDisputes(q)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur recherche litiges"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"disputes": results, "count": len(results)})
		return
	}

	list, err := Disputes.OpenDisputes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture litiges"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"disputes": list, "count": len(list)})
}

// ResolveDispute tranche un litige (approve/deny, remboursement éventuel,
// strike chauffeur éventuel)
func ResolveDispute(c *gin.Context) {
	adminID := c.GetString("user_id")
	disputeID := c.Param("disputeId")

	disputeUUID, err := gocql.ParseUUID(disputeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID litige invalide"})
		return
	}

	var req struct {
		Decision     string  `json:"decision" binding:"required,oneof=approved denied"`
		Resolution   string  `json:"resolution" binding:"required,min=10,max=1000"`
		RefundAmount float64 `json:"refund_amount" binding:"gte=0"`
		IssueStrike  bool    `json:"issue_strike"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	d, err := Engine.ResolveDispute(c.Request.Context(), disputeUUID, req.Decision, req.Resolution, req.RefundAmount, req.IssueStrike, adminID)
	switch {
	case errors.Is(err, disputes.ErrDisputeAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "Ce litige est déjà tranché"})
		return
	case err != nil:
		log.Printf("❌ Erreur résolution litige %s: %v", disputeID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur résolution litige"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Litige tranché", "dispute": d})
}

// VoidTripPayment annule intégralement le paiement d'une course (issues de
// sécurité : rien ne doit être crédité au chauffeur)
func VoidTripPayment(c *gin.Context) {
	tripID := c.Param("tripId")

	tripUUID, err := gocql.ParseUUID(tripID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID course invalide"})
		return
	}

	var req struct {
		ReasonCode string `json:"reason_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code de raison requis"})
		return
	}

	if req.ReasonCode != models.ReasonSOSTriggered && req.ReasonCode != models.ReasonNoResponseToSafetyAlert {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code de raison non éligible à l'annulation de paiement"})
		return
	}

	if err := Engine.VoidPayment(c.Request.Context(), tripUUID, req.ReasonCode); err != nil {
		log.Printf("❌ Erreur annulation paiement course %s: %v", tripID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur annulation paiement"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Paiement annulé et remboursé intégralement"})
}

// ListEscrows expose l'état des fonds retenus (console ops)
func ListEscrows(c *gin.Context) {
	list, err := Escrows.Escrows(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture escrows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrows": list, "count": len(list)})
}

// EvidenceURL génère une URL signée temporaire vers une pièce justificative
func EvidenceURL(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Clé d'objet requise"})
		return
	}

	url, err := services.EvidenceURL(c.Request.Context(), key, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur génération URL signée"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": 900})
}
