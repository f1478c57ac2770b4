package utils

import (
	"context"
	"log"

	"koursa_back_end/internal/models"
	"koursa_back_end/internal/store"
)

// EmailNotifier prévient le passager et le chauffeur par e-mail lors des
// événements de litige. Les échecs d'envoi sont loggés, jamais bloquants.
type EmailNotifier struct {
	Users *store.UserStore
}

func NewEmailNotifier(users *store.UserStore) *EmailNotifier {
	return &EmailNotifier{Users: users}
}

func (n *EmailNotifier) DisputeFiled(ctx context.Context, trip *models.Trip, d *models.Dispute) {
	subject := "⚠️ Un litige a été ouvert sur votre course Koursa"
	html := GenerateDisputeFiledHTML(d.ReasonCode, d.Amount, d.ReviewDeadline.Format("02/01/2006 15:04"))
	n.sendToParties(ctx, trip, subject, html)
}

func (n *EmailNotifier) DisputeResolved(ctx context.Context, trip *models.Trip, d *models.Dispute, decision string, refundAmount float64) {
	subject := "✅ Votre litige Koursa a été traité"
	html := GenerateDisputeResolvedHTML(decision, refundAmount, d.Resolution)
	n.sendToParties(ctx, trip, subject, html)
}

func (n *EmailNotifier) sendToParties(ctx context.Context, trip *models.Trip, subject, html string) {
	for _, userID := range []string{trip.RiderID, trip.DriverID} {
		if userID == "" {
			continue
		}
		user, err := n.Users.User(ctx, userID)
		if err != nil {
			log.Printf("⚠️ E-mail litige non envoyé, utilisateur %s illisible: %v", userID, err)
			continue
		}
		go func(email string) {
			if err := SendNotificationEmail(email, subject, html); err != nil {
				log.Printf("❌ Erreur envoi e-mail litige à %s: %v", email, err)
			}
		}(user.Email)
	}
}
