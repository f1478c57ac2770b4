package models

import (
	"time"

	"github.com/gocql/gocql"
)

// États d'une autorisation de paiement — transitions avant uniquement,
// jamais de retour en arrière
type AuthorizationState string

const (
	AuthStateAuthorized AuthorizationState = "AUTHORIZED"
	AuthStateCaptured   AuthorizationState = "CAPTURED"
	AuthStateReleased   AuthorizationState = "RELEASED"
	AuthStateVoided     AuthorizationState = "VOIDED"
)

// IsTerminal indique qu'aucune transition supplémentaire n'est permise.
// CAPTURED est terminal pour release() mais peut encore être remboursé
// via void() côté processeur.
func (s AuthorizationState) IsTerminal() bool {
	return s == AuthStateCaptured || s == AuthStateReleased || s == AuthStateVoided
}

type PaymentAuthorization struct {
	Ref      string             `json:"ref" db:"ref"`
	TripID   gocql.UUID         `json:"trip_id" db:"trip_id"`
	Amount   float64            `json:"amount" db:"amount"`
	Currency string             `json:"currency" db:"currency"`
	State    AuthorizationState `json:"state" db:"state"`
	Reason   string             `json:"reason,omitempty" db:"reason"`

	// Montant effectivement capturé (≤ Amount) — sert au remboursement
	// compensatoire si l'autorisation est annulée après capture
	CapturedAmount float64 `json:"captured_amount,omitempty" db:"captured_amount"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}
