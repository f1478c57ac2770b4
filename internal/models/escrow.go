package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	EscrowStatusHeld              = "held"
	EscrowStatusReleasedToDriver  = "released_to_driver"
	EscrowStatusRefundedToRider   = "refunded_to_rider"
	EscrowStatusPartiallyRefunded = "partially_refunded"
	EscrowStatusVoided            = "voided"
)

// Escrow : fonds retenus pour une autre raison que le règlement normal
// (litige, alerte sécurité, règlement différé). Si dispute_id est renseigné,
// le litige référencé doit porter sur la même course.
type Escrow struct {
	ID         gocql.UUID  `json:"id" db:"escrow_id"`
	TripID     gocql.UUID  `json:"trip_id" db:"trip_id"`
	DisputeID  *gocql.UUID `json:"dispute_id,omitempty" db:"dispute_id"`
	Amount     float64     `json:"amount" db:"amount"`
	Note       string      `json:"note,omitempty" db:"note"`
	Status     string      `json:"status" db:"status"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	ReleasedAt *time.Time  `json:"released_at,omitempty" db:"released_at"`
}
