package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	DisputeStatusPending     = "pending"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusApproved    = "approved"
	DisputeStatusDenied      = "denied"
)

// Fenêtres contractuelles : dépôt de litige et délai de traitement ops
const (
	DisputeWindowHours  = 24
	ReviewDeadlineHours = 48
)

// Note persistée quand la réconciliation libère un paiement sans litige
const AutoReleaseNote = "Auto-released: No dispute filed within window"

type Dispute struct {
	ID         gocql.UUID `json:"id" db:"dispute_id"`
	TripID     gocql.UUID `json:"trip_id" db:"trip_id"`
	RiderID    string     `json:"rider_id" db:"rider_id"`
	DriverID   string     `json:"driver_id" db:"driver_id"`
	Amount     float64    `json:"amount" db:"amount"`
	ReasonCode string     `json:"reason_code" db:"reason_code"`
	Details    string     `json:"details,omitempty" db:"details"`
	Status     string     `json:"status" db:"status"`

	// Clés d'objets MinIO des pièces jointes (photos, captures, reçus)
	Evidence []string `json:"evidence,omitempty" db:"evidence"`

	AutoHold     bool `json:"auto_hold" db:"auto_hold"`
	StrikeIssued bool `json:"strike_issued" db:"strike_issued"`

	Resolution     string     `json:"resolution,omitempty" db:"resolution"`
	ResolvedBy     string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ReviewDeadline time.Time  `json:"review_deadline" db:"review_deadline"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// IsOpen : un seul litige ouvert par course à la fois
func (d *Dispute) IsOpen() bool {
	return d.Status == DisputeStatusPending || d.Status == DisputeStatusUnderReview
}
