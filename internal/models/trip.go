package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Statuts de course (cycle de vie complet côté backend)
type TripStatus string

const (
	TripStatusRequested          TripStatus = "REQUESTED"
	TripStatusSearching          TripStatus = "SEARCHING"
	TripStatusAccepted           TripStatus = "ACCEPTED"
	TripStatusDriverArriving     TripStatus = "DRIVER_ARRIVING"
	TripStatusInProgress         TripStatus = "IN_PROGRESS"
	TripStatusAwaitingSettlement TripStatus = "AWAITING_SETTLEMENT"
	TripStatusCompleted          TripStatus = "COMPLETED"
	TripStatusCancelled          TripStatus = "CANCELLED"
)

// IsTerminal indique si aucun autre changement de statut n'est attendu
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

// Qui a annulé la course
type CancelActor string

const (
	CancelledByRider  CancelActor = "RIDER"
	CancelledByDriver CancelActor = "DRIVER"
	CancelledBySystem CancelActor = "SYSTEM"
)

// Codes de raison persistés tels quels pour l'audit comptable
const (
	ReasonRiderCancelledWhileSearching = "RIDER_CANCELLED_WHILE_SEARCHING"
	ReasonNoDriversAvailable           = "NO_DRIVERS_AVAILABLE"
	ReasonDisputeWindowExpired         = "DISPUTE_WINDOW_EXPIRED"
	ReasonDisputeExists                = "DISPUTE_EXISTS"
	ReasonSOSTriggered                 = "SOS_TRIGGERED"
	ReasonNoResponseToSafetyAlert      = "no_response_to_safety_alert"
)

// Statut de paiement porté par la course elle-même
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusAuthorized = "AUTHORIZED"
	PaymentStatusHeld       = "HELD"
	PaymentStatusCaptured   = "CAPTURED"
	PaymentStatusRefunded   = "REFUNDED"
	PaymentStatusVoided     = "VOIDED"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusReleased   = "RELEASED"
)

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type Trip struct {
	ID           gocql.UUID `json:"id" db:"trip_id"`
	RiderID      string     `json:"rider_id" db:"rider_id"`
	DriverID     string     `json:"driver_id,omitempty" db:"driver_id"`
	Pickup       Location   `json:"pickup"`
	Destination  Location   `json:"destination"`
	Stops        []Location `json:"stops,omitempty"`
	VehicleClass string     `json:"vehicle_class" db:"vehicle_class"`

	Status           TripStatus  `json:"status" db:"status"`
	CancelledBy      CancelActor `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelReasonCode string      `json:"cancel_reason_code,omitempty" db:"cancel_reason_code"`

	// Référence de paiement canonique, plus l'ancien champ composite "provider:id"
	// encore présent sur les courses créées par les vieilles versions de l'app
	PaymentRef         string `json:"payment_ref,omitempty" db:"payment_ref"`
	LegacyPaymentField string `json:"legacy_payment_field,omitempty" db:"legacy_payment_field"`
	PaymentStatus      string `json:"payment_status" db:"payment_status"`

	EstimatedAmount float64 `json:"estimated_amount" db:"estimated_amount"`
	FinalAmount     float64 `json:"final_amount,omitempty" db:"final_amount"`
	Currency        string  `json:"currency" db:"currency"`
	AutoHold        bool    `json:"auto_hold" db:"auto_hold"`

	SearchingSince *time.Time `json:"searching_since,omitempty" db:"searching_since"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// ChargeableAmount retourne le montant final si la course est facturée,
// sinon l'estimation verrouillée à la demande
func (t *Trip) ChargeableAmount() float64 {
	if t.FinalAmount > 0 {
		return t.FinalAmount
	}
	return t.EstimatedAmount
}
