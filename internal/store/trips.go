// Package store contient l'accès ScyllaDB : annuaire des courses,
// autorisations, litiges et escrows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/database"
	"koursa_back_end/internal/models"
)

var (
	ErrTripNotFound    = errors.New("course introuvable")
	ErrDisputeNotFound = errors.New("litige introuvable")
	ErrEscrowNotFound  = errors.New("escrow introuvable")
)

type TripStore struct{}

func NewTripStore() *TripStore {
	return &TripStore{}
}

// Insert enregistre une nouvelle demande de course
func (s *TripStore) Insert(ctx context.Context, t *models.Trip) error {
	session, err := database.GetTripsSession()
	if err != nil {
		return err
	}

	return session.Query(`
		INSERT INTO trips (trip_id, rider_id, driver_id, pickup_lat, pickup_lng, pickup_address,
			dest_lat, dest_lng, dest_address, vehicle_class, status, payment_ref, legacy_payment_field,
			payment_status, estimated_amount, final_amount, currency, auto_hold, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.RiderID, t.DriverID, t.Pickup.Lat, t.Pickup.Lng, t.Pickup.Address,
		t.Destination.Lat, t.Destination.Lng, t.Destination.Address, t.VehicleClass,
		string(t.Status), t.PaymentRef, t.LegacyPaymentField, t.PaymentStatus,
		t.EstimatedAmount, t.FinalAmount, t.Currency, t.AutoHold, t.CreatedAt).
		WithContext(ctx).Exec()
}

// Trip lit une course par ID (chemin chaud : timeouts, observer, litiges)
func (s *TripStore) Trip(ctx context.Context, tripID gocql.UUID) (*models.Trip, error) {
	q := database.GetPreparedGetTripByID()
	if q == nil {
		session, err := database.GetTripsSession()
		if err != nil {
			return nil, err
		}
		q = session.Query(`SELECT rider_id, driver_id, status, cancelled_by, cancel_reason_code,
			payment_ref, legacy_payment_field, payment_status, estimated_amount, final_amount, currency,
			auto_hold, searching_since, completed_at, created_at
			FROM trips WHERE trip_id = ?`)
	}

	t := models.Trip{ID: tripID}
	var status, cancelledBy string
	var searchingSince, completedAt time.Time

	err := q.WithContext(ctx).Bind(tripID).Scan(
		&t.RiderID, &t.DriverID, &status, &cancelledBy, &t.CancelReasonCode,
		&t.PaymentRef, &t.LegacyPaymentField, &t.PaymentStatus,
		&t.EstimatedAmount, &t.FinalAmount, &t.Currency,
		&t.AutoHold, &searchingSince, &completedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}

	t.Status = models.TripStatus(status)
	t.CancelledBy = models.CancelActor(cancelledBy)
	if !searchingSince.IsZero() {
		t.SearchingSince = &searchingSince
	}
	if !completedAt.IsZero() {
		t.CompletedAt = &completedAt
	}
	return &t, nil
}

// MarkSearching horodate le début de recherche côté serveur
func (s *TripStore) MarkSearching(ctx context.Context, tripID gocql.UUID, since time.Time) error {
	q := database.GetPreparedMarkSearching()
	if q == nil {
		session, err := database.GetTripsSession()
		if err != nil {
			return err
		}
		q = session.Query(`UPDATE trips SET status = ?, searching_since = ?, updated_at = ? WHERE trip_id = ?`)
	}
	return q.WithContext(ctx).Bind(string(models.TripStatusSearching), since, time.Now(), tripID).Exec()
}

// MarkCancelled persiste l'annulation avec acteur et code de raison —
// le code est écrit tel quel, il sert à la compta en aval
func (s *TripStore) MarkCancelled(ctx context.Context, tripID gocql.UUID, by models.CancelActor, reasonCode string) error {
	q := database.GetPreparedCancelTrip()
	if q == nil {
		session, err := database.GetTripsSession()
		if err != nil {
			return err
		}
		q = session.Query(`UPDATE trips SET status = ?, cancelled_by = ?, cancel_reason_code = ?, updated_at = ?
			WHERE trip_id = ?`)
	}
	return q.WithContext(ctx).Bind(string(models.TripStatusCancelled), string(by), reasonCode, time.Now(), tripID).Exec()
}

// MarkCompleted clôt la course (réconciliation ou règlement)
func (s *TripStore) MarkCompleted(ctx context.Context, tripID gocql.UUID, at time.Time) error {
	q := database.GetPreparedMarkCompleted()
	if q == nil {
		session, err := database.GetTripsSession()
		if err != nil {
			return err
		}
		q = session.Query(`UPDATE trips SET status = ?, completed_at = ?, updated_at = ? WHERE trip_id = ?`)
	}
	return q.WithContext(ctx).Bind(string(models.TripStatusCompleted), at, time.Now(), tripID).Exec()
}

// SetPaymentRef écrit la référence canonique après création du hold
func (s *TripStore) SetPaymentRef(ctx context.Context, tripID gocql.UUID, ref string) error {
	session, err := database.GetTripsSession()
	if err != nil {
		return err
	}
	return session.Query(`UPDATE trips SET payment_ref = ?, updated_at = ? WHERE trip_id = ?`,
		ref, time.Now(), tripID).WithContext(ctx).Exec()
}

// SetPaymentStatus met à jour l'état de paiement porté par la course
func (s *TripStore) SetPaymentStatus(ctx context.Context, tripID gocql.UUID, status string) error {
	q := database.GetPreparedUpdateTripPayment()
	if q == nil {
		session, err := database.GetTripsSession()
		if err != nil {
			return err
		}
		q = session.Query(`UPDATE trips SET payment_status = ?, updated_at = ? WHERE trip_id = ?`)
	}
	return q.WithContext(ctx).Bind(status, time.Now(), tripID).Exec()
}

// TripsByRider liste les courses d'un passager (suivi dans l'app)
func (s *TripStore) TripsByRider(ctx context.Context, riderID string) ([]models.Trip, error) {
	session, err := database.GetTripsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT trip_id, status, payment_status, estimated_amount, final_amount, currency,
		cancel_reason_code, completed_at, created_at
		FROM trips WHERE rider_id = ? ALLOW FILTERING`, riderID).WithContext(ctx).Iter()

	var trips []models.Trip
	for {
		var t models.Trip
		var status string
		var completedAt time.Time
		if !iter.Scan(&t.ID, &status, &t.PaymentStatus, &t.EstimatedAmount, &t.FinalAmount,
			&t.Currency, &t.CancelReasonCode, &completedAt, &t.CreatedAt) {
			break
		}
		t.RiderID = riderID
		t.Status = models.TripStatus(status)
		if !completedAt.IsZero() {
			t.CompletedAt = &completedAt
		}
		trips = append(trips, t)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return trips, nil
}
