package store

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/database"
	"koursa_back_end/internal/models"
)

type DisputeStore struct{}

func NewDisputeStore() *DisputeStore {
	return &DisputeStore{}
}

func (s *DisputeStore) Insert(ctx context.Context, d *models.Dispute) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`INSERT INTO disputes (dispute_id, trip_id, rider_id, driver_id, amount, reason_code,
		details, status, evidence, auto_hold, strike_issued, review_deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TripID, d.RiderID, d.DriverID, d.Amount, d.ReasonCode, d.Details, d.Status,
		d.Evidence, d.AutoHold, d.StrikeIssued, d.ReviewDeadline, d.CreatedAt).WithContext(ctx).Exec()
}

func (s *DisputeStore) Dispute(ctx context.Context, disputeID gocql.UUID) (*models.Dispute, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	d := models.Dispute{ID: disputeID}
	var resolvedAt time.Time

	err = session.Query(`SELECT trip_id, rider_id, driver_id, amount, reason_code, details, status, evidence,
		auto_hold, strike_issued, resolution, resolved_by, review_deadline, created_at, resolved_at
		FROM disputes WHERE dispute_id = ?`, disputeID).WithContext(ctx).
		Scan(&d.TripID, &d.RiderID, &d.DriverID, &d.Amount, &d.ReasonCode, &d.Details, &d.Status,
			&d.Evidence, &d.AutoHold, &d.StrikeIssued, &d.Resolution, &d.ResolvedBy,
			&d.ReviewDeadline, &d.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}

	if !resolvedAt.IsZero() {
		d.ResolvedAt = &resolvedAt
	}
	return &d, nil
}

// OpenDisputeByTrip retourne le litige ouvert (pending/under_review) de la
// course, s'il existe — il n'y en a jamais plus d'un
func (s *DisputeStore) OpenDisputeByTrip(ctx context.Context, tripID gocql.UUID) (*models.Dispute, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT dispute_id, rider_id, driver_id, amount, reason_code, status, created_at
		FROM disputes WHERE trip_id = ? ALLOW FILTERING`, tripID).WithContext(ctx).Iter()

	var open *models.Dispute
	for {
		d := models.Dispute{TripID: tripID}
		if !iter.Scan(&d.ID, &d.RiderID, &d.DriverID, &d.Amount, &d.ReasonCode, &d.Status, &d.CreatedAt) {
			break
		}
		if d.IsOpen() {
			open = &d
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return open, nil
}

// Resolve écrit la décision, le texte de résolution et l'horodatage
func (s *DisputeStore) Resolve(ctx context.Context, disputeID gocql.UUID, status, resolution, resolvedBy string, strikeIssued bool, at time.Time) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`UPDATE disputes SET status = ?, resolution = ?, resolved_by = ?, strike_issued = ?,
		resolved_at = ? WHERE dispute_id = ?`,
		status, resolution, resolvedBy, strikeIssued, at, disputeID).WithContext(ctx).Exec()
}

// DisputesByRider liste les litiges déposés par un passager
func (s *DisputeStore) DisputesByRider(ctx context.Context, riderID string) ([]models.Dispute, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT dispute_id, trip_id, driver_id, amount, reason_code, details, status,
		resolution, review_deadline, created_at
		FROM disputes WHERE rider_id = ? ALLOW FILTERING`, riderID).WithContext(ctx).Iter()

	var disputes []models.Dispute
	for {
		d := models.Dispute{RiderID: riderID}
		if !iter.Scan(&d.ID, &d.TripID, &d.DriverID, &d.Amount, &d.ReasonCode, &d.Details, &d.Status,
			&d.Resolution, &d.ReviewDeadline, &d.CreatedAt) {
			break
		}
		disputes = append(disputes, d)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return disputes, nil
}

// OpenDisputes liste tous les litiges en attente de traitement (file ops)
func (s *DisputeStore) OpenDisputes(ctx context.Context) ([]models.Dispute, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT dispute_id, trip_id, rider_id, driver_id, amount, reason_code, details,
		status, evidence, review_deadline, created_at
		FROM disputes WHERE status IN ('pending', 'under_review') ALLOW FILTERING`).WithContext(ctx).Iter()

	var disputes []models.Dispute
	for {
		var d models.Dispute
		if !iter.Scan(&d.ID, &d.TripID, &d.RiderID, &d.DriverID, &d.Amount, &d.ReasonCode, &d.Details,
			&d.Status, &d.Evidence, &d.ReviewDeadline, &d.CreatedAt) {
			break
		}
		disputes = append(disputes, d)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return disputes, nil
}
