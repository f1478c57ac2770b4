package store

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/database"
	"koursa_back_end/internal/models"
)

type EscrowStore struct{}

func NewEscrowStore() *EscrowStore {
	return &EscrowStore{}
}

func (s *EscrowStore) Insert(ctx context.Context, e *models.Escrow) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`INSERT INTO escrows (escrow_id, trip_id, dispute_id, amount, note, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TripID, e.DisputeID, e.Amount, e.Note, e.Status, e.CreatedAt).WithContext(ctx).Exec()
}

// HeldByTrip retourne l'escrow encore retenu de la course, s'il existe
func (s *EscrowStore) HeldByTrip(ctx context.Context, tripID gocql.UUID) (*models.Escrow, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT escrow_id, dispute_id, amount, note, status, created_at
		FROM escrows WHERE trip_id = ? ALLOW FILTERING`, tripID).WithContext(ctx).Iter()

	var held *models.Escrow
	for {
		e := models.Escrow{TripID: tripID}
		if !iter.Scan(&e.ID, &e.DisputeID, &e.Amount, &e.Note, &e.Status, &e.CreatedAt) {
			break
		}
		if e.Status == models.EscrowStatusHeld {
			held = &e
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return held, nil
}

// HeldSince liste les escrows retenus depuis plus longtemps que le seuil
// (balayage de réconciliation)
func (s *EscrowStore) HeldSince(ctx context.Context, cutoff time.Time) ([]models.Escrow, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT escrow_id, trip_id, dispute_id, amount, note, status, created_at
		FROM escrows WHERE status = ? AND created_at < ? ALLOW FILTERING`,
		models.EscrowStatusHeld, cutoff).WithContext(ctx).Iter()

	var escrows []models.Escrow
	for {
		var e models.Escrow
		if !iter.Scan(&e.ID, &e.TripID, &e.DisputeID, &e.Amount, &e.Note, &e.Status, &e.CreatedAt) {
			break
		}
		escrows = append(escrows, e)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return escrows, nil
}

// SetStatus fait transiter l'escrow et horodate la libération
func (s *EscrowStore) SetStatus(ctx context.Context, escrowID gocql.UUID, status, note string, at time.Time) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`UPDATE escrows SET status = ?, note = ?, released_at = ? WHERE escrow_id = ?`,
		status, note, at, escrowID).WithContext(ctx).Exec()
}

// AttachDispute relie l'escrow au litige qui vient d'être déposé
func (s *EscrowStore) AttachDispute(ctx context.Context, escrowID, disputeID gocql.UUID) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`UPDATE escrows SET dispute_id = ? WHERE escrow_id = ?`,
		disputeID, escrowID).WithContext(ctx).Exec()
}

// Escrows liste les escrows pour la vue admin
func (s *EscrowStore) Escrows(ctx context.Context) ([]models.Escrow, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT escrow_id, trip_id, dispute_id, amount, note, status, created_at, released_at
		FROM escrows`).WithContext(ctx).Iter()

	var escrows []models.Escrow
	for {
		var e models.Escrow
		var releasedAt time.Time
		if !iter.Scan(&e.ID, &e.TripID, &e.DisputeID, &e.Amount, &e.Note, &e.Status, &e.CreatedAt, &releasedAt) {
			break
		}
		if !releasedAt.IsZero() {
			e.ReleasedAt = &releasedAt
		}
		escrows = append(escrows, e)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return escrows, nil
}
