package store

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/database"
	"koursa_back_end/internal/ledger"
	"koursa_back_end/internal/models"
)

// PaymentStore implémente ledger.Store sur le keyspace payments
type PaymentStore struct{}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{}
}

var _ ledger.Store = (*PaymentStore)(nil)

func (s *PaymentStore) Authorization(ctx context.Context, ref string) (*models.PaymentAuthorization, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	a := models.PaymentAuthorization{Ref: ref}
	var state string
	var updatedAt time.Time

	err = session.Query(`SELECT trip_id, amount, currency, state, reason, captured_amount, created_at, updated_at
		FROM authorizations WHERE ref = ?`, ref).WithContext(ctx).
		Scan(&a.TripID, &a.Amount, &a.Currency, &state, &a.Reason, &a.CapturedAmount, &a.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ledger.ErrAuthorizationNotFound
		}
		return nil, err
	}

	a.State = models.AuthorizationState(state)
	if !updatedAt.IsZero() {
		a.UpdatedAt = &updatedAt
	}
	return &a, nil
}

// OpenAuthorizationByTrip retourne l'autorisation non terminale de la
// course, s'il y en a une (il n'y en a jamais plus d'une)
func (s *PaymentStore) OpenAuthorizationByTrip(ctx context.Context, tripID gocql.UUID) (*models.PaymentAuthorization, error) {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT ref, amount, currency, state, reason, captured_amount, created_at
		FROM authorizations WHERE trip_id = ? ALLOW FILTERING`, tripID).WithContext(ctx).Iter()

	var open *models.PaymentAuthorization
	for {
		a := models.PaymentAuthorization{TripID: tripID}
		var state string
		if !iter.Scan(&a.Ref, &a.Amount, &a.Currency, &state, &a.Reason, &a.CapturedAmount, &a.CreatedAt) {
			break
		}
		a.State = models.AuthorizationState(state)
		if !a.State.IsTerminal() {
			open = &a
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return open, nil
}

func (s *PaymentStore) InsertAuthorization(ctx context.Context, auth *models.PaymentAuthorization) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`INSERT INTO authorizations (ref, trip_id, amount, currency, state, reason, captured_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		auth.Ref, auth.TripID, auth.Amount, auth.Currency, string(auth.State), auth.Reason,
		auth.CapturedAmount, auth.CreatedAt).WithContext(ctx).Exec()
}

func (s *PaymentStore) SetState(ctx context.Context, ref string, state models.AuthorizationState, reason string) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`UPDATE authorizations SET state = ?, reason = ?, updated_at = ? WHERE ref = ?`,
		string(state), reason, time.Now(), ref).WithContext(ctx).Exec()
}

func (s *PaymentStore) SetCaptured(ctx context.Context, ref string, amount float64) error {
	session, err := database.GetPaymentsSession()
	if err != nil {
		return err
	}
	return session.Query(`UPDATE authorizations SET state = ?, captured_amount = ?, updated_at = ? WHERE ref = ?`,
		string(models.AuthStateCaptured), amount, time.Now(), ref).WithContext(ctx).Exec()
}
