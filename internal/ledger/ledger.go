// Package ledger porte le cycle de vie hold/capture/release/void des
// autorisations de paiement, clé par course. Toutes les opérations sont
// idempotentes vis-à-vis des états terminaux : rejouer un release ou un
// void ne produit jamais de double remboursement ni de double libération.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/models"
)

var (
	ErrAuthorizationNotFound = errors.New("autorisation introuvable")
	ErrCaptureExceedsHold    = errors.New("montant de capture supérieur au montant autorisé")
)

// Store persiste les enregistrements d'autorisation
type Store interface {
	Authorization(ctx context.Context, ref string) (*models.PaymentAuthorization, error)
	OpenAuthorizationByTrip(ctx context.Context, tripID gocql.UUID) (*models.PaymentAuthorization, error)
	InsertAuthorization(ctx context.Context, auth *models.PaymentAuthorization) error
	SetState(ctx context.Context, ref string, state models.AuthorizationState, reason string) error
	SetCaptured(ctx context.Context, ref string, amount float64) error
}

// Processor est le processeur de paiement (Stripe en production)
type Processor interface {
	Authorize(ctx context.Context, amount float64, currency string, metadata map[string]string) (string, error)
	Capture(ctx context.Context, ref string, amount float64) error
	Cancel(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string, amount float64) (string, error)
}

// Locker sérialise les mutations d'une même course
type Locker interface {
	WithTripLock(ctx context.Context, tripID string, fn func() error) error
}

type Ledger struct {
	store     Store
	processor Processor
	locks     Locker
}

func New(store Store, processor Processor, locks Locker) *Ledger {
	return &Ledger{store: store, processor: processor, locks: locks}
}

// Hold crée une autorisation AUTHORIZED pour la course. Si une autorisation
// non terminale existe déjà (une course n'en a jamais plus d'une), elle est
// retournée telle quelle — rejouer un hold est sans effet.
func (l *Ledger) Hold(ctx context.Context, tripID gocql.UUID, amount float64, currency, reason string) (*models.PaymentAuthorization, error) {
	var auth *models.PaymentAuthorization

	err := l.locks.WithTripLock(ctx, tripID.String(), func() error {
		existing, err := l.store.OpenAuthorizationByTrip(ctx, tripID)
		if err == nil && existing != nil {
			auth = existing
			return nil
		}

		ref, err := l.processor.Authorize(ctx, amount, currency, map[string]string{
			"trip_id": tripID.String(),
			"reason":  reason,
		})
		if err != nil {
			return err
		}

		auth = &models.PaymentAuthorization{
			Ref:       ref,
			TripID:    tripID,
			Amount:    amount,
			Currency:  currency,
			State:     models.AuthStateAuthorized,
			Reason:    reason,
			CreatedAt: time.Now(),
		}
		return l.store.InsertAuthorization(ctx, auth)
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// Release libère une autorisation : AUTHORIZED → RELEASED. Sur un état
// terminal (RELEASED, VOIDED, CAPTURED) l'état courant est retourné sans
// erreur — jamais un échec qui bloquerait la transition de l'appelant.
func (l *Ledger) Release(ctx context.Context, ref Ref, tripID gocql.UUID, reason string) (models.AuthorizationState, error) {
	var state models.AuthorizationState

	err := l.locks.WithTripLock(ctx, tripID.String(), func() error {
		auth, err := l.store.Authorization(ctx, ref.ID)
		if err != nil {
			return ErrAuthorizationNotFound
		}

		state = auth.State
		if auth.State.IsTerminal() {
			// No-op : déjà libérée, annulée ou capturée
			return nil
		}

		if err := l.processor.Cancel(ctx, ref.ID); err != nil {
			return err
		}
		if err := l.store.SetState(ctx, ref.ID, models.AuthStateReleased, reason); err != nil {
			return err
		}
		state = models.AuthStateReleased
		return nil
	})
	return state, err
}

// Capture convertit l'autorisation en débit réel : AUTHORIZED → CAPTURED.
// Le montant ne peut pas dépasser le montant autorisé. Rejouer sur une
// autorisation déjà capturée est sans effet.
func (l *Ledger) Capture(ctx context.Context, ref Ref, amount float64) (*models.PaymentAuthorization, error) {
	lookup, err := l.store.Authorization(ctx, ref.ID)
	if err != nil {
		return nil, ErrAuthorizationNotFound
	}

	var auth *models.PaymentAuthorization
	err = l.locks.WithTripLock(ctx, lookup.TripID.String(), func() error {
		current, err := l.store.Authorization(ctx, ref.ID)
		if err != nil {
			return ErrAuthorizationNotFound
		}
		auth = current

		switch current.State {
		case models.AuthStateCaptured:
			return nil
		case models.AuthStateReleased, models.AuthStateVoided:
			return fmt.Errorf("capture impossible : autorisation %s déjà %s", ref.ID, current.State)
		}

		if amount > current.Amount {
			return ErrCaptureExceedsHold
		}

		if err := l.processor.Capture(ctx, ref.ID, amount); err != nil {
			return err
		}
		if err := l.store.SetCaptured(ctx, ref.ID, amount); err != nil {
			return err
		}
		current.State = models.AuthStateCaptured
		current.CapturedAmount = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// Void annule l'autorisation quel que soit son état non terminal. Si une
// capture a déjà eu lieu, un remboursement compensatoire du montant capturé
// est déclenché avant de marquer VOIDED.
func (l *Ledger) Void(ctx context.Context, ref Ref, reason string) (models.AuthorizationState, error) {
	lookup, err := l.store.Authorization(ctx, ref.ID)
	if err != nil {
		return "", ErrAuthorizationNotFound
	}

	var state models.AuthorizationState
	err = l.locks.WithTripLock(ctx, lookup.TripID.String(), func() error {
		auth, err := l.store.Authorization(ctx, ref.ID)
		if err != nil {
			return ErrAuthorizationNotFound
		}

		state = auth.State
		switch auth.State {
		case models.AuthStateReleased, models.AuthStateVoided:
			// No-op
			return nil
		case models.AuthStateCaptured:
			amount := auth.CapturedAmount
			if amount == 0 {
				amount = auth.Amount
			}
			if _, err := l.processor.Refund(ctx, ref.ID, amount); err != nil {
				return err
			}
		default:
			if err := l.processor.Cancel(ctx, ref.ID); err != nil {
				return err
			}
		}

		if err := l.store.SetState(ctx, ref.ID, models.AuthStateVoided, reason); err != nil {
			return err
		}
		state = models.AuthStateVoided
		return nil
	})
	return state, err
}

// Refund déclenche un remboursement processeur sur une autorisation capturée
// (résolution de litige). Retourne l'identifiant de remboursement du
// processeur.
func (l *Ledger) Refund(ctx context.Context, ref Ref, amount float64) (string, error) {
	return l.processor.Refund(ctx, ref.ID, amount)
}

// ReleaseTripAuthorization libère l'autorisation d'une course en résolvant
// d'abord sa référence (canonique puis legacy, puis recherche par course).
// Conçu pour être enveloppé par l'appelant : un échec ici ne doit jamais
// empêcher la course d'atteindre son propre état terminal.
func (l *Ledger) ReleaseTripAuthorization(ctx context.Context, trip *models.Trip, reason string) (models.AuthorizationState, error) {
	ref, err := ResolveTripRef(trip)
	if err != nil {
		if !errors.Is(err, ErrNoPaymentRef) {
			return "", err
		}
		auth, lookupErr := l.store.OpenAuthorizationByTrip(ctx, trip.ID)
		if lookupErr != nil || auth == nil {
			log.Printf("ℹ️ Aucune autorisation à libérer pour la course %s", trip.ID)
			return "", nil
		}
		ref = Ref{Provider: DefaultProvider, ID: auth.Ref}
	}
	return l.Release(ctx, ref, trip.ID, reason)
}
