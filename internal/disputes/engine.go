// Package disputes porte le dépôt de litiges post-course, la résolution
// d'escrow, et le balayage de réconciliation qui garantit qu'aucun fonds
// ne reste gelé indéfiniment.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/ledger"
	"koursa_back_end/internal/models"
)

// Erreurs de validation — remontées immédiatement, rien n'est muté
var (
	ErrDisputeWindowExpired   = errors.New(models.ReasonDisputeWindowExpired)
	ErrDisputeExists          = errors.New(models.ReasonDisputeExists)
	ErrTripNotCompleted       = errors.New("la course n'est pas terminée")
	ErrDisputeAlreadyResolved = errors.New("litige déjà tranché")
)

// Trips est la vue de l'annuaire des courses nécessaire au moteur
type Trips interface {
	Trip(ctx context.Context, tripID gocql.UUID) (*models.Trip, error)
	SetPaymentStatus(ctx context.Context, tripID gocql.UUID, status string) error
	MarkCompleted(ctx context.Context, tripID gocql.UUID, at time.Time) error
}

type Disputes interface {
	Insert(ctx context.Context, d *models.Dispute) error
	Dispute(ctx context.Context, disputeID gocql.UUID) (*models.Dispute, error)
	OpenDisputeByTrip(ctx context.Context, tripID gocql.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, disputeID gocql.UUID, status, resolution, resolvedBy string, strikeIssued bool, at time.Time) error
}

type Escrows interface {
	Insert(ctx context.Context, e *models.Escrow) error
	HeldByTrip(ctx context.Context, tripID gocql.UUID) (*models.Escrow, error)
	HeldSince(ctx context.Context, cutoff time.Time) ([]models.Escrow, error)
	SetStatus(ctx context.Context, escrowID gocql.UUID, status, note string, at time.Time) error
	AttachDispute(ctx context.Context, escrowID, disputeID gocql.UUID) error
}

// Payments est le sous-ensemble du ledger utilisé par le moteur
type Payments interface {
	Hold(ctx context.Context, tripID gocql.UUID, amount float64, currency, reason string) (*models.PaymentAuthorization, error)
	Refund(ctx context.Context, ref ledger.Ref, amount float64) (string, error)
	Void(ctx context.Context, ref ledger.Ref, reason string) (models.AuthorizationState, error)
}

// Notifier prévient les deux parties par e-mail
type Notifier interface {
	DisputeFiled(ctx context.Context, trip *models.Trip, d *models.Dispute)
	DisputeResolved(ctx context.Context, trip *models.Trip, d *models.Dispute, decision string, refundAmount float64)
}

// OpsQueue pousse le litige vers la file de traitement des opérations
type OpsQueue interface {
	EnqueueDispute(ctx context.Context, d *models.Dispute)
}

// Strikes émet une sanction de réputation contre un chauffeur (sous-système
// externe de standing)
type Strikes interface {
	IssueStrike(ctx context.Context, driverID string, tripID gocql.UUID, reason, severity string) error
}

type Engine struct {
	trips    Trips
	disputes Disputes
	escrows  Escrows
	payments Payments
	locks    ledger.Locker
	notifier Notifier
	ops      OpsQueue
	strikes  Strikes

	// Horloge injectable pour tester les bornes de fenêtre
	now func() time.Time
}

func NewEngine(trips Trips, disputes Disputes, escrows Escrows, payments Payments, locks ledger.Locker, notifier Notifier, ops OpsQueue, strikes Strikes) *Engine {
	return &Engine{
		trips:    trips,
		disputes: disputes,
		escrows:  escrows,
		payments: payments,
		locks:    locks,
		notifier: notifier,
		ops:      ops,
		strikes:  strikes,
		now:      time.Now,
	}
}

// WithClock remplace l'horloge (tests)
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateDispute dépose un litige sur une course terminée. La fenêtre de
// dépôt est validée contre le completed_at stocké côté serveur, jamais
// contre l'horloge du client. Un seul litige ouvert par course.
func (e *Engine) CreateDispute(ctx context.Context, tripID gocql.UUID, riderID, reasonCode, details string, evidence []string) (*models.Dispute, error) {
	trip, err := e.trips.Trip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.CompletedAt == nil {
		return nil, ErrTripNotCompleted
	}

	now := e.now()
	if now.Sub(*trip.CompletedAt) > models.DisputeWindowHours*time.Hour {
		return nil, ErrDisputeWindowExpired
	}

	if open, err := e.disputes.OpenDisputeByTrip(ctx, tripID); err != nil {
		return nil, err
	} else if open != nil {
		return nil, ErrDisputeExists
	}

	d := &models.Dispute{
		ID:             gocql.TimeUUID(),
		TripID:         tripID,
		RiderID:        riderID,
		DriverID:       trip.DriverID,
		Amount:         trip.ChargeableAmount(),
		ReasonCode:     reasonCode,
		Details:        details,
		Status:         models.DisputeStatusPending,
		Evidence:       evidence,
		ReviewDeadline: now.Add(models.ReviewDeadlineHours * time.Hour),
		CreatedAt:      now,
	}

	err = e.locks.WithTripLock(ctx, tripID.String(), func() error {
		escrow, autoHeld, err := e.ensureEscrow(ctx, trip, d.Amount, "dispute: "+reasonCode)
		if err != nil {
			return err
		}
		d.AutoHold = autoHeld

		if err := e.disputes.Insert(ctx, d); err != nil {
			return err
		}
		if err := e.escrows.AttachDispute(ctx, escrow.ID, d.ID); err != nil {
			// L'escrow existe et le litige aussi : correction manuelle
			// possible, on ne retente pas en aveugle
			log.Printf("⚠️ Liaison escrow %s ↔ litige %s échouée: %v", escrow.ID, d.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.notifier != nil {
		e.notifier.DisputeFiled(ctx, trip, d)
	}
	if e.ops != nil {
		e.ops.EnqueueDispute(ctx, d)
	}

	log.Printf("📋 Litige %s déposé sur la course %s (%s)", d.ID, tripID, reasonCode)
	return d, nil
}

// ensureEscrow garantit qu'un escrow retenu existe pour la course. Si le
// paiement n'est pas déjà retenu, un hold est posé via le ledger.
func (e *Engine) ensureEscrow(ctx context.Context, trip *models.Trip, amount float64, note string) (*models.Escrow, bool, error) {
	if existing, err := e.escrows.HeldByTrip(ctx, trip.ID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	autoHeld := false
	if trip.PaymentStatus != models.PaymentStatusHeld && trip.PaymentStatus != models.PaymentStatusAuthorized {
		currency := trip.Currency
		if currency == "" {
			currency = "eur"
		}
		if _, err := e.payments.Hold(ctx, trip.ID, amount, currency, note); err != nil {
			return nil, false, fmt.Errorf("pose du hold impossible: %w", err)
		}
		autoHeld = true
	}
	if err := e.trips.SetPaymentStatus(ctx, trip.ID, models.PaymentStatusHeld); err != nil {
		return nil, false, err
	}

	escrow := &models.Escrow{
		ID:        gocql.TimeUUID(),
		TripID:    trip.ID,
		Amount:    amount,
		Note:      note,
		Status:    models.EscrowStatusHeld,
		CreatedAt: e.now(),
	}
	if err := e.escrows.Insert(ctx, escrow); err != nil {
		return nil, false, err
	}
	return escrow, autoHeld, nil
}

// ResolveDispute tranche un litige. approved + remboursement > 0 :
// remboursement processeur réel, escrow refunded_to_rider (total) ou
// partially_refunded (partiel). denied ou approved sans remboursement :
// escrow released_to_driver. Le strike éventuel part vers le sous-système
// de standing avec sévérité haute.
func (e *Engine) ResolveDispute(ctx context.Context, disputeID gocql.UUID, decision, resolution string, refundAmount float64, issueStrike bool, resolvedBy string) (*models.Dispute, error) {
	if decision != models.DisputeStatusApproved && decision != models.DisputeStatusDenied {
		return nil, fmt.Errorf("décision invalide: %q", decision)
	}

	d, err := e.disputes.Dispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.IsOpen() {
		return nil, ErrDisputeAlreadyResolved
	}

	trip, err := e.trips.Trip(ctx, d.TripID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	err = e.locks.WithTripLock(ctx, d.TripID.String(), func() error {
		escrow, err := e.escrows.HeldByTrip(ctx, d.TripID)
		if err != nil {
			return err
		}

		refunded := decision == models.DisputeStatusApproved && refundAmount > 0
		if refunded {
			ref, err := ledger.ResolveTripRef(trip)
			if err != nil {
				return err
			}
			if _, err := e.payments.Refund(ctx, ref, refundAmount); err != nil {
				return err
			}

			escrowStatus := models.EscrowStatusPartiallyRefunded
			if refundAmount >= d.Amount {
				escrowStatus = models.EscrowStatusRefundedToRider
			}
			if escrow != nil {
				if err := e.escrows.SetStatus(ctx, escrow.ID, escrowStatus, resolution, now); err != nil {
					return err
				}
			}
			if err := e.trips.SetPaymentStatus(ctx, d.TripID, models.PaymentStatusRefunded); err != nil {
				return err
			}
		} else {
			if escrow != nil {
				if err := e.escrows.SetStatus(ctx, escrow.ID, models.EscrowStatusReleasedToDriver, resolution, now); err != nil {
					return err
				}
			}
			if err := e.trips.SetPaymentStatus(ctx, d.TripID, models.PaymentStatusCompleted); err != nil {
				return err
			}
		}

		return e.disputes.Resolve(ctx, disputeID, decision, resolution, resolvedBy, issueStrike, now)
	})
	if err != nil {
		return nil, err
	}

	d.Status = decision
	d.Resolution = resolution
	d.ResolvedBy = resolvedBy
	d.StrikeIssued = issueStrike
	d.ResolvedAt = &now

	if issueStrike && e.strikes != nil {
		if err := e.strikes.IssueStrike(ctx, d.DriverID, d.TripID, d.ReasonCode, "high"); err != nil {
			log.Printf("⚠️ Strike non émis contre le chauffeur %s: %v", d.DriverID, err)
		}
	}
	if e.notifier != nil {
		e.notifier.DisputeResolved(ctx, trip, d, decision, refundAmount)
	}

	log.Printf("⚖️ Litige %s tranché: %s (remboursement %.2f)", disputeID, decision, refundAmount)
	return d, nil
}

// AutoResolveHeldPayments est le balayage de réconciliation : tout paiement
// retenu depuis plus de 24h sans litige ouvert est libéré au chauffeur et
// la course est clôturée. C'est la garantie système que des fonds ne
// restent jamais gelés par une fenêtre de litige manquée.
func (e *Engine) AutoResolveHeldPayments(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-models.DisputeWindowHours * time.Hour)
	held, err := e.escrows.HeldSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, escrow := range held {
		open, err := e.disputes.OpenDisputeByTrip(ctx, escrow.TripID)
		if err != nil {
			log.Printf("⚠️ Litiges illisibles pour la course %s: %v", escrow.TripID, err)
			continue
		}
		if open != nil {
			// Litige en cours : on ne touche à rien
			continue
		}

		escrowID := escrow.ID
		tripID := escrow.TripID
		err = e.locks.WithTripLock(ctx, tripID.String(), func() error {
			if err := e.escrows.SetStatus(ctx, escrowID, models.EscrowStatusReleasedToDriver, models.AutoReleaseNote, e.now()); err != nil {
				return err
			}
			if err := e.trips.SetPaymentStatus(ctx, tripID, models.PaymentStatusCompleted); err != nil {
				return err
			}
			return e.trips.MarkCompleted(ctx, tripID, e.now())
		})
		if err != nil {
			log.Printf("⚠️ Libération automatique échouée pour la course %s: %v", tripID, err)
			continue
		}
		released++
	}

	if released > 0 {
		log.Printf("🔄 Réconciliation : %d paiement(s) libéré(s) au chauffeur", released)
	}
	return released, nil
}

// Run lance le balayage périodique jusqu'à annulation du contexte
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("🔄 Balayage de réconciliation démarré (toutes les %s)", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.AutoResolveHeldPayments(ctx); err != nil {
				log.Printf("⚠️ Balayage de réconciliation en erreur: %v", err)
			}
		}
	}
}

// VoidPayment rembourse intégralement le montant courant de la course et
// marque le paiement VOIDED — réservé aux issues de sécurité qui ne
// doivent rien créditer au chauffeur
func (e *Engine) VoidPayment(ctx context.Context, tripID gocql.UUID, reason string) error {
	trip, err := e.trips.Trip(ctx, tripID)
	if err != nil {
		return err
	}

	ref, err := ledger.ResolveTripRef(trip)
	if err != nil {
		return err
	}

	return e.locks.WithTripLock(ctx, tripID.String(), func() error {
		if _, err := e.payments.Void(ctx, ref, reason); err != nil {
			return err
		}
		if escrow, err := e.escrows.HeldByTrip(ctx, tripID); err == nil && escrow != nil {
			if err := e.escrows.SetStatus(ctx, escrow.ID, models.EscrowStatusVoided, reason, e.now()); err != nil {
				return err
			}
		}
		if err := e.trips.SetPaymentStatus(ctx, tripID, models.PaymentStatusVoided); err != nil {
			return err
		}
		log.Printf("🛑 Paiement de la course %s annulé intégralement (%s)", tripID, reason)
		return nil
	})
}
