// Package dispatch est la façade vers le backend d'attribution des
// chauffeurs. L'algorithme d'attribution lui-même est un collaborateur
// externe : on ne spécifie ici que ses entrées (demandes de recherche,
// annulations) et ses sorties (flux de statuts).
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"

	"koursa_back_end/internal/models"
	"koursa_back_end/internal/observer"
)

const (
	matchRequestQueue = "dispatch:match_requests"
	cancellationQueue = "dispatch:cancellations"
)

// ErrTripNotCancellable : la course a dépassé la phase de recherche
// (attribuée, en cours ou terminée), l'annulation ne passe plus par ici
var ErrTripNotCancellable = errors.New("la course n'est plus annulable")

// Client est l'interface consommée par le coordinateur
type Client interface {
	ResendMatchRequest(ctx context.Context, tripID string, expandSearch bool) error
	CancelTrip(ctx context.Context, tripID string, cancelledBy models.CancelActor, reasonText, reasonCode string) error
}

// TripDirectory lit le statut courant et persiste l'annulation côté
// annuaire des courses
type TripDirectory interface {
	Trip(ctx context.Context, tripID gocql.UUID) (*models.Trip, error)
	MarkCancelled(ctx context.Context, tripID gocql.UUID, by models.CancelActor, reasonCode string) error
}

// RedisDispatch pousse les demandes vers les files du backend dispatch et
// diffuse les changements de statut sur le flux consommé par l'observer
type RedisDispatch struct {
	client *redis.Client
	trips  TripDirectory
}

func NewRedisDispatch(client *redis.Client, trips TripDirectory) *RedisDispatch {
	return &RedisDispatch{client: client, trips: trips}
}

type matchRequest struct {
	TripID       string    `json:"trip_id"`
	ExpandSearch bool      `json:"expand_search"`
	RequestedAt  time.Time `json:"requested_at"`
}

func (d *RedisDispatch) ResendMatchRequest(ctx context.Context, tripID string, expandSearch bool) error {
	payload, _ := json.Marshal(matchRequest{
		TripID:       tripID,
		ExpandSearch: expandSearch,
		RequestedAt:  time.Now(),
	})

	if err := d.client.RPush(ctx, matchRequestQueue, payload).Err(); err != nil {
		return err
	}

	log.Printf("📡 Demande de recherche renvoyée pour la course %s (expand=%v)", tripID, expandSearch)
	return nil
}

type cancellation struct {
	TripID      string             `json:"trip_id"`
	CancelledBy models.CancelActor `json:"cancelled_by"`
	ReasonText  string             `json:"reason_text"`
	ReasonCode  string             `json:"reason_code"`
	CancelledAt time.Time          `json:"cancelled_at"`
}

// CancelTrip annule la course côté serveur : vérifie qu'elle est encore en
// phase de recherche, persiste l'annulation avec son code de raison,
// prévient le backend dispatch, et diffuse le statut CANCELLED sur le flux
// de la course
func (d *RedisDispatch) CancelTrip(ctx context.Context, tripID string, cancelledBy models.CancelActor, reasonText, reasonCode string) error {
	tripUUID, err := gocql.ParseUUID(tripID)
	if err != nil {
		return err
	}

	trip, err := d.trips.Trip(ctx, tripUUID)
	if err != nil {
		return err
	}
	switch trip.Status {
	case models.TripStatusRequested, models.TripStatusSearching:
		// seules phases où l'annulation passe par la recherche
	case models.TripStatusCancelled:
		// déjà annulée, rien à refaire
		return nil
	default:
		return ErrTripNotCancellable
	}

	if err := d.trips.MarkCancelled(ctx, tripUUID, cancelledBy, reasonCode); err != nil {
		return err
	}

	payload, _ := json.Marshal(cancellation{
		TripID:      tripID,
		CancelledBy: cancelledBy,
		ReasonText:  reasonText,
		ReasonCode:  reasonCode,
		CancelledAt: time.Now(),
	})
	if err := d.client.RPush(ctx, cancellationQueue, payload).Err(); err != nil {
		log.Printf("⚠️ File dispatch injoignable pour l'annulation de %s: %v", tripID, err)
	}

	PublishStatus(ctx, d.client, observer.StatusUpdate{
		TripID:      tripID,
		Status:      models.TripStatusCancelled,
		CancelledBy: cancelledBy,
		ReasonCode:  reasonCode,
	})

	log.Printf("🚫 Course %s annulée (%s, code %s)", tripID, cancelledBy, reasonCode)
	return nil
}

// PublishStatus diffuse un changement de statut sur le canal de la course
func PublishStatus(ctx context.Context, client *redis.Client, update observer.StatusUpdate) {
	payload, _ := json.Marshal(update)
	if err := client.Publish(ctx, observer.StatusChannel(update.TripID), payload).Err(); err != nil {
		log.Printf("⚠️ Diffusion statut impossible pour la course %s: %v", update.TripID, err)
	}
}
