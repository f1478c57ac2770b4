// Package observer suit le flux de statuts d'une course et le traduit en
// événements sémantiques consommés par le coordinateur de recherche.
package observer

import (
	"context"
	"sync"

	"koursa_back_end/internal/models"
)

type EventType string

const (
	EventMatchFound    EventType = "MATCH_FOUND"
	EventTripCancelled EventType = "TRIP_CANCELLED"
	EventTripSettling  EventType = "TRIP_SETTLING"
	EventStatusChanged EventType = "STATUS_CHANGED"
)

// StatusUpdate est le payload brut publié sur le canal Redis d'une course
type StatusUpdate struct {
	TripID      string             `json:"trip_id"`
	Status      models.TripStatus  `json:"status"`
	CancelledBy models.CancelActor `json:"cancelled_by,omitempty"`
	ReasonCode  string             `json:"reason_code,omitempty"`
}

// Event est l'événement sémantique livré aux abonnés
type Event struct {
	Type        EventType
	TripID      string
	RawStatus   models.TripStatus
	CancelledBy models.CancelActor
	ReasonCode  string
}

// StatusChannel retourne le canal Redis du flux de statuts d'une course
func StatusChannel(tripID string) string {
	return "trip:status:" + tripID
}

// Translate mappe un statut brut vers l'événement sémantique correspondant.
// Les statuts sans signification pour le coordinateur passent en
// STATUS_CHANGED (consommés par l'app, ignorés par le coordinateur).
func Translate(u StatusUpdate) Event {
	ev := Event{
		TripID:      u.TripID,
		RawStatus:   u.Status,
		CancelledBy: u.CancelledBy,
		ReasonCode:  u.ReasonCode,
	}

	switch u.Status {
	case models.TripStatusAccepted, models.TripStatusDriverArriving:
		ev.Type = EventMatchFound
	case models.TripStatusCancelled:
		ev.Type = EventTripCancelled
	case models.TripStatusAwaitingSettlement, models.TripStatusCompleted:
		ev.Type = EventTripSettling
	default:
		ev.Type = EventStatusChanged
	}
	return ev
}

// Source fournit le flux brut de statuts d'une course (Redis en production)
type Source interface {
	Subscribe(ctx context.Context, tripID string) (<-chan StatusUpdate, func(), error)
}

// Observer maintient exactement un abonnement actif par course. Se
// réabonner à la même course est un no-op ; passer à une autre course
// démonte d'abord l'ancien abonnement. Les statuts identiques consécutifs
// sont dédupliqués et ne re-déclenchent pas le handler.
type Observer struct {
	source Source

	mu         sync.Mutex
	tripID     string
	lastStatus models.TripStatus
	teardown   func()
}

func New(source Source) *Observer {
	return &Observer{source: source}
}

// Watch abonne l'observer au flux de la course et livre chaque changement
// de statut au handler
func (o *Observer) Watch(ctx context.Context, tripID string, handler func(Event)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tripID == tripID && o.teardown != nil {
		// Déjà abonné à cette course
		return nil
	}

	o.stopLocked()

	updates, teardown, err := o.source.Subscribe(ctx, tripID)
	if err != nil {
		return err
	}

	o.tripID = tripID
	o.lastStatus = ""
	o.teardown = teardown

	go func() {
		for u := range updates {
			o.mu.Lock()
			if o.tripID != tripID {
				o.mu.Unlock()
				return
			}
			if u.Status == o.lastStatus {
				// Valeur inchangée, on ne re-déclenche pas
				o.mu.Unlock()
				continue
			}
			o.lastStatus = u.Status
			o.mu.Unlock()

			handler(Translate(u))
		}
	}()

	return nil
}

// Stop démonte l'abonnement courant s'il existe
func (o *Observer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

// stopLocked ne bloque jamais : Stop peut être appelé depuis le handler
// lui-même (transition terminale déclenchée par un statut reçu). Les
// livraisons tardives du goroutine lecteur sont écartées par le contrôle
// de tripID, pas par attente de sa terminaison.
func (o *Observer) stopLocked() {
	if o.teardown != nil {
		o.teardown()
		o.teardown = nil
	}
	o.tripID = ""
	o.lastStatus = ""
}
