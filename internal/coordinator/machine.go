// Package coordinator pilote la machine à états de recherche de chauffeur
// côté demandeur : relances automatiques, décision utilisateur, épuisement
// du budget de tentatives, et cohérence avec l'autorisation de paiement.
//
// La machine est pure : (état, événement) → (état, effets). Le budget de
// 6 tentatives et la politique d'élargissement se testent sans timer réel.
package coordinator

import (
	"koursa_back_end/internal/models"
)

// Constantes contractuelles du protocole de relance
const (
	RequestTimeoutSeconds = 60
	AutoRetryAttempts     = 3
	MaxManualRetries      = 3
	TotalMaxRetries       = AutoRetryAttempts + MaxManualRetries
)

type Phase string

const (
	PhaseIdle             Phase = "IDLE"
	PhaseSearching        Phase = "SEARCHING"
	PhaseAutoRetrying     Phase = "AUTO_RETRYING"
	PhaseAwaitingDecision Phase = "AWAITING_USER_DECISION"
	PhaseExhausted        Phase = "EXHAUSTED"
	PhaseMatched          Phase = "MATCHED"
	PhaseCancelled        Phase = "CANCELLED"
)

// IsTerminal : plus aucun événement n'est traité après ces phases
func (p Phase) IsTerminal() bool {
	return p == PhaseMatched || p == PhaseCancelled || p == PhaseExhausted
}

// State est l'état courant de la recherche pour une course. RequestID est
// monotone croissant : toute réponse ou relance portant un id périmé est
// ignorée par le runtime.
type State struct {
	Phase     Phase
	Attempt   int
	RequestID uint64
}

type EventKind string

const (
	EventStart          EventKind = "START"
	EventTimeout        EventKind = "TIMEOUT"
	EventManualRetry    EventKind = "MANUAL_RETRY"
	EventMatchFound     EventKind = "MATCH_FOUND"
	EventExternalCancel EventKind = "EXTERNAL_CANCEL"
	EventRiderCancel    EventKind = "RIDER_CANCEL"
)

type Event struct {
	Kind   EventKind
	Reason string
}

// Resend : relancer la demande de recherche auprès du dispatch
type Resend struct {
	RequestID    uint64
	ExpandSearch bool
}

// Release : libérer l'autorisation de paiement (toujours enveloppé par
// l'appelant — un échec ne bloque jamais la machine)
type Release struct {
	Reason string
}

// Cancel : annuler la course auprès du dispatch avec acteur + code de raison
type Cancel struct {
	By         models.CancelActor
	ReasonCode string
	ReasonText string
}

// Effects décrit les actions à exécuter suite à une transition
type Effects struct {
	StartTimer bool
	StopTimer  bool
	Resend     *Resend
	Release    *Release
	Cancel     *Cancel
	AskRider   bool
}

// Next applique un événement à l'état courant. Les événements reçus en
// phase terminale sont ignorés sans effet.
func Next(s State, ev Event) (State, Effects) {
	if s.Phase.IsTerminal() {
		return s, Effects{}
	}

	switch ev.Kind {
	case EventStart:
		if s.Phase != PhaseIdle {
			return s, Effects{}
		}
		// La demande initiale (recherche resserrée) part à la création de
		// la course ; ici on arme seulement la fenêtre de 60s
		return State{Phase: PhaseSearching, Attempt: 0, RequestID: 1}, Effects{StartTimer: true}

	case EventTimeout:
		if s.Phase != PhaseSearching && s.Phase != PhaseAutoRetrying {
			// Deadline en pause (décision utilisateur) ou tir de timer périmé
			return s, Effects{}
		}
		attempt := s.Attempt + 1

		if attempt <= AutoRetryAttempts {
			// Relance automatique : première relance resserrée, toutes les
			// suivantes élargies à l'île entière
			next := State{Phase: PhaseSearching, Attempt: attempt, RequestID: s.RequestID + 1}
			return next, Effects{
				StartTimer: true,
				Resend: &Resend{
					RequestID:    next.RequestID,
					ExpandSearch: attempt >= 2,
				},
			}
		}

		if attempt < TotalMaxRetries {
			// Budget automatique épuisé : on met la deadline en pause et on
			// demande au passager de choisir (continuer ou annuler)
			return State{Phase: PhaseAwaitingDecision, Attempt: attempt, RequestID: s.RequestID}, Effects{AskRider: true}
		}

		// Budget total épuisé : libérer les fonds puis annuler côté système.
		// Code de raison distinct de l'annulation passager pour la compta.
		return State{Phase: PhaseExhausted, Attempt: attempt, RequestID: s.RequestID}, Effects{
			StopTimer: true,
			Release:   &Release{Reason: "no drivers available"},
			Cancel: &Cancel{
				By:         models.CancelledBySystem,
				ReasonCode: models.ReasonNoDriversAvailable,
				ReasonText: "Aucun chauffeur disponible après 6 tentatives",
			},
		}

	case EventManualRetry:
		if s.Phase != PhaseAwaitingDecision {
			return s, Effects{}
		}
		// Une relance manuelle cherche toujours sur toute l'île
		next := State{Phase: PhaseSearching, Attempt: s.Attempt, RequestID: s.RequestID + 1}
		return next, Effects{
			StartTimer: true,
			Resend: &Resend{
				RequestID:    next.RequestID,
				ExpandSearch: true,
			},
		}

	case EventMatchFound:
		// Gagne quel que soit l'état du timer ; la relance en vol est
		// écartée par le contrôle de RequestID côté runtime
		return State{Phase: PhaseMatched, Attempt: s.Attempt, RequestID: s.RequestID}, Effects{StopTimer: true}

	case EventExternalCancel:
		// Annulation observée côté serveur : le chemin d'annulation
		// autoritaire libère déjà les fonds, cette libération-ci n'est
		// qu'un no-op redondant de sécurité
		return State{Phase: PhaseCancelled, Attempt: s.Attempt, RequestID: s.RequestID}, Effects{
			StopTimer: true,
			Release:   &Release{Reason: "trip cancelled"},
		}

	case EventRiderCancel:
		return State{Phase: PhaseCancelled, Attempt: s.Attempt, RequestID: s.RequestID}, Effects{
			StopTimer: true,
			Release:   &Release{Reason: "rider cancelled while searching"},
			Cancel: &Cancel{
				By:         models.CancelledByRider,
				ReasonCode: models.ReasonRiderCancelledWhileSearching,
				ReasonText: ev.Reason,
			},
		}
	}

	return s, Effects{}
}
