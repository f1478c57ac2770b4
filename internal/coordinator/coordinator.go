package coordinator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/dispatch"
	"koursa_back_end/internal/models"
	"koursa_back_end/internal/observer"
)

var (
	ErrSearchNotFound    = errors.New("aucune recherche active pour cette course")
	ErrNoDecisionPending = errors.New("aucune décision en attente pour cette course")
)

// TripDirectory est l'annuaire des courses (source de vérité backend)
type TripDirectory interface {
	Trip(ctx context.Context, tripID gocql.UUID) (*models.Trip, error)
	MarkSearching(ctx context.Context, tripID gocql.UUID, since time.Time) error
}

// Releaser libère l'autorisation de paiement d'une course
type Releaser interface {
	ReleaseTripAuthorization(ctx context.Context, trip *models.Trip, reason string) (models.AuthorizationState, error)
}

// Prompter fait remonter au passager le choix continuer/annuler quand le
// budget de relances automatiques est épuisé
type Prompter interface {
	AskRider(ctx context.Context, tripID string, attempt int)
}

// Timer permet d'injecter de faux timers dans les tests
type Timer interface {
	Stop() bool
}

type TimerFactory func(d time.Duration, fn func()) Timer

func realTimerFactory(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Coordinator possède une recherche active par course : un seul timer, un
// seul abonnement au flux de statuts. Les callbacks (tir de timer,
// notification de statut) arrivent de l'extérieur et peuvent s'entrelacer ;
// l'ordre est garanti uniquement par le RequestID monotone et les contrôles
// d'état terminal, pas par exclusion mutuelle globale.
type Coordinator struct {
	dispatch dispatch.Client
	ledger   Releaser
	trips    TripDirectory
	source   observer.Source
	prompter Prompter

	timeout  time.Duration
	newTimer TimerFactory

	mu       sync.Mutex
	searches map[string]*search
}

type search struct {
	mu       sync.Mutex
	tripID   gocql.UUID
	state    State
	timer    Timer
	deadline time.Time
	obs      *observer.Observer
}

func New(d dispatch.Client, l Releaser, trips TripDirectory, source observer.Source, prompter Prompter) *Coordinator {
	return &Coordinator{
		dispatch: d,
		ledger:   l,
		trips:    trips,
		source:   source,
		prompter: prompter,
		timeout:  RequestTimeoutSeconds * time.Second,
		newTimer: realTimerFactory,
		searches: make(map[string]*search),
	}
}

// NewWithTimers construit un coordinateur avec timers et fenêtre injectés
// (tests)
func NewWithTimers(d dispatch.Client, l Releaser, trips TripDirectory, source observer.Source, prompter Prompter, timeout time.Duration, factory TimerFactory) *Coordinator {
	c := New(d, l, trips, source, prompter)
	c.timeout = timeout
	c.newTimer = factory
	return c
}

// Start entre en phase SEARCHING pour la course et arme la fenêtre de 60s.
// La demande de recherche initiale (resserrée) est déjà partie à la
// création de la course.
func (c *Coordinator) Start(ctx context.Context, trip *models.Trip) error {
	id := trip.ID.String()

	c.mu.Lock()
	if _, exists := c.searches[id]; exists {
		c.mu.Unlock()
		return nil
	}
	s := &search{
		tripID: trip.ID,
		state:  State{Phase: PhaseIdle},
		obs:    observer.New(c.source),
	}
	c.searches[id] = s
	c.mu.Unlock()

	// Horodatage serveur : les deadlines se recalent dessus, jamais sur
	// l'horloge du téléphone
	if err := c.trips.MarkSearching(ctx, trip.ID, time.Now()); err != nil {
		log.Printf("⚠️ Impossible d'horodater la recherche pour %s: %v", id, err)
	}

	s.mu.Lock()
	c.applyLocked(s, Event{Kind: EventStart})
	s.mu.Unlock()

	return s.obs.Watch(ctx, id, func(ev observer.Event) {
		c.onObserverEvent(s, ev)
	})
}

// ManualRetry relance la recherche après une décision passager ; toujours
// sur toute l'île
func (c *Coordinator) ManualRetry(ctx context.Context, tripID string) (State, error) {
	s := c.lookup(tripID)
	if s == nil {
		return State{}, ErrSearchNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != PhaseAwaitingDecision {
		return s.state, ErrNoDecisionPending
	}
	c.applyLocked(s, Event{Kind: EventManualRetry})
	return s.state, nil
}

// Cancel est l'annulation explicite du passager pendant la recherche.
// Si la recherche n'est plus en mémoire (redémarrage serveur), on se fie
// au statut de l'annuaire : une course encore en recherche est annulée
// (libération idempotente + annulation dispatch), une course attribuée ou
// terminée est refusée — jamais de libération sur un hold qui sera capturé.
func (c *Coordinator) Cancel(ctx context.Context, tripID string, reason string) error {
	if s := c.lookup(tripID); s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		c.applyLocked(s, Event{Kind: EventRiderCancel, Reason: reason})
		return nil
	}

	tripUUID, err := gocql.ParseUUID(tripID)
	if err != nil {
		return err
	}
	trip, err := c.trips.Trip(ctx, tripUUID)
	if err != nil {
		return err
	}

	switch trip.Status {
	case models.TripStatusRequested, models.TripStatusSearching:
		// recherche perdue au redémarrage : on annule via l'annuaire
	case models.TripStatusCancelled:
		// déjà annulée : filet idempotent sur la libération, rien à re-annuler
		c.releaseQuietly(ctx, trip, "rider cancelled while searching")
		return nil
	default:
		return dispatch.ErrTripNotCancellable
	}

	c.releaseQuietly(ctx, trip, "rider cancelled while searching")
	return c.dispatch.CancelTrip(ctx, tripID, models.CancelledByRider, reason, models.ReasonRiderCancelledWhileSearching)
}

// SearchState expose l'état courant de la recherche (endpoint de suivi)
func (c *Coordinator) SearchState(tripID string) (State, bool) {
	s := c.lookup(tripID)
	if s == nil {
		return State{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}

func (c *Coordinator) lookup(tripID string) *search {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searches[tripID]
}

func (c *Coordinator) onObserverEvent(s *search, ev observer.Event) {
	switch ev.Type {
	case observer.EventMatchFound:
		s.mu.Lock()
		c.applyLocked(s, Event{Kind: EventMatchFound})
		s.mu.Unlock()
	case observer.EventTripCancelled:
		s.mu.Lock()
		c.applyLocked(s, Event{Kind: EventExternalCancel, Reason: ev.ReasonCode})
		s.mu.Unlock()
	default:
		// TRIP_SETTLING et les statuts pass-through ne concernent pas la
		// phase de recherche
	}
}

// onTimeout est le tir de la fenêtre de 60s, taggé avec le RequestID armé.
// Un tir périmé (relance plus récente, état terminal) est écarté.
func (c *Coordinator) onTimeout(s *search, armedRequestID uint64) {
	s.mu.Lock()

	if s.state.Phase.IsTerminal() || s.state.RequestID != armedRequestID {
		s.mu.Unlock()
		return
	}

	// Re-validation horloge murale : un client qui dort ou dérive peut
	// faire tirer le timer en avance par rapport à la deadline stockée
	if remaining := time.Until(s.deadline); remaining > 0 {
		s.timer = c.newTimer(remaining, func() { c.onTimeout(s, armedRequestID) })
		s.mu.Unlock()
		return
	}

	// Checkpoint coopératif : si la course a déjà été tranchée ailleurs,
	// on suit l'annuaire plutôt que de relancer dans le vide
	tripID := s.tripID
	s.mu.Unlock()

	if trip, err := c.trips.Trip(context.Background(), tripID); err == nil {
		switch trip.Status {
		case models.TripStatusCancelled:
			s.mu.Lock()
			c.applyLocked(s, Event{Kind: EventExternalCancel, Reason: trip.CancelReasonCode})
			s.mu.Unlock()
			return
		case models.TripStatusAccepted, models.TripStatusDriverArriving, models.TripStatusInProgress:
			s.mu.Lock()
			c.applyLocked(s, Event{Kind: EventMatchFound})
			s.mu.Unlock()
			return
		}
	}

	s.mu.Lock()
	if s.state.Phase.IsTerminal() || s.state.RequestID != armedRequestID {
		s.mu.Unlock()
		return
	}
	c.applyLocked(s, Event{Kind: EventTimeout})
	s.mu.Unlock()
}

// applyLocked fait transiter la machine et exécute les effets. Appelé avec
// s.mu tenu.
func (c *Coordinator) applyLocked(s *search, ev Event) {
	next, eff := Next(s.state, ev)
	s.state = next

	if eff.StopTimer && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if eff.StartTimer {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.deadline = time.Now().Add(c.timeout)
		armed := s.state.RequestID
		s.timer = c.newTimer(c.timeout, func() { c.onTimeout(s, armed) })
	}

	if eff.Resend != nil {
		go c.resend(s, *eff.Resend)
	}

	if eff.AskRider && c.prompter != nil {
		attempt := s.state.Attempt
		tripID := s.tripID.String()
		go c.prompter.AskRider(context.Background(), tripID, attempt)
	}

	if eff.Release != nil {
		reason := eff.Release.Reason
		tripID := s.tripID
		go func() {
			ctx := context.Background()
			trip, err := c.trips.Trip(ctx, tripID)
			if err != nil {
				log.Printf("⚠️ Libération différée pour %s (course illisible): %v", tripID, err)
				return
			}
			c.releaseQuietly(ctx, trip, reason)
		}()
	}

	if eff.Cancel != nil {
		cancel := *eff.Cancel
		tripID := s.tripID.String()
		go func() {
			if err := c.dispatch.CancelTrip(context.Background(), tripID, cancel.By, cancel.ReasonText, cancel.ReasonCode); err != nil {
				// La machine est déjà terminale ; la réconciliation
				// rattrapera une annulation réseau perdue
				log.Printf("⚠️ Annulation dispatch échouée pour %s: %v", tripID, err)
			}
		}()
	}

	if s.state.Phase.IsTerminal() {
		s.obs.Stop()
		c.mu.Lock()
		delete(c.searches, s.tripID.String())
		c.mu.Unlock()
	}
}

// resend envoie la relance au dispatch, sauf si elle a été supplantée entre
// temps par une tentative plus récente ou une transition terminale
func (c *Coordinator) resend(s *search, r Resend) {
	s.mu.Lock()
	stale := s.state.Phase.IsTerminal() || s.state.RequestID != r.RequestID
	tripID := s.tripID.String()
	s.mu.Unlock()

	if stale {
		log.Printf("ℹ️ Relance %d écartée pour la course %s (supplantée)", r.RequestID, tripID)
		return
	}

	if err := c.dispatch.ResendMatchRequest(context.Background(), tripID, r.ExpandSearch); err != nil {
		// Jamais de retry aveugle : le prochain checkpoint naturel
		// (timeout suivant) fera foi
		log.Printf("⚠️ Relance dispatch échouée pour %s: %v", tripID, err)
	}
}

// releaseQuietly enveloppe la libération : en cas d'échec les fonds restent
// autorisés et la réconciliation corrigera, la course n'est jamais bloquée
func (c *Coordinator) releaseQuietly(ctx context.Context, trip *models.Trip, reason string) {
	if _, err := c.ledger.ReleaseTripAuthorization(ctx, trip, reason); err != nil {
		log.Printf("⚠️ Libération de l'autorisation échouée pour %s: %v — corrigée par la réconciliation", trip.ID, err)
	}
}
