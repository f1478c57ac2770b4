package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koursa_back_end/internal/models"
)

func TestStartEntersSearching(t *testing.T) {
	s, eff := Next(State{Phase: PhaseIdle}, Event{Kind: EventStart})

	assert.Equal(t, PhaseSearching, s.Phase)
	assert.Equal(t, 0, s.Attempt)
	assert.Equal(t, uint64(1), s.RequestID)
	assert.True(t, eff.StartTimer)
	assert.Nil(t, eff.Resend)
}

func TestAutoRetriesExpandFromSecondResend(t *testing.T) {
	s, _ := Next(State{Phase: PhaseIdle}, Event{Kind: EventStart})

	// Les relances automatiques : resserrée, puis élargie, puis élargie
	wantExpand := []bool{false, true, true}
	for i, expand := range wantExpand {
		var eff Effects
		s, eff = Next(s, Event{Kind: EventTimeout})

		assert.Equal(t, PhaseSearching, s.Phase, "relance %d", i+1)
		assert.Equal(t, i+1, s.Attempt)
		require.NotNil(t, eff.Resend, "relance %d", i+1)
		assert.Equal(t, expand, eff.Resend.ExpandSearch, "relance %d", i+1)
		assert.Equal(t, s.RequestID, eff.Resend.RequestID)
		assert.True(t, eff.StartTimer)
	}
}

func TestRequestIDIsMonotonic(t *testing.T) {
	s, _ := Next(State{Phase: PhaseIdle}, Event{Kind: EventStart})
	last := s.RequestID

	for i := 0; i < 3; i++ {
		s, _ = Next(s, Event{Kind: EventTimeout})
		assert.Greater(t, s.RequestID, last)
		last = s.RequestID
	}
}

func TestFourthTimeoutAsksRider(t *testing.T) {
	s := State{Phase: PhaseSearching, Attempt: 3, RequestID: 4}

	s, eff := Next(s, Event{Kind: EventTimeout})

	assert.Equal(t, PhaseAwaitingDecision, s.Phase)
	assert.Equal(t, 4, s.Attempt)
	assert.True(t, eff.AskRider)
	assert.Nil(t, eff.Resend)
	assert.False(t, eff.StartTimer, "la deadline est en pause pendant la décision")
}

func TestTimeoutIgnoredWhileAwaitingDecision(t *testing.T) {
	s := State{Phase: PhaseAwaitingDecision, Attempt: 4, RequestID: 4}

	next, eff := Next(s, Event{Kind: EventTimeout})

	assert.Equal(t, s, next)
	assert.Equal(t, Effects{}, eff)
}

func TestManualRetryAlwaysExpands(t *testing.T) {
	s := State{Phase: PhaseAwaitingDecision, Attempt: 4, RequestID: 4}

	s, eff := Next(s, Event{Kind: EventManualRetry})

	assert.Equal(t, PhaseSearching, s.Phase)
	assert.Equal(t, 4, s.Attempt, "la relance manuelle ne consomme pas de tentative")
	require.NotNil(t, eff.Resend)
	assert.True(t, eff.Resend.ExpandSearch)
	assert.True(t, eff.StartTimer)
}

func TestManualRetryOutsideDecisionIsNoop(t *testing.T) {
	for _, phase := range []Phase{PhaseSearching, PhaseMatched, PhaseCancelled, PhaseExhausted} {
		s := State{Phase: phase, Attempt: 2, RequestID: 3}
		next, eff := Next(s, Event{Kind: EventManualRetry})
		assert.Equal(t, s, next, "phase %s", phase)
		assert.Nil(t, eff.Resend)
	}
}

func TestExhaustionReleasesAndCancels(t *testing.T) {
	s := State{Phase: PhaseSearching, Attempt: 5, RequestID: 6}

	s, eff := Next(s, Event{Kind: EventTimeout})

	assert.Equal(t, PhaseExhausted, s.Phase)
	assert.Equal(t, TotalMaxRetries, s.Attempt)
	assert.True(t, eff.StopTimer)
	require.NotNil(t, eff.Release)
	require.NotNil(t, eff.Cancel)
	assert.Equal(t, models.CancelledBySystem, eff.Cancel.By)
	assert.Equal(t, models.ReasonNoDriversAvailable, eff.Cancel.ReasonCode)
}

func TestAttemptNeverExceedsBudget(t *testing.T) {
	s, _ := Next(State{Phase: PhaseIdle}, Event{Kind: EventStart})

	// Pire cas : le passager relance à chaque décision
	for i := 0; i < 20; i++ {
		var ev Event
		if s.Phase == PhaseAwaitingDecision {
			ev = Event{Kind: EventManualRetry}
		} else {
			ev = Event{Kind: EventTimeout}
		}
		s, _ = Next(s, ev)
		assert.LessOrEqual(t, s.Attempt, TotalMaxRetries)
		if s.Phase.IsTerminal() {
			break
		}
	}
	assert.Equal(t, PhaseExhausted, s.Phase)
}

func TestMatchFoundWins(t *testing.T) {
	for _, phase := range []Phase{PhaseSearching, PhaseAutoRetrying, PhaseAwaitingDecision} {
		s, eff := Next(State{Phase: phase, Attempt: 2, RequestID: 3}, Event{Kind: EventMatchFound})
		assert.Equal(t, PhaseMatched, s.Phase, "phase %s", phase)
		assert.True(t, eff.StopTimer)
		assert.Nil(t, eff.Release, "un match ne libère jamais les fonds")
		assert.Nil(t, eff.Cancel)
	}
}

func TestRiderCancelReleasesWithRiderCode(t *testing.T) {
	s, eff := Next(State{Phase: PhaseSearching, Attempt: 1, RequestID: 2}, Event{Kind: EventRiderCancel, Reason: "changement de plan"})

	assert.Equal(t, PhaseCancelled, s.Phase)
	require.NotNil(t, eff.Release)
	require.NotNil(t, eff.Cancel)
	assert.Equal(t, models.CancelledByRider, eff.Cancel.By)
	assert.Equal(t, models.ReasonRiderCancelledWhileSearching, eff.Cancel.ReasonCode)
	assert.Equal(t, "changement de plan", eff.Cancel.ReasonText)
}

func TestExternalCancelDoesNotRecancel(t *testing.T) {
	s, eff := Next(State{Phase: PhaseSearching, Attempt: 1, RequestID: 2}, Event{Kind: EventExternalCancel})

	assert.Equal(t, PhaseCancelled, s.Phase)
	assert.NotNil(t, eff.Release, "libération redondante de sécurité, idempotente")
	assert.Nil(t, eff.Cancel, "la course est déjà annulée côté dispatch")
}

func TestTerminalPhasesIgnoreEverything(t *testing.T) {
	events := []EventKind{EventStart, EventTimeout, EventManualRetry, EventMatchFound, EventExternalCancel, EventRiderCancel}
	for _, phase := range []Phase{PhaseMatched, PhaseCancelled, PhaseExhausted} {
		for _, kind := range events {
			s := State{Phase: phase, Attempt: 6, RequestID: 6}
			next, eff := Next(s, Event{Kind: kind})
			assert.Equal(t, s, next, "phase %s, événement %s", phase, kind)
			assert.Equal(t, Effects{}, eff)
		}
	}
}
