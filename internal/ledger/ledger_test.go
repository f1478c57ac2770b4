package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koursa_back_end/internal/models"
)

// --- Fakes ---

type memStore struct {
	mu    sync.Mutex
	auths map[string]*models.PaymentAuthorization
}

func newMemStore() *memStore {
	return &memStore{auths: make(map[string]*models.PaymentAuthorization)}
}

func (s *memStore) Authorization(ctx context.Context, ref string) (*models.PaymentAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	auth, ok := s.auths[ref]
	if !ok {
		return nil, errors.New("introuvable")
	}
	copied := *auth
	return &copied, nil
}

func (s *memStore) OpenAuthorizationByTrip(ctx context.Context, tripID gocql.UUID) (*models.PaymentAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, auth := range s.auths {
		if auth.TripID == tripID && !auth.State.IsTerminal() {
			copied := *auth
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertAuthorization(ctx context.Context, auth *models.PaymentAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *auth
	s.auths[auth.Ref] = &copied
	return nil
}

func (s *memStore) SetState(ctx context.Context, ref string, state models.AuthorizationState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths[ref].State = state
	s.auths[ref].Reason = reason
	return nil
}

func (s *memStore) SetCaptured(ctx context.Context, ref string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths[ref].State = models.AuthStateCaptured
	s.auths[ref].CapturedAmount = amount
	return nil
}

type fakeProcessor struct {
	mu         sync.Mutex
	seq        int
	authorizes int
	captures   []float64
	cancels    []string
	refunds    []float64
	failNext   error
}

func (p *fakeProcessor) Authorize(ctx context.Context, amount float64, currency string, metadata map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return "", err
	}
	p.seq++
	p.authorizes++
	return fmt.Sprintf("pi_test_%d", p.seq), nil
}

func (p *fakeProcessor) Capture(ctx context.Context, ref string, amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures = append(p.captures, amount)
	return nil
}

func (p *fakeProcessor) Cancel(ctx context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels = append(p.cancels, ref)
	return nil
}

func (p *fakeProcessor) Refund(ctx context.Context, ref string, amount float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, amount)
	return fmt.Sprintf("re_test_%d", len(p.refunds)), nil
}

type passLocker struct{}

func (passLocker) WithTripLock(ctx context.Context, tripID string, fn func() error) error {
	return fn()
}

func newTestLedger() (*Ledger, *memStore, *fakeProcessor) {
	store := newMemStore()
	proc := &fakeProcessor{}
	return New(store, proc, passLocker{}), store, proc
}

func hold(t *testing.T, l *Ledger, tripID gocql.UUID, amount float64) *models.PaymentAuthorization {
	t.Helper()
	auth, err := l.Hold(context.Background(), tripID, amount, "eur", "trip estimate")
	require.NoError(t, err)
	return auth
}

// --- Tests ---

func TestHoldAuthorizesOnce(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()

	first := hold(t, l, tripID, 18.50)
	assert.Equal(t, models.AuthStateAuthorized, first.State)
	assert.Equal(t, 18.50, first.Amount)

	// Rejouer le hold retourne l'autorisation ouverte existante
	second := hold(t, l, tripID, 18.50)
	assert.Equal(t, first.Ref, second.Ref)
	assert.Equal(t, 1, proc.authorizes)
}

func TestHoldDeclined(t *testing.T) {
	l, _, proc := newTestLedger()
	proc.failNext = errors.New("card_declined")

	_, err := l.Hold(context.Background(), gocql.TimeUUID(), 18.50, "eur", "trip estimate")
	assert.Error(t, err)
}

func TestReleaseIsIdempotent(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	state, err := l.Release(context.Background(), ref, tripID, "no drivers available")
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateReleased, state)
	assert.Len(t, proc.cancels, 1)

	// Double release : no-op, pas de second appel processeur
	state, err = l.Release(context.Background(), ref, tripID, "no drivers available")
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateReleased, state)
	assert.Len(t, proc.cancels, 1)
}

func TestReleaseAfterCaptureIsNoop(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	_, err := l.Capture(context.Background(), ref, 18.50)
	require.NoError(t, err)

	// La libération sur une autorisation capturée retourne l'état courant
	// sans toucher au processeur
	state, err := l.Release(context.Background(), ref, tripID, "trip cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateCaptured, state)
	assert.Empty(t, proc.cancels)
	assert.Empty(t, proc.refunds)
}

func TestReleaseUnknownRef(t *testing.T) {
	l, _, _ := newTestLedger()

	_, err := l.Release(context.Background(), Ref{Provider: "stripe", ID: "pi_inconnu"}, gocql.TimeUUID(), "x")
	assert.ErrorIs(t, err, ErrAuthorizationNotFound)
}

func TestCaptureCappedAtHold(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	_, err := l.Capture(context.Background(), ref, 25.00)
	assert.ErrorIs(t, err, ErrCaptureExceedsHold)
	assert.Empty(t, proc.captures)

	captured, err := l.Capture(context.Background(), ref, 16.20)
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateCaptured, captured.State)
	assert.Equal(t, 16.20, captured.CapturedAmount)
	assert.Equal(t, []float64{16.20}, proc.captures)
}

func TestCaptureIsIdempotent(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	_, err := l.Capture(context.Background(), ref, 18.50)
	require.NoError(t, err)
	_, err = l.Capture(context.Background(), ref, 18.50)
	require.NoError(t, err)
	assert.Len(t, proc.captures, 1)
}

func TestCaptureAfterReleaseFails(t *testing.T) {
	l, _, _ := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	_, err := l.Release(context.Background(), ref, tripID, "rider cancelled")
	require.NoError(t, err)

	_, err = l.Capture(context.Background(), ref, 18.50)
	assert.Error(t, err)
}

func TestVoidBeforeCaptureCancels(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	state, err := l.Void(context.Background(), ref, models.ReasonSOSTriggered)
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateVoided, state)
	assert.Len(t, proc.cancels, 1)
	assert.Empty(t, proc.refunds)
}

func TestVoidAfterCaptureRefundsCapturedAmount(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 20.00)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	_, err := l.Capture(context.Background(), ref, 17.30)
	require.NoError(t, err)

	state, err := l.Void(context.Background(), ref, models.ReasonSOSTriggered)
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateVoided, state)

	// Remboursement compensatoire du montant capturé, pas du montant autorisé
	assert.Equal(t, []float64{17.30}, proc.refunds)
	assert.Empty(t, proc.cancels)
}

func TestVoidIsIdempotent(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)
	ref := Ref{Provider: DefaultProvider, ID: auth.Ref}

	_, err := l.Void(context.Background(), ref, "x")
	require.NoError(t, err)
	state, err := l.Void(context.Background(), ref, "x")
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateVoided, state)
	assert.Len(t, proc.cancels, 1)
	assert.Empty(t, proc.refunds)
}

func TestReleaseTripAuthorizationResolvesRef(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)

	trip := &models.Trip{ID: tripID, PaymentRef: auth.Ref}
	state, err := l.ReleaseTripAuthorization(context.Background(), trip, "no drivers available")
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateReleased, state)
	assert.Len(t, proc.cancels, 1)
}

func TestReleaseTripAuthorizationLegacyField(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	auth := hold(t, l, tripID, 18.50)

	trip := &models.Trip{ID: tripID, LegacyPaymentField: "stripe:" + auth.Ref}
	state, err := l.ReleaseTripAuthorization(context.Background(), trip, "rider cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateReleased, state)
	assert.Len(t, proc.cancels, 1)
}

func TestReleaseTripAuthorizationNoRefFallsBackToTripLookup(t *testing.T) {
	l, _, proc := newTestLedger()
	tripID := gocql.TimeUUID()
	hold(t, l, tripID, 18.50)

	// Ni champ canonique ni champ legacy : recherche par course
	trip := &models.Trip{ID: tripID}
	state, err := l.ReleaseTripAuthorization(context.Background(), trip, "rider cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.AuthStateReleased, state)
	assert.Len(t, proc.cancels, 1)
}

func TestReleaseTripAuthorizationNothingToRelease(t *testing.T) {
	l, _, proc := newTestLedger()

	trip := &models.Trip{ID: gocql.TimeUUID()}
	state, err := l.ReleaseTripAuthorization(context.Background(), trip, "rider cancelled")
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.Empty(t, proc.cancels)
}
