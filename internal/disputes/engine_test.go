package disputes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koursa_back_end/internal/ledger"
	"koursa_back_end/internal/models"
)

// --- Fakes ---

type memTrips struct {
	mu    sync.Mutex
	trips map[gocql.UUID]*models.Trip
}

func newMemTrips() *memTrips {
	return &memTrips{trips: make(map[gocql.UUID]*models.Trip)}
}

func (m *memTrips) add(t *models.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = t
}

func (m *memTrips) Trip(ctx context.Context, tripID gocql.UUID) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return nil, errors.New("course introuvable")
	}
	copied := *t
	return &copied, nil
}

func (m *memTrips) SetPaymentStatus(ctx context.Context, tripID gocql.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[tripID].PaymentStatus = status
	return nil
}

func (m *memTrips) MarkCompleted(ctx context.Context, tripID gocql.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[tripID].Status = models.TripStatusCompleted
	m.trips[tripID].CompletedAt = &at
	return nil
}

func (m *memTrips) paymentStatus(tripID gocql.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trips[tripID].PaymentStatus
}

type memDisputes struct {
	mu       sync.Mutex
	disputes map[gocql.UUID]*models.Dispute
}

func newMemDisputes() *memDisputes {
	return &memDisputes{disputes: make(map[gocql.UUID]*models.Dispute)}
}

func (m *memDisputes) Insert(ctx context.Context, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *d
	m.disputes[d.ID] = &copied
	return nil
}

func (m *memDisputes) Dispute(ctx context.Context, disputeID gocql.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[disputeID]
	if !ok {
		return nil, errors.New("litige introuvable")
	}
	copied := *d
	return &copied, nil
}

func (m *memDisputes) OpenDisputeByTrip(ctx context.Context, tripID gocql.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.disputes {
		if d.TripID == tripID && d.IsOpen() {
			copied := *d
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memDisputes) Resolve(ctx context.Context, disputeID gocql.UUID, status, resolution, resolvedBy string, strikeIssued bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.disputes[disputeID]
	d.Status = status
	d.Resolution = resolution
	d.ResolvedBy = resolvedBy
	d.StrikeIssued = strikeIssued
	d.ResolvedAt = &at
	return nil
}

type memEscrows struct {
	mu      sync.Mutex
	escrows map[gocql.UUID]*models.Escrow
}

func newMemEscrows() *memEscrows {
	return &memEscrows{escrows: make(map[gocql.UUID]*models.Escrow)}
}

func (m *memEscrows) Insert(ctx context.Context, e *models.Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *e
	m.escrows[e.ID] = &copied
	return nil
}

func (m *memEscrows) HeldByTrip(ctx context.Context, tripID gocql.UUID) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escrows {
		if e.TripID == tripID && e.Status == models.EscrowStatusHeld {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memEscrows) HeldSince(ctx context.Context, cutoff time.Time) ([]models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Escrow
	for _, e := range m.escrows {
		if e.Status == models.EscrowStatusHeld && e.CreatedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEscrows) SetStatus(ctx context.Context, escrowID gocql.UUID, status, note string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.escrows[escrowID]
	e.Status = status
	e.Note = note
	e.ReleasedAt = &at
	return nil
}

func (m *memEscrows) AttachDispute(ctx context.Context, escrowID, disputeID gocql.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escrows[escrowID].DisputeID = &disputeID
	return nil
}

func (m *memEscrows) byTrip(tripID gocql.UUID) *models.Escrow {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escrows {
		if e.TripID == tripID {
			copied := *e
			return &copied
		}
	}
	return nil
}

type fakePayments struct {
	mu      sync.Mutex
	holds   []float64
	refunds []float64
	voids   []string
}

func (p *fakePayments) Hold(ctx context.Context, tripID gocql.UUID, amount float64, currency, reason string) (*models.PaymentAuthorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holds = append(p.holds, amount)
	return &models.PaymentAuthorization{
		Ref:    "pi_hold_test",
		TripID: tripID,
		Amount: amount,
		State:  models.AuthStateAuthorized,
	}, nil
}

func (p *fakePayments) Refund(ctx context.Context, ref ledger.Ref, amount float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, amount)
	return "re_test", nil
}

func (p *fakePayments) Void(ctx context.Context, ref ledger.Ref, reason string) (models.AuthorizationState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voids = append(p.voids, reason)
	return models.AuthStateVoided, nil
}

type passLocker struct{}

func (passLocker) WithTripLock(ctx context.Context, tripID string, fn func() error) error {
	return fn()
}

type fakeStrikes struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeStrikes) IssueStrike(ctx context.Context, driverID string, tripID gocql.UUID, reason, severity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, driverID+"/"+severity)
	return nil
}

// --- Montage ---

type engineFixture struct {
	engine   *Engine
	trips    *memTrips
	disputes *memDisputes
	escrows  *memEscrows
	payments *fakePayments
	strikes  *fakeStrikes
	now      time.Time
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		trips:    newMemTrips(),
		disputes: newMemDisputes(),
		escrows:  newMemEscrows(),
		payments: &fakePayments{},
		strikes:  &fakeStrikes{},
		now:      time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(f.trips, f.disputes, f.escrows, f.payments, passLocker{}, nil, nil, f.strikes).
		WithClock(func() time.Time { return f.now })
	return f
}

// completedTrip crée une course terminée il y a `ago`
func (f *engineFixture) completedTrip(ago time.Duration) *models.Trip {
	completed := f.now.Add(-ago)
	trip := &models.Trip{
		ID:              gocql.TimeUUID(),
		RiderID:         "rider-1",
		DriverID:        "driver-1",
		Status:          models.TripStatusCompleted,
		PaymentStatus:   models.PaymentStatusCompleted,
		PaymentRef:      "pi_trip_test",
		EstimatedAmount: 18.50,
		FinalAmount:     21.70,
		Currency:        "eur",
		CompletedAt:     &completed,
	}
	f.trips.add(trip)
	return trip
}

// --- Tests ---

func TestCreateDisputeInsideWindow(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(23*time.Hour + 59*time.Minute)

	d, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "montant incorrect", []string{"disputes/x/piece.jpg"})
	require.NoError(t, err)

	assert.Equal(t, models.DisputeStatusPending, d.Status)
	assert.Equal(t, 21.70, d.Amount, "le litige porte sur le montant final facturé")
	assert.Equal(t, f.now.Add(48*time.Hour), d.ReviewDeadline)
	assert.True(t, d.AutoHold, "le paiement était déjà débité : hold reposé")
	assert.Equal(t, []float64{21.70}, f.payments.holds)

	escrow := f.escrows.byTrip(trip.ID)
	require.NotNil(t, escrow)
	assert.Equal(t, models.EscrowStatusHeld, escrow.Status)
	require.NotNil(t, escrow.DisputeID)
	assert.Equal(t, d.ID, *escrow.DisputeID)

	assert.Equal(t, models.PaymentStatusHeld, f.trips.paymentStatus(trip.ID))
}

func TestCreateDisputeAfterWindow(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(24*time.Hour + time.Minute)

	_, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	assert.ErrorIs(t, err, ErrDisputeWindowExpired)

	// Rien ne doit avoir été muté
	assert.Empty(t, f.payments.holds)
	assert.Nil(t, f.escrows.byTrip(trip.ID))
	assert.Equal(t, models.PaymentStatusCompleted, f.trips.paymentStatus(trip.ID))
}

func TestCreateDisputeOnUnfinishedTrip(t *testing.T) {
	f := newEngineFixture()
	trip := &models.Trip{ID: gocql.TimeUUID(), RiderID: "rider-1", Status: models.TripStatusInProgress}
	f.trips.add(trip)

	_, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	assert.ErrorIs(t, err, ErrTripNotCompleted)
}

func TestSecondOpenDisputeRejected(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)

	_, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	_, err = f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "route", "", nil)
	assert.ErrorIs(t, err, ErrDisputeExists)
	assert.Len(t, f.payments.holds, 1)
}

func TestCreateDisputeWithPaymentAlreadyHeld(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)
	f.trips.SetPaymentStatus(context.Background(), trip.ID, models.PaymentStatusHeld)

	d, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	assert.False(t, d.AutoHold, "pas de nouveau hold si le paiement est déjà retenu")
	assert.Empty(t, f.payments.holds)
	require.NotNil(t, f.escrows.byTrip(trip.ID))
}

func TestResolveApprovedFullRefund(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)
	d, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	resolved, err := f.engine.ResolveDispute(context.Background(), d.ID, models.DisputeStatusApproved, "surfacturation avérée", 21.70, true, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, models.DisputeStatusApproved, resolved.Status)
	assert.Equal(t, []float64{21.70}, f.payments.refunds)
	assert.Equal(t, models.EscrowStatusRefundedToRider, f.escrows.byTrip(trip.ID).Status)
	assert.Equal(t, models.PaymentStatusRefunded, f.trips.paymentStatus(trip.ID))
	assert.Equal(t, []string{"driver-1/high"}, f.strikes.calls)
}

func TestResolveApprovedPartialRefund(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)
	d, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	_, err = f.engine.ResolveDispute(context.Background(), d.ID, models.DisputeStatusApproved, "remboursement partiel du détour", 5.00, false, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, []float64{5.00}, f.payments.refunds)
	assert.Equal(t, models.EscrowStatusPartiallyRefunded, f.escrows.byTrip(trip.ID).Status)
	assert.Empty(t, f.strikes.calls)
}

func TestResolveDenied(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)
	d, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	_, err = f.engine.ResolveDispute(context.Background(), d.ID, models.DisputeStatusDenied, "tarif conforme au trajet", 0, false, "admin-1")
	require.NoError(t, err)

	assert.Empty(t, f.payments.refunds)
	assert.Equal(t, models.EscrowStatusReleasedToDriver, f.escrows.byTrip(trip.ID).Status)
	assert.Equal(t, models.PaymentStatusCompleted, f.trips.paymentStatus(trip.ID))
}

func TestResolveTwiceRejected(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)
	d, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	_, err = f.engine.ResolveDispute(context.Background(), d.ID, models.DisputeStatusDenied, "tarif conforme au trajet", 0, false, "admin-1")
	require.NoError(t, err)

	_, err = f.engine.ResolveDispute(context.Background(), d.ID, models.DisputeStatusApproved, "changement d'avis", 21.70, false, "admin-2")
	assert.ErrorIs(t, err, ErrDisputeAlreadyResolved)
	assert.Empty(t, f.payments.refunds)
}

func TestResolveInvalidDecision(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)
	d, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	_, err = f.engine.ResolveDispute(context.Background(), d.ID, "maybe", "?", 0, false, "admin-1")
	assert.Error(t, err)
}

func TestAutoResolveReleasesStaleHolds(t *testing.T) {
	f := newEngineFixture()

	// Retenu depuis 25h sans litige : doit être libéré
	stale := f.completedTrip(25 * time.Hour)
	f.escrows.Insert(context.Background(), &models.Escrow{
		ID:        gocql.TimeUUID(),
		TripID:    stale.ID,
		Amount:    21.70,
		Status:    models.EscrowStatusHeld,
		CreatedAt: f.now.Add(-25 * time.Hour),
	})

	// Retenu depuis 1h : trop récent
	fresh := f.completedTrip(time.Hour)
	f.escrows.Insert(context.Background(), &models.Escrow{
		ID:        gocql.TimeUUID(),
		TripID:    fresh.ID,
		Amount:    21.70,
		Status:    models.EscrowStatusHeld,
		CreatedAt: f.now.Add(-time.Hour),
	})

	released, err := f.engine.AutoResolveHeldPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	staleEscrow := f.escrows.byTrip(stale.ID)
	assert.Equal(t, models.EscrowStatusReleasedToDriver, staleEscrow.Status)
	assert.Equal(t, models.AutoReleaseNote, staleEscrow.Note)
	assert.Equal(t, models.PaymentStatusCompleted, f.trips.paymentStatus(stale.ID))

	assert.Equal(t, models.EscrowStatusHeld, f.escrows.byTrip(fresh.ID).Status)
}

func TestAutoResolveSkipsOpenDisputes(t *testing.T) {
	f := newEngineFixture()

	trip := f.completedTrip(2 * time.Hour)
	_, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	// La fenêtre passe, mais le litige est toujours ouvert
	f.now = f.now.Add(26 * time.Hour)

	released, err := f.engine.AutoResolveHeldPayments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Equal(t, models.EscrowStatusHeld, f.escrows.byTrip(trip.ID).Status)
}

func TestVoidPayment(t *testing.T) {
	f := newEngineFixture()
	trip := f.completedTrip(2 * time.Hour)
	_, err := f.engine.CreateDispute(context.Background(), trip.ID, "rider-1", "overcharge", "", nil)
	require.NoError(t, err)

	err = f.engine.VoidPayment(context.Background(), trip.ID, models.ReasonSOSTriggered)
	require.NoError(t, err)

	assert.Equal(t, []string{models.ReasonSOSTriggered}, f.payments.voids)
	assert.Equal(t, models.EscrowStatusVoided, f.escrows.byTrip(trip.ID).Status)
	assert.Equal(t, models.PaymentStatusVoided, f.trips.paymentStatus(trip.ID))
}
