package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/geocode"
	"plumberleads/internal/repository"
	"plumberleads/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type env struct {
	db       *gorm.DB
	clock    *clock.Manual
	leads    *repository.LeadRepository
	attempts *repository.PaymentAttemptRepository
	history  *repository.LeadHistoryRepository
	svc      *Service
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	db := testutil.NewDB(t)
	e := &env{
		db:       db,
		clock:    clock.NewManual(t0),
		leads:    repository.NewLeadRepository(db),
		attempts: repository.NewPaymentAttemptRepository(db),
		history:  repository.NewLeadHistoryRepository(db),
	}
	opts = append([]Option{WithClock(e.clock)}, opts...)
	e.svc = NewService(e.leads, e.history, repository.NewClaimantRepository(db), e.attempts, repository.NewTransactor(db), opts...)
	return e
}

func (e *env) reload(t *testing.T, id uuid.UUID) *domain.Lead {
	t.Helper()
	l, err := e.leads.GetByID(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (e *env) countHistory(t *testing.T, id uuid.UUID, change domain.ChangeType) int64 {
	t.Helper()
	n, err := e.history.CountByType(context.Background(), id, change)
	require.NoError(t, err)
	return n
}

func (e *env) pendingAttempt(t *testing.T, l *domain.Lead, claimantID string) *domain.PaymentAttempt {
	t.Helper()
	a := &domain.PaymentAttempt{
		LeadID:      l.ID,
		ClaimantID:  claimantID,
		AmountCents: l.PriceCents,
		Currency:    "usd",
		ExternalRef: "ref-" + uuid.NewString(),
		Status:      domain.AttemptPending,
	}
	require.NoError(t, e.attempts.Create(context.Background(), a))
	return a
}

func TestReserve_Success(t *testing.T) {
	e := newEnv(t)
	testutil.SeedClaimant(t, e.db, "plumber-1")
	l := testutil.SeedLead(t, e.db, t0)

	got, err := e.svc.Reserve(context.Background(), l.ID, "plumber-1")
	require.NoError(t, err)

	assert.Equal(t, domain.LeadReserved, got.Status)
	stored := e.reload(t, l.ID)
	assert.Equal(t, domain.LeadReserved, stored.Status)
	require.NotNil(t, stored.ReservedBy)
	assert.Equal(t, "plumber-1", *stored.ReservedBy)
	assert.True(t, stored.ReservedAt.Equal(t0))
	assert.Equal(t, int64(2), stored.Version)
	assert.NoError(t, stored.CheckInvariants())
	assert.Equal(t, int64(1), e.countHistory(t, l.ID, domain.ChangeReservation))
}

func TestReserve_ConcurrentCallersHaveOneWinner(t *testing.T) {
	e := newEnv(t)
	l := testutil.SeedLead(t, e.db, t0)
	const n = 8
	for i := 0; i < n; i++ {
		testutil.SeedClaimant(t, e.db, fmt.Sprintf("plumber-%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = e.svc.Reserve(context.Background(), l.ID, fmt.Sprintf("plumber-%d", i))
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrLeadUnavailable), "unexpected error: %v", err)
		assert.Equal(t, "lead no longer available", err.Error())
	}
	assert.Equal(t, 1, winners)

	stored := e.reload(t, l.ID)
	assert.Equal(t, domain.LeadReserved, stored.Status)
	assert.NoError(t, stored.CheckInvariants())
	assert.Equal(t, int64(1), e.countHistory(t, l.ID, domain.ChangeReservation))
}

func TestReserve_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := testutil.SeedLead(t, e.db, t0)
	testutil.SeedClaimant(t, e.db, "unverified", func(c *domain.Claimant) { c.Verified = false })
	testutil.SeedClaimant(t, e.db, "far-away", func(c *domain.Claimant) {
		// San Antonio, about 74 miles out
		c.Latitude = testutil.Float(29.4241)
		c.Longitude = testutil.Float(-98.4936)
	})
	testutil.SeedClaimant(t, e.db, "no-location", func(c *domain.Claimant) {
		c.Latitude, c.Longitude = nil, nil
	})

	_, err := e.svc.Reserve(ctx, l.ID, "unverified")
	assert.ErrorIs(t, err, domain.ErrClaimantIneligible)

	_, err = e.svc.Reserve(ctx, l.ID, "nobody")
	assert.ErrorIs(t, err, domain.ErrClaimantIneligible)

	_, err = e.svc.Reserve(ctx, l.ID, "far-away")
	assert.ErrorIs(t, err, domain.ErrOutsideRadius)
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	_, err = e.svc.Reserve(ctx, l.ID, "no-location")
	assert.ErrorIs(t, err, domain.ErrClaimantLocation)

	testutil.SeedClaimant(t, e.db, "plumber-1")
	_, err = e.svc.Reserve(ctx, uuid.New(), "plumber-1")
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)

	assert.Equal(t, domain.LeadAvailable, e.reload(t, l.ID).Status)
}

func TestReserve_AlreadyReserved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.SeedClaimant(t, e.db, "a")
	testutil.SeedClaimant(t, e.db, "b")
	l := testutil.SeedLead(t, e.db, t0)

	_, err := e.svc.Reserve(ctx, l.ID, "a")
	require.NoError(t, err)
	_, err = e.svc.Reserve(ctx, l.ID, "b")
	assert.ErrorIs(t, err, domain.ErrLeadUnavailable)
}

func TestReserve_GeocodesMissingCoordinates(t *testing.T) {
	static := geocode.NewStatic(map[string]geocode.Point{
		"78701": {Lat: testutil.AustinLat, Lng: testutil.AustinLng},
	})
	e := newEnv(t, WithGeocoder(static))
	testutil.SeedClaimant(t, e.db, "plumber-1", func(c *domain.Claimant) { c.Latitude, c.Longitude = nil, nil })
	l := testutil.SeedLead(t, e.db, t0, func(l *domain.Lead) { l.Latitude, l.Longitude = nil, nil })

	_, err := e.svc.Reserve(context.Background(), l.ID, "plumber-1")
	require.NoError(t, err)

	stored := e.reload(t, l.ID)
	require.True(t, stored.HasLocation())
	assert.InDelta(t, testutil.AustinLat, *stored.Latitude, 1e-9)

	other := testutil.SeedLead(t, e.db, t0, func(l *domain.Lead) {
		l.Latitude, l.Longitude = nil, nil
		l.ZipCode = "99999"
	})
	_, err = e.svc.Reserve(context.Background(), other.ID, "plumber-1")
	assert.ErrorIs(t, err, domain.ErrLeadLocation)
}

func TestRelease(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.SeedClaimant(t, e.db, "holder")
	l := testutil.SeedLead(t, e.db, t0)

	_, err := e.svc.Reserve(ctx, l.ID, "holder")
	require.NoError(t, err)
	a := e.pendingAttempt(t, l, "holder")

	_, err = e.svc.Release(ctx, l.ID, domain.Actor{ID: "someone-else"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := e.svc.Release(ctx, l.ID, domain.Actor{ID: "holder"})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadAvailable, got.Status)

	stored := e.reload(t, l.ID)
	assert.Nil(t, stored.ReservedBy)
	assert.Nil(t, stored.ReservedAt)
	assert.Equal(t, int64(1), e.countHistory(t, l.ID, domain.ChangeRelease))

	failed, err := e.attempts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptFailed, failed.Status)
	assert.Equal(t, ReasonReleased, failed.FailureReason)

	_, err = e.svc.Release(ctx, l.ID, domain.Actor{ID: "holder"})
	assert.ErrorIs(t, err, domain.ErrNotReserved)
}

func TestRelease_ByAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.SeedClaimant(t, e.db, "holder")
	l := testutil.SeedLead(t, e.db, t0)
	_, err := e.svc.Reserve(ctx, l.ID, "holder")
	require.NoError(t, err)

	_, err = e.svc.Release(ctx, l.ID, domain.Actor{ID: "ops", Admin: true})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadAvailable, e.reload(t, l.ID).Status)
}

func TestExpire_RespectsTTLBoundary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.SeedClaimant(t, e.db, "holder")
	l := testutil.SeedLead(t, e.db, t0)
	_, err := e.svc.Reserve(ctx, l.ID, "holder")
	require.NoError(t, err)
	a := e.pendingAttempt(t, l, "holder")

	e.clock.Advance(59 * time.Minute)
	_, err = e.svc.Expire(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrReservationActive)
	assert.Equal(t, domain.LeadReserved, e.reload(t, l.ID).Status)

	e.clock.Advance(2 * time.Minute)
	got, err := e.svc.Expire(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadAvailable, got.Status)
	assert.Equal(t, int64(1), e.countHistory(t, l.ID, domain.ChangeExpiry))

	failed, err := e.attempts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptFailed, failed.Status)
	assert.Equal(t, ReasonExpired, failed.FailureReason)

	_, err = e.svc.Expire(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestIsExpired(t *testing.T) {
	at := t0
	l := &domain.Lead{Status: domain.LeadReserved, ReservedAt: &at}

	assert.False(t, IsExpired(l, t0.Add(59*time.Minute), DefaultTTL))
	assert.False(t, IsExpired(l, t0.Add(60*time.Minute), DefaultTTL))
	assert.True(t, IsExpired(l, t0.Add(60*time.Minute+time.Nanosecond), DefaultTTL))
	assert.True(t, IsExpired(l, t0.Add(61*time.Minute), DefaultTTL))

	l.Status = domain.LeadAvailable
	assert.False(t, IsExpired(l, t0.Add(24*time.Hour), DefaultTTL))

	s := NewService(nil, nil, nil, nil, nil, WithTTL(10*time.Minute))
	assert.Equal(t, 10*time.Minute, s.TTL())
	l.Status = domain.LeadReserved
	assert.True(t, s.IsExpired(l, t0.Add(11*time.Minute)))
}

func TestReleaseForPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.SeedClaimant(t, e.db, "holder")
	l := testutil.SeedLead(t, e.db, t0)
	_, err := e.svc.Reserve(ctx, l.ID, "holder")
	require.NoError(t, err)

	_, err = e.svc.ReleaseForPayment(ctx, l.ID, "intruder", "payment failed")
	assert.ErrorIs(t, err, domain.ErrNotReserved)

	got, err := e.svc.ReleaseForPayment(ctx, l.ID, "holder", "payment failed")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadAvailable, got.Status)

	entries, err := e.history.ListByLead(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ChangeRelease, entries[1].ChangeType)
	assert.Nil(t, entries[1].ActorID)
}
