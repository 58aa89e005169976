package claimant

import (
	"context"
	"testing"
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/geocode"
	"plumberleads/internal/repository"
	"plumberleads/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type MockClaimantStore struct {
	mock.Mock
}

func (m *MockClaimantStore) GetByID(ctx context.Context, id string) (*domain.Claimant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Claimant), args.Error(1)
}

func (m *MockClaimantStore) Upsert(ctx context.Context, c *domain.Claimant) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockClaimantStore) SetVerified(ctx context.Context, id string, verified bool) error {
	return m.Called(ctx, id, verified).Error(0)
}

func profileRequest() UpsertProfileRequest {
	return UpsertProfileRequest{
		BusinessName: "Lone Star Plumbing",
		Address:      "500 E 7th St",
		City:         "Austin",
		State:        "TX",
		ZipCode:      "78701",
	}
}

func TestUpsertProfile_GeocodesAndDefaultsRadius(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewClaimantRepository(db)
	svc := NewService(repo, geocode.NewStatic(geocode.DefaultTable()), clock.NewFixed(t0), nil)

	c, err := svc.UpsertProfile(context.Background(), domain.Actor{ID: "plumber-1"}, profileRequest())
	require.NoError(t, err)
	assert.Equal(t, "Lone Star Plumbing", c.BusinessName)
	assert.Equal(t, domain.DefaultServiceRadiusMiles, c.ServiceRadiusMiles)
	assert.True(t, c.HasLocation())
	assert.False(t, c.Verified)
}

func TestUpsertProfile_NeverChangesVerification(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewClaimantRepository(db)
	testutil.SeedClaimant(t, db, "plumber-1")
	svc := NewService(repo, nil, clock.NewFixed(t0), nil)

	req := profileRequest()
	req.ServiceRadiusMiles = 40
	c, err := svc.UpsertProfile(context.Background(), domain.Actor{ID: "plumber-1"}, req)
	require.NoError(t, err)
	assert.True(t, c.Verified)
	assert.Equal(t, 40.0, c.ServiceRadiusMiles)
	// same address, so the stored coordinates survive without a geocoder
	assert.True(t, c.HasLocation())
}

func TestUpsertProfile_AddressChangeWithoutGeocoderClearsLocation(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewClaimantRepository(db)
	testutil.SeedClaimant(t, db, "plumber-1")
	svc := NewService(repo, nil, clock.NewFixed(t0), nil)

	req := profileRequest()
	req.Address = "1 Somewhere Else"
	req.ZipCode = "99999"
	c, err := svc.UpsertProfile(context.Background(), domain.Actor{ID: "plumber-1"}, req)
	require.NoError(t, err)
	assert.False(t, c.HasLocation())
}

func TestUpsertProfile_Validation(t *testing.T) {
	store := new(MockClaimantStore)
	svc := NewService(store, nil, nil, nil)

	req := profileRequest()
	req.BusinessName = "  "
	req.City = "\t"
	req.ServiceRadiusMiles = 900
	_, err := svc.UpsertProfile(context.Background(), domain.Actor{ID: "plumber-1"}, req)
	require.ErrorIs(t, err, domain.ErrValidation)
	de, _ := domain.AsError(err)
	assert.Equal(t, "required", de.Fields["business_name"])
	assert.Equal(t, "required", de.Fields["city"])
	assert.Equal(t, "max", de.Fields["service_radius_miles"])

	_, err = svc.UpsertProfile(context.Background(), domain.Actor{}, profileRequest())
	assert.ErrorIs(t, err, domain.ErrForbidden)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestUpsertProfile_KeepsSuppliedCoordinates(t *testing.T) {
	store := new(MockClaimantStore)
	svc := NewService(store, nil, clock.NewFixed(t0), nil)
	req := profileRequest()
	req.Latitude = testutil.Float(30.3)
	req.Longitude = testutil.Float(-97.7)

	store.On("GetByID", mock.Anything, "plumber-1").Return(nil, domain.ErrClaimantNotFound).Once()
	store.On("Upsert", mock.Anything, mock.MatchedBy(func(c *domain.Claimant) bool {
		return c.ID == "plumber-1" && c.HasLocation() && *c.Latitude == 30.3 && !c.Verified
	})).Return(nil)
	store.On("GetByID", mock.Anything, "plumber-1").Return(&domain.Claimant{ID: "plumber-1", Latitude: req.Latitude, Longitude: req.Longitude}, nil)

	c, err := svc.UpsertProfile(context.Background(), domain.Actor{ID: "plumber-1"}, req)
	require.NoError(t, err)
	assert.Equal(t, 30.3, *c.Latitude)
	store.AssertExpectations(t)
}

func TestSetVerified(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedClaimant(t, db, "plumber-1", func(c *domain.Claimant) { c.Verified = false })
	svc := NewService(repository.NewClaimantRepository(db), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.SetVerified(ctx, "plumber-1", true, domain.Actor{ID: "plumber-1"})
	assert.ErrorIs(t, err, domain.ErrAdminOnly)

	c, err := svc.SetVerified(ctx, "plumber-1", true, domain.Actor{ID: "admin-1", Admin: true})
	require.NoError(t, err)
	assert.True(t, c.Verified)

	_, err = svc.SetVerified(ctx, "nobody", true, domain.Actor{ID: "admin-1", Admin: true})
	assert.ErrorIs(t, err, domain.ErrClaimantNotFound)
}
