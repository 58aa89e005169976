package claimant

import (
	"context"
	"errors"
	"strings"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/geocode"
	"plumberleads/internal/pkg/validator"
)

// Service handles claimant profile business logic
type Service struct {
	claimants claimantStore
	geocoder  geocode.Geocoder
	clock     clock.Clock
	loggerf   func(format string, args ...interface{})
}

// NewService creates claimant service. geocoder and c may be nil.
func NewService(claimants claimantStore, geocoder geocode.Geocoder, c clock.Clock, loggerf func(format string, args ...interface{})) *Service {
	if geocoder == nil {
		geocoder = geocode.None{}
	}
	if c == nil {
		c = clock.NewSystem()
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{claimants: claimants, geocoder: geocoder, clock: c, loggerf: loggerf}
}

// Get returns the claimant profile
func (s *Service) Get(ctx context.Context, id string) (*domain.Claimant, error) {
	return s.claimants.GetByID(ctx, id)
}

// UpsertProfile creates or updates the actor's own profile. Verification is
// never changed here.
func (s *Service) UpsertProfile(ctx context.Context, actor domain.Actor, req UpsertProfileRequest) (*domain.Claimant, error) {
	if actor.ID == "" {
		return nil, domain.ErrNotOwner
	}
	req.normalize()
	if fields := validator.Validate(req); fields != nil {
		return nil, domain.NewValidationError("invalid profile", fields)
	}

	existing, err := s.claimants.GetByID(ctx, actor.ID)
	if err != nil && !errors.Is(err, domain.ErrClaimantNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	radius := req.ServiceRadiusMiles
	if radius == 0 {
		radius = domain.DefaultServiceRadiusMiles
	}
	c := &domain.Claimant{
		ID:                 actor.ID,
		BusinessName:       req.BusinessName,
		Address:            req.Address,
		City:               req.City,
		State:              req.State,
		ZipCode:            req.ZipCode,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		ServiceRadiusMiles: radius,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if !c.HasLocation() {
		c.Latitude, c.Longitude = nil, nil
		switch {
		case existing != nil && existing.HasLocation() && sameAddress(existing, c):
			c.Latitude, c.Longitude = existing.Latitude, existing.Longitude
		default:
			lat, lng, err := s.geocoder.Geocode(ctx, geocode.Address(c.Address, c.City, c.State, c.ZipCode))
			if err != nil {
				s.loggerf("level=warn msg=claimant geocode failed claimant_id=%s err=%v", c.ID, err)
			} else {
				c.Latitude, c.Longitude = &lat, &lng
			}
		}
	}

	if err := s.claimants.Upsert(ctx, c); err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=claimant profile saved claimant_id=%s located=%t", c.ID, c.HasLocation())
	return s.claimants.GetByID(ctx, c.ID)
}

// SetVerified records an admin verification decision
func (s *Service) SetVerified(ctx context.Context, id string, verified bool, actor domain.Actor) (*domain.Claimant, error) {
	if !actor.Admin {
		return nil, domain.ErrAdminOnly
	}
	if err := s.claimants.SetVerified(ctx, id, verified); err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=claimant verification changed claimant_id=%s verified=%t admin_id=%s", id, verified, actor.ID)
	return s.claimants.GetByID(ctx, id)
}

func sameAddress(a, b *domain.Claimant) bool {
	return strings.EqualFold(geocode.Address(a.Address, a.City, a.State, a.ZipCode),
		geocode.Address(b.Address, b.City, b.State, b.ZipCode))
}
