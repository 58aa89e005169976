package reservation

import (
	"context"
	"errors"
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/geocode"
	"plumberleads/internal/telemetry"

	"github.com/google/uuid"
)

const DefaultTTL = 60 * time.Minute

const (
	ReasonReleased = "reservation released"
	ReasonExpired  = "reservation expired"
)

type Service struct {
	leads     leadStore
	history   historyWriter
	claimants claimantStore
	attempts  attemptFailer
	tx        transactor

	ttl      time.Duration
	clock    clock.Clock
	geocoder geocode.Geocoder
	loggerf  func(format string, args ...interface{})
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithGeocoder(g geocode.Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

func WithLogger(loggerf func(format string, args ...interface{})) Option {
	return func(s *Service) {
		if loggerf != nil {
			s.loggerf = loggerf
		}
	}
}

func NewService(leads leadStore, history historyWriter, claimants claimantStore, attempts attemptFailer, tx transactor, opts ...Option) *Service {
	s := &Service{
		leads:     leads,
		history:   history,
		claimants: claimants,
		attempts:  attempts,
		tx:        tx,
		ttl:       DefaultTTL,
		clock:     clock.NewSystem(),
		geocoder:  geocode.None{},
		loggerf:   func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

// IsExpired reports whether the reservation on l is past the TTL at now.
func (s *Service) IsExpired(l *domain.Lead, now time.Time) bool {
	return IsExpired(l, now, s.ttl)
}

// IsExpired is strict: a reservation exactly ttl old is still live.
func IsExpired(l *domain.Lead, now time.Time, ttl time.Duration) bool {
	if l.Status != domain.LeadReserved || l.ReservedAt == nil {
		return false
	}
	return now.Sub(*l.ReservedAt) > ttl
}

// Reserve locks an available lead for claimantID. Of several concurrent callers
// exactly one wins; the rest get ErrLeadUnavailable.
func (s *Service) Reserve(ctx context.Context, leadID uuid.UUID, claimantID string) (*domain.Lead, error) {
	claimant, err := s.claimants.GetByID(ctx, claimantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			telemetry.Reservations.WithLabelValues("rejected").Inc()
			return nil, domain.ErrClaimantIneligible
		}
		return nil, err
	}
	if !claimant.Verified {
		telemetry.Reservations.WithLabelValues("rejected").Inc()
		return nil, domain.ErrClaimantIneligible
	}
	clat, clng, err := s.claimantLocation(ctx, claimant)
	if err != nil {
		telemetry.Reservations.WithLabelValues("rejected").Inc()
		return nil, err
	}

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Status != domain.LeadAvailable {
		telemetry.Reservations.WithLabelValues("lost").Inc()
		return nil, domain.ErrLeadUnavailable
	}
	llat, llng, err := s.leadLocation(ctx, lead)
	if err != nil {
		telemetry.Reservations.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if domain.DistanceMiles(clat, clng, llat, llng) > claimant.Radius() {
		telemetry.Reservations.WithLabelValues("rejected").Inc()
		return nil, domain.ErrOutsideRadius
	}

	var reserved *domain.Lead
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := s.leads.GetForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if l.Status != domain.LeadAvailable {
			return domain.ErrLeadUnavailable
		}

		now := s.clock.Now()
		l.Reserve(claimantID, now)
		if err := s.leads.CompareAndSwap(ctx, l, domain.LeadAvailable, now); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				return domain.ErrLeadUnavailable
			}
			return err
		}
		if err := s.history.Append(ctx, domain.StatusEntry(l.ID, claimantID, domain.LeadAvailable, domain.LeadReserved, domain.ChangeReservation, now)); err != nil {
			return err
		}
		reserved = l
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrLeadUnavailable) {
			telemetry.Reservations.WithLabelValues("lost").Inc()
		}
		return nil, err
	}

	telemetry.Reservations.WithLabelValues("won").Inc()
	s.loggerf("level=info msg=lead reserved lead_id=%s claimant_id=%s", leadID, claimantID)
	return reserved, nil
}

// Release gives a reservation back. Only the holder or an admin may do it.
func (s *Service) Release(ctx context.Context, leadID uuid.UUID, actor domain.Actor) (*domain.Lead, error) {
	var out *domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := s.leads.GetForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if l.Status != domain.LeadReserved {
			return domain.ErrNotReserved
		}
		if !actor.Admin && !l.IsReservedBy(actor.ID) {
			return domain.ErrNotOwner
		}
		if err := s.release(ctx, l, actor.ID, domain.ChangeRelease, ReasonReleased); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Expire releases a reservation that is past its TTL. It re-checks both
// conditions under the row lock, so it loses cleanly to a concurrent claim.
func (s *Service) Expire(ctx context.Context, leadID uuid.UUID) (*domain.Lead, error) {
	var out *domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := s.leads.GetForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if l.Status != domain.LeadReserved {
			return domain.ErrNotReserved
		}
		if !s.IsExpired(l, s.clock.Now()) {
			return domain.ErrReservationActive
		}
		if err := s.release(ctx, l, domain.System.ID, domain.ChangeExpiry, ReasonExpired); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseForPayment runs inside the payment failure transaction. It only
// releases when claimantID still holds the reservation.
func (s *Service) ReleaseForPayment(ctx context.Context, leadID uuid.UUID, claimantID, reason string) (*domain.Lead, error) {
	var out *domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := s.leads.GetForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if !l.IsReservedBy(claimantID) {
			return domain.ErrNotReserved
		}
		if err := s.release(ctx, l, domain.System.ID, domain.ChangeRelease, reason); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// release must run inside a transaction with l locked.
func (s *Service) release(ctx context.Context, l *domain.Lead, actorID string, change domain.ChangeType, reason string) error {
	now := s.clock.Now()
	holder := l.HolderID()
	l.Release()
	if err := s.leads.CompareAndSwap(ctx, l, domain.LeadReserved, now); err != nil {
		if errors.Is(err, domain.ErrStaleWrite) {
			return domain.ErrNotReserved
		}
		return err
	}
	failed, err := s.attempts.FailPendingForLead(ctx, l.ID, reason, now)
	if err != nil {
		return err
	}
	if err := s.history.Append(ctx, domain.StatusEntry(l.ID, actorID, domain.LeadReserved, domain.LeadAvailable, change, now)); err != nil {
		return err
	}
	s.loggerf("level=info msg=reservation released lead_id=%s holder=%s reason=%q failed_attempts=%d", l.ID, holder, reason, failed)
	return nil
}

func (s *Service) claimantLocation(ctx context.Context, c *domain.Claimant) (float64, float64, error) {
	if c.HasLocation() {
		return *c.Latitude, *c.Longitude, nil
	}
	lat, lng, err := s.geocoder.Geocode(ctx, geocode.Address(c.Address, c.City, c.State, c.ZipCode))
	if err != nil {
		s.loggerf("level=warn msg=claimant geocode failed claimant_id=%s err=%v", c.ID, err)
		return 0, 0, domain.ErrClaimantLocation
	}
	if err := s.claimants.UpdateLocation(ctx, c.ID, lat, lng); err != nil {
		s.loggerf("level=warn msg=failed to store claimant location claimant_id=%s err=%v", c.ID, err)
	}
	return lat, lng, nil
}

func (s *Service) leadLocation(ctx context.Context, l *domain.Lead) (float64, float64, error) {
	if l.HasLocation() {
		return *l.Latitude, *l.Longitude, nil
	}
	lat, lng, err := s.geocoder.Geocode(ctx, geocode.Address(l.Address, l.City, l.State, l.ZipCode))
	if err != nil {
		s.loggerf("level=warn msg=lead geocode failed lead_id=%s err=%v", l.ID, err)
		return 0, 0, domain.ErrLeadLocation
	}
	if err := s.leads.UpdateLocation(ctx, l.ID, lat, lng); err != nil {
		return 0, 0, err
	}
	l.Latitude, l.Longitude = &lat, &lng
	return lat, lng, nil
}
