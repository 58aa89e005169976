package lead

import (
	"context"
	"math"
	"strconv"
	"strings"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/geocode"
	"plumberleads/internal/notification"
	"plumberleads/internal/pkg/validator"
	"plumberleads/internal/repository"
	"plumberleads/internal/telemetry"

	"github.com/google/uuid"
)

const (
	DefaultPriceCents = 1500

	// job priced leads cost a share of the job, never less than the floor
	DefaultClaimPercentage = 0.15
	DefaultMinimumCents    = 3000

	DefaultPageSize   = 20
	MaxPageSize       = 100

	reasonClosed = "lead closed"
)

type Service struct {
	leads    leadStore
	history  historyStore
	attempts attemptFailer
	tx       transactor

	geocoder     geocode.Geocoder
	publisher    notification.Publisher
	clock        clock.Clock
	defaultPrice int64
	claimPct     float64
	minimumPrice int64
	currency     string
	loggerf      func(format string, args ...interface{})
}

type Option func(*Service)

func WithGeocoder(g geocode.Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

func WithPublisher(p notification.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(loggerf func(format string, args ...interface{})) Option {
	return func(s *Service) {
		if loggerf != nil {
			s.loggerf = loggerf
		}
	}
}

// WithDefaultPrice sets the price given to leads submitted without one.
func WithDefaultPrice(cents int64, currency string) Option {
	return func(s *Service) {
		if cents > 0 {
			s.defaultPrice = cents
		}
		if currency != "" {
			s.currency = strings.ToLower(currency)
		}
	}
}

// WithJobPricing sets how a lead is priced from the job price.
func WithJobPricing(percentage float64, minimumCents int64) Option {
	return func(s *Service) {
		if percentage > 0 {
			s.claimPct = percentage
		}
		if minimumCents > 0 {
			s.minimumPrice = minimumCents
		}
	}
}

func NewService(leads leadStore, history historyStore, attempts attemptFailer, tx transactor, opts ...Option) *Service {
	s := &Service{
		leads:        leads,
		history:      history,
		attempts:     attempts,
		tx:           tx,
		geocoder:     geocode.None{},
		publisher:    notification.Discard,
		clock:        clock.NewSystem(),
		defaultPrice: DefaultPriceCents,
		claimPct:     DefaultClaimPercentage,
		minimumPrice: DefaultMinimumCents,
		currency:     "usd",
		loggerf:      func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a new available lead.
func (s *Service) Submit(ctx context.Context, req SubmitLeadRequest) (*domain.Lead, error) {
	req.normalize()
	if fields := validator.Validate(req); fields != nil {
		return nil, domain.NewValidationError("invalid lead", fields)
	}

	price := s.price(req)
	urgency := req.Urgency
	if urgency == "" {
		urgency = domain.UrgencyNormal
	}

	now := s.clock.Now()
	l := &domain.Lead{
		Title:           req.Title,
		Description:     req.Description,
		ServiceCategory: req.ServiceCategory,
		Urgency:         urgency,
		Address:         req.Address,
		City:            req.City,
		State:           req.State,
		ZipCode:         req.ZipCode,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		PriceCents:      price,
		Currency:        s.currency,
		Status:          domain.LeadAvailable,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !l.HasLocation() {
		lat, lng, err := s.geocoder.Geocode(ctx, geocode.Address(l.Address, l.City, l.State, l.ZipCode))
		if err != nil {
			s.loggerf("level=warn msg=lead geocode failed zip=%s err=%v", l.ZipCode, err)
			l.Latitude, l.Longitude = nil, nil
		} else {
			l.Latitude, l.Longitude = &lat, &lng
		}
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.leads.Create(ctx, l); err != nil {
			return err
		}
		return s.history.Append(ctx, domain.StatusEntry(l.ID, "", "", domain.LeadAvailable, domain.ChangeStatus, now))
	})
	if err != nil {
		return nil, err
	}

	telemetry.LeadsSubmitted.Inc()
	s.loggerf("level=info msg=lead submitted lead_id=%s category=%s zip=%s price_cents=%d", l.ID, l.ServiceCategory, l.ZipCode, l.PriceCents)
	s.publisher.Publish(notification.Event{
		Type:            notification.EventLeadSubmitted,
		LeadID:          l.ID.String(),
		Title:           l.Title,
		ServiceCategory: l.ServiceCategory,
		City:            l.City,
		State:           l.State,
		OccurredAt:      now,
	})
	return l, nil
}

// JobPrice returns the lead price for a job of jobCents.
func (s *Service) JobPrice(jobCents int64) int64 {
	cents := int64(math.Round(float64(jobCents) * s.claimPct))
	if cents < s.minimumPrice {
		return s.minimumPrice
	}
	return cents
}

func (s *Service) price(req SubmitLeadRequest) int64 {
	switch {
	case req.PriceCents != nil && *req.PriceCents > 0:
		return *req.PriceCents
	case req.JobPriceCents != nil:
		return s.JobPrice(*req.JobPriceCents)
	}
	return s.defaultPrice
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	return s.leads.GetByID(ctx, id)
}

// SetStatus moves a lead to completed or closed. Every other target has its
// own operation.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status domain.LeadStatus, actor domain.Actor) (*domain.Lead, error) {
	if !domain.ValidLeadStatus(status) {
		return nil, domain.NewValidationError("invalid status", map[string]string{"status": "oneof"})
	}

	var out *domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := s.leads.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := l.Status
		if !domain.CanTransition(from, status) {
			return domain.NewTransitionError(from, status)
		}

		now := s.clock.Now()
		var change domain.ChangeType
		switch status {
		case domain.LeadCompleted:
			if !actor.Admin && !l.IsClaimedBy(actor.ID) {
				return domain.ErrNotOwner
			}
			change = domain.ChangeComplete
		case domain.LeadClosed:
			if !actor.Admin {
				return domain.ErrAdminOnly
			}
			if from == domain.LeadReserved {
				if _, err := s.attempts.FailPendingForLead(ctx, l.ID, reasonClosed, now); err != nil {
					return err
				}
			}
			l.ReservedBy, l.ReservedAt = nil, nil
			l.ClaimedBy, l.ClaimedAt = nil, nil
			change = domain.ChangeClose
		default:
			return domain.NewTransitionError(from, status)
		}

		l.Status = status
		if err := s.leads.CompareAndSwap(ctx, l, from, now); err != nil {
			return err
		}
		if err := s.history.Append(ctx, domain.StatusEntry(l.ID, actor.ID, from, status, change, now)); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=lead status changed lead_id=%s status=%s actor_id=%s", out.ID, out.Status, actor.ID)
	return out, nil
}

// ListAvailable pages through leads newest first. Only admins may list a
// status other than available.
func (s *Service) ListAvailable(ctx context.Context, q ListQuery, actor domain.Actor) (*Page, error) {
	status := domain.LeadStatus(strings.ToLower(q.Status))
	if status == "" {
		status = domain.LeadAvailable
	}
	if !domain.ValidLeadStatus(status) {
		return nil, domain.NewValidationError("invalid status filter", map[string]string{"status": "oneof"})
	}
	if status != domain.LeadAvailable && !actor.Admin {
		return nil, domain.ErrAdminOnly
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	items, total, err := s.leads.List(ctx, repository.LeadFilter{
		Status:          status,
		ServiceCategory: q.ServiceCategory,
		City:            q.City,
		State:           q.State,
		ZipCode:         q.ZipCode,
	}, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// UpdatePrice changes the price future authorizations will charge. Existing
// payment attempts keep their amount.
func (s *Service) UpdatePrice(ctx context.Context, id uuid.UUID, cents int64, actor domain.Actor) (*domain.Lead, error) {
	if !actor.Admin {
		return nil, domain.ErrAdminOnly
	}
	if cents <= 0 {
		return nil, domain.NewValidationError("price must be positive", map[string]string{"price_cents": "gt"})
	}

	var out *domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := s.leads.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch l.Status {
		case domain.LeadAvailable, domain.LeadReserved, domain.LeadClaimed:
		default:
			return domain.ErrPriceLocked
		}

		now := s.clock.Now()
		old := l.PriceCents
		l.PriceCents = cents
		if err := s.leads.CompareAndSwap(ctx, l, l.Status, now); err != nil {
			return err
		}
		if err := s.history.Append(ctx, &domain.LeadHistory{
			LeadID:     l.ID,
			ActorID:    &actor.ID,
			FieldName:  "price_cents",
			OldValue:   strconv.FormatInt(old, 10),
			NewValue:   strconv.FormatInt(cents, 10),
			ChangeType: domain.ChangePrice,
			CreatedAt:  now,
		}); err != nil {
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

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]domain.LeadHistory, error) {
	if _, err := s.leads.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByLead(ctx, id)
}
