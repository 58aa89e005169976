package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/gateway"
	"plumberleads/internal/notification"
	"plumberleads/internal/repository"
	"plumberleads/internal/telemetry"

	"github.com/google/uuid"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultCurrency = "usd"

	reasonClaimLost   = "reservation lost before payment confirmation"
	reasonRefund      = "refunded by admin"
	compensationBatch = 50
)

type Service struct {
	leads        leadStore
	attempts     attemptStore
	history      historyWriter
	tx           transactor
	reservations reservations
	finalizer    finalizer
	gateway      gateway.Gateway

	dedup     deduper
	publisher notification.Publisher
	clock     clock.Clock
	timeout   time.Duration
	currency  string
	loggerf   func(format string, args ...interface{})
}

type Option func(*Service)

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

// WithDedup enables webhook event de-duplication.
func WithDedup(d deduper) Option {
	return func(s *Service) { s.dedup = d }
}

func WithPublisher(p notification.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithTimeout bounds every gateway call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithCurrency(currency string) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = strings.ToLower(currency)
		}
	}
}

func NewService(leads leadStore, attempts attemptStore, history historyWriter, tx transactor, res reservations, fin finalizer, gw gateway.Gateway, opts ...Option) *Service {
	s := &Service{
		leads:        leads,
		attempts:     attempts,
		history:      history,
		tx:           tx,
		reservations: res,
		finalizer:    fin,
		gateway:      gw,
		publisher:    notification.Discard,
		clock:        clock.NewSystem(),
		timeout:      DefaultTimeout,
		currency:     DefaultCurrency,
		loggerf:      func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignatureHeader names the request header carrying the webhook signature.
func (s *Service) SignatureHeader() string { return s.gateway.SignatureHeader() }

// OpenAuthorization starts a payment for the holder of a live reservation. A
// pending attempt for the same lead and claimant is returned as is.
func (s *Service) OpenAuthorization(ctx context.Context, leadID uuid.UUID, claimantID string) (*domain.PaymentAttempt, error) {
	l, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPayable(l, claimantID); err != nil {
		return nil, err
	}
	existing, err := s.attempts.FindPending(ctx, leadID, claimantID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		return nil, err
	}

	currency := s.currency
	if l.Currency != "" {
		currency = strings.ToLower(l.Currency)
	}
	id := uuid.New()
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	auth, err := s.gateway.OpenAuthorization(cctx, gateway.AuthorizationRequest{
		IdempotencyKey: "auth-" + id.String(),
		AmountCents:    l.PriceCents,
		Currency:       currency,
		Description:    l.Title,
		Metadata: map[string]string{
			gateway.MetaLeadID:     l.ID.String(),
			gateway.MetaClaimantID: claimantID,
			gateway.MetaAttemptID:  id.String(),
		},
	})
	cancel()
	if err != nil {
		s.loggerf("level=error msg=authorization failed lead_id=%s claimant_id=%s err=%v", leadID, claimantID, err)
		return nil, gatewayErr(err)
	}

	a := &domain.PaymentAttempt{
		ID:           id,
		LeadID:       l.ID,
		ClaimantID:   claimantID,
		AmountCents:  l.PriceCents,
		Currency:     currency,
		ExternalRef:  auth.Reference,
		ClientSecret: auth.ClientSecret,
		Status:       domain.AttemptPending,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.leads.GetForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if err := s.checkPayable(cur, claimantID); err != nil {
			return err
		}
		return s.attempts.Create(ctx, a)
	})
	if errors.Is(err, domain.ErrPendingExists) {
		return s.attempts.FindPending(ctx, leadID, claimantID)
	}
	if err != nil {
		return nil, err
	}

	telemetry.Authorizations.Inc()
	s.loggerf("level=info msg=authorization opened attempt_id=%s lead_id=%s claimant_id=%s amount_cents=%d ref=%s",
		a.ID, a.LeadID, a.ClaimantID, a.AmountCents, a.ExternalRef)
	return a, nil
}

func (s *Service) checkPayable(l *domain.Lead, claimantID string) error {
	if !l.IsReservedBy(claimantID) {
		return domain.ErrNotHolder
	}
	if s.reservations.IsExpired(l, s.clock.Now()) {
		return domain.ErrReservationExpired
	}
	if l.PriceCents <= 0 {
		return domain.ErrNoPrice
	}
	return nil
}

// Confirm asks the gateway for the outcome of a pending attempt and applies
// it. A failed attempt with no refund on record is checked again, since the
// gateway may have captured it after it was failed locally. Other terminal
// attempts come back unchanged without a gateway call.
func (s *Service) Confirm(ctx context.Context, attemptID uuid.UUID) (*domain.PaymentAttempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Unsettled() {
		return s.recheck(ctx, a)
	}
	if a.IsTerminal() {
		return a, nil
	}

	out, err := s.outcome(ctx, a)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, out)
}

func (s *Service) outcome(ctx context.Context, a *domain.PaymentAttempt) (*gateway.Outcome, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	out, err := s.gateway.Confirm(cctx, a.ExternalRef)
	cancel()
	if err != nil {
		s.loggerf("level=error msg=gateway confirm failed attempt_id=%s err=%v", a.ID, err)
		return nil, gatewayErr(err)
	}
	return out, nil
}

// recheck compensates a locally failed attempt the gateway reports as paid.
func (s *Service) recheck(ctx context.Context, a *domain.PaymentAttempt) (*domain.PaymentAttempt, error) {
	out, err := s.outcome(ctx, a)
	if err != nil {
		return nil, err
	}
	if out.Status != gateway.StatusSucceeded {
		return a, nil
	}
	s.loggerf("level=warn msg=payment captured after attempt failed attempt_id=%s lead_id=%s", a.ID, a.LeadID)
	return s.compensate(ctx, a.ID)
}

// ReconcileLead rechecks every unsettled attempt on a lead that was just
// released and refunds the ones the gateway captured anyway. It returns how
// many were compensated.
func (s *Service) ReconcileLead(ctx context.Context, leadID uuid.UUID) (int, error) {
	attempts, err := s.attempts.ListByLead(ctx, leadID)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range attempts {
		a := &attempts[i]
		if !a.Unsettled() {
			continue
		}
		_, err := s.recheck(ctx, a)
		switch {
		case errors.Is(err, domain.ErrClaimLost):
			n++
		case err != nil:
			s.loggerf("level=error msg=attempt reconcile failed attempt_id=%s err=%v", a.ID, err)
		}
	}
	return n, nil
}

func (s *Service) apply(ctx context.Context, a *domain.PaymentAttempt, out *gateway.Outcome) (*domain.PaymentAttempt, error) {
	switch out.Status {
	case gateway.StatusSucceeded:
		_, done, err := s.finalizer.Finalize(ctx, a.ID)
		if err == nil {
			telemetry.Confirmations.WithLabelValues("claimed").Inc()
			return done, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		s.loggerf("level=warn msg=claim lost after payment attempt_id=%s lead_id=%s err=%v", a.ID, a.LeadID, err)
		return s.compensate(ctx, a.ID)
	case gateway.StatusFailed:
		return s.fail(ctx, a, out.FailureMessage)
	default:
		telemetry.Confirmations.WithLabelValues("pending").Inc()
		return a, nil
	}
}

// fail locks the lead before the attempt, like every other path that
// touches both rows.
func (s *Service) fail(ctx context.Context, pending *domain.PaymentAttempt, message string) (*domain.PaymentAttempt, error) {
	if message == "" {
		message = "payment failed"
	}
	now := s.clock.Now()
	var out *domain.PaymentAttempt
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.leads.GetForUpdate(ctx, pending.LeadID); err != nil {
			return err
		}
		a, err := s.attempts.GetForUpdate(ctx, pending.ID)
		if err != nil {
			return err
		}
		out = a
		if a.Status != domain.AttemptPending {
			return nil
		}
		if err := s.attempts.Transition(ctx, a.ID, domain.AttemptPending, repository.AttemptChange{
			Status:        domain.AttemptFailed,
			FailureReason: &message,
		}, now); err != nil {
			return err
		}
		a.Status = domain.AttemptFailed
		a.FailureReason = message
		a.UpdatedAt = now

		if _, err := s.reservations.ReleaseForPayment(ctx, a.LeadID, a.ClaimantID, message); err != nil && !errors.Is(err, domain.ErrConflict) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.Confirmations.WithLabelValues("failed").Inc()
	s.loggerf("level=info msg=payment failed attempt_id=%s lead_id=%s reason=%q", out.ID, out.LeadID, message)
	return out, nil
}

// compensate records a captured payment that has no claim behind it and
// refunds it. The refund is retried by RetryCompensations if it fails here.
func (s *Service) compensate(ctx context.Context, attemptID uuid.UUID) (*domain.PaymentAttempt, error) {
	now := s.clock.Now()
	required := true
	reason := reasonClaimLost
	var a *domain.PaymentAttempt
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.attempts.GetForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}
		a = cur
		switch {
		case cur.Status == domain.AttemptPending:
			err = s.attempts.Transition(ctx, cur.ID, domain.AttemptPending, repository.AttemptChange{
				Status:         domain.AttemptFailed,
				FailureReason:  &reason,
				RefundRequired: &required,
			}, now)
			cur.Status = domain.AttemptFailed
			cur.FailureReason = reason
		case cur.Status == domain.AttemptFailed && !cur.RefundRequired:
			err = s.attempts.Transition(ctx, cur.ID, domain.AttemptFailed, repository.AttemptChange{
				Status:         domain.AttemptFailed,
				RefundRequired: &required,
			}, now)
		default:
			return nil
		}
		cur.RefundRequired = true
		cur.UpdatedAt = now
		return err
	})
	if err != nil {
		return nil, err
	}
	if a.Status == domain.AttemptCompleted {
		return a, nil
	}

	if a.NeedsCompensation() {
		refunded, err := s.refundCompensation(ctx, a)
		if err != nil {
			s.loggerf("level=error msg=compensating refund failed attempt_id=%s err=%v", a.ID, err)
		} else {
			a = refunded
		}
	}
	telemetry.Confirmations.WithLabelValues("claim_lost").Inc()
	return a, domain.ErrClaimLost
}

func (s *Service) refundCompensation(ctx context.Context, a *domain.PaymentAttempt) (*domain.PaymentAttempt, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.gateway.Refund(cctx, gateway.RefundRequest{
		Reference:      a.ExternalRef,
		IdempotencyKey: "compensate-" + a.ID.String(),
		AmountCents:    a.AmountCents,
		Reason:         reasonClaimLost,
	})
	cancel()
	if err != nil {
		telemetry.Compensations.WithLabelValues("error").Inc()
		return nil, gatewayErr(err)
	}

	now := s.clock.Now()
	reason := reasonClaimLost
	err = s.attempts.Transition(ctx, a.ID, domain.AttemptFailed, repository.AttemptChange{
		Status:       domain.AttemptRefunded,
		RefundReason: &reason,
		RefundedAt:   &now,
	}, now)
	if err != nil && !errors.Is(err, domain.ErrAttemptTerminal) {
		return nil, err
	}
	telemetry.Compensations.WithLabelValues("refunded").Inc()
	s.loggerf("level=info msg=compensating refund issued attempt_id=%s amount_cents=%d", a.ID, a.AmountCents)
	return s.attempts.GetByID(ctx, a.ID)
}

// RetryCompensations refunds captured payments whose claim was lost. It
// returns how many were refunded.
func (s *Service) RetryCompensations(ctx context.Context) (int, error) {
	due, err := s.attempts.ListRefundRequired(ctx, compensationBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range due {
		if _, err := s.refundCompensation(ctx, &due[i]); err != nil {
			s.loggerf("level=error msg=compensating refund retry failed attempt_id=%s err=%v", due[i].ID, err)
			continue
		}
		n++
	}
	return n, nil
}

// HandleWebhook verifies and applies one gateway delivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ev, err := s.gateway.VerifySignature(payload, signature)
	if err != nil {
		telemetry.Webhooks.WithLabelValues("rejected").Inc()
		s.loggerf("level=warn msg=webhook rejected err=%v", err)
		return nil, domain.NewSignatureError(err)
	}

	res := &WebhookResult{EventID: ev.ID, Type: ev.Type}
	claimed := false
	if s.dedup != nil {
		fresh, err := s.dedup.Claim(ctx, ev.ID)
		switch {
		case err != nil:
			s.loggerf("level=warn msg=webhook dedup unavailable event_id=%s err=%v", ev.ID, err)
		case !fresh:
			res.Status = WebhookDuplicate
			telemetry.Webhooks.WithLabelValues(res.Status).Inc()
			return res, nil
		default:
			claimed = true
		}
	}

	if err := s.dispatch(ctx, ev, res); err != nil {
		if claimed {
			if rerr := s.dedup.Release(ctx, ev.ID); rerr != nil {
				s.loggerf("level=warn msg=webhook dedup release failed event_id=%s err=%v", ev.ID, rerr)
			}
		}
		telemetry.Webhooks.WithLabelValues("error").Inc()
		s.loggerf("level=error msg=webhook failed event_id=%s type=%s err=%v", ev.ID, ev.Type, err)
		return nil, err
	}
	telemetry.Webhooks.WithLabelValues(res.Status).Inc()
	s.loggerf("level=info msg=webhook handled event_id=%s type=%s status=%s attempt_id=%s", ev.ID, ev.Type, res.Status, res.AttemptID)
	return res, nil
}

func (s *Service) dispatch(ctx context.Context, ev *gateway.WebhookEvent, res *WebhookResult) error {
	if ev.Outcome == nil {
		res.Status = WebhookIgnored
		return nil
	}
	a, err := s.attempts.GetByExternalRef(ctx, ev.Outcome.Reference)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		s.loggerf("level=warn msg=webhook for unknown reference event_id=%s ref=%s", ev.ID, ev.Outcome.Reference)
		res.Status = WebhookUnknown
		return nil
	}
	if err != nil {
		return err
	}
	res.AttemptID = a.ID.String()
	if err := crossCheck(a, ev.Outcome); err != nil {
		return err
	}

	var updated *domain.PaymentAttempt
	switch {
	case a.Status == domain.AttemptPending:
		updated, err = s.apply(ctx, a, ev.Outcome)
	case ev.Outcome.Status == gateway.StatusSucceeded && a.Status == domain.AttemptFailed && a.RefundedAt == nil:
		updated, err = s.compensate(ctx, a.ID)
	default:
		res.Status = WebhookNoop
		res.AttemptStatus = string(a.Status)
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrClaimLost):
		res.Status = WebhookCompensated
	case err != nil:
		return err
	default:
		res.Status = WebhookProcessed
	}
	res.AttemptStatus = string(updated.Status)
	return nil
}

func crossCheck(a *domain.PaymentAttempt, o *gateway.Outcome) error {
	fields := map[string]string{}
	if v := o.Metadata[gateway.MetaLeadID]; v != "" && v != a.LeadID.String() {
		fields[gateway.MetaLeadID] = "does not match payment attempt"
	}
	if v := o.Metadata[gateway.MetaClaimantID]; v != "" && v != a.ClaimantID {
		fields[gateway.MetaClaimantID] = "does not match payment attempt"
	}
	if v := o.Metadata[gateway.MetaAttemptID]; v != "" && v != a.ID.String() {
		fields[gateway.MetaAttemptID] = "does not match payment attempt"
	}
	if o.AmountCents != a.AmountCents {
		fields["amount_cents"] = "does not match payment attempt"
	}
	if o.Currency != "" && !strings.EqualFold(o.Currency, a.Currency) {
		fields["currency"] = "does not match payment attempt"
	}
	if len(fields) > 0 {
		return domain.NewValidationError("webhook does not match payment attempt", fields)
	}
	return nil
}

// Refund returns the money of a completed attempt and puts the lead back on
// the market. A lead an admin closed after it was claimed stays closed.
func (s *Service) Refund(ctx context.Context, attemptID uuid.UUID, reason string, actor domain.Actor) (*domain.PaymentAttempt, error) {
	if !actor.Admin {
		return nil, domain.ErrAdminOnly
	}
	if reason == "" {
		reason = reasonRefund
	}
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case domain.AttemptCompleted:
	case domain.AttemptRefunded:
		return nil, domain.ErrAlreadyRefunded
	default:
		return nil, domain.ErrNotRefundable
	}
	l, err := s.leads.GetByID(ctx, a.LeadID)
	if err != nil {
		return nil, err
	}
	if !refundable(l, a) {
		return nil, domain.ErrLeadNotClaimed
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err = s.gateway.Refund(cctx, gateway.RefundRequest{
		Reference:      a.ExternalRef,
		IdempotencyKey: "refund-" + a.ID.String(),
		AmountCents:    a.AmountCents,
		Reason:         reason,
	})
	cancel()
	if err != nil {
		s.loggerf("level=error msg=gateway refund failed attempt_id=%s err=%v", a.ID, err)
		return nil, gatewayErr(err)
	}

	now := s.clock.Now()
	reopened := false
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.leads.GetForUpdate(ctx, a.LeadID)
		if err != nil {
			return err
		}
		if err := s.attempts.Transition(ctx, a.ID, domain.AttemptCompleted, repository.AttemptChange{
			Status:       domain.AttemptRefunded,
			RefundReason: &reason,
			RefundedAt:   &now,
		}, now); err != nil {
			if errors.Is(err, domain.ErrAttemptTerminal) {
				return domain.ErrAlreadyRefunded
			}
			return err
		}

		if cur.Status == domain.LeadClosed {
			return nil
		}
		if cur.Status != domain.LeadClaimed || !cur.IsClaimedBy(a.ClaimantID) {
			s.loggerf("level=warn msg=lead moved before refund committed lead_id=%s status=%s", cur.ID, cur.Status)
			return nil
		}
		cur.Unclaim()
		if err := s.leads.CompareAndSwap(ctx, cur, domain.LeadClaimed, now); err != nil {
			return err
		}
		if err := s.history.Append(ctx, domain.StatusEntry(cur.ID, actor.ID, domain.LeadClaimed, domain.LeadAvailable, domain.ChangeRefund, now)); err != nil {
			return err
		}
		l = cur
		reopened = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.Refunds.Inc()
	s.loggerf("level=info msg=payment refunded attempt_id=%s lead_id=%s amount_cents=%d reopened=%t", a.ID, a.LeadID, a.AmountCents, reopened)
	if reopened {
		s.publisher.Publish(notification.Event{
			Type:            notification.EventLeadRefunded,
			LeadID:          l.ID.String(),
			ClaimantID:      a.ClaimantID,
			Title:           l.Title,
			ServiceCategory: l.ServiceCategory,
			City:            l.City,
			State:           l.State,
			OccurredAt:      now,
		})
	}
	return s.attempts.GetByID(ctx, a.ID)
}

// refundable reports whether the lead still reflects the claim a paid for.
// Completed is terminal, so a closed lead with a completed attempt was
// closed while claimed.
func refundable(l *domain.Lead, a *domain.PaymentAttempt) bool {
	switch l.Status {
	case domain.LeadClaimed:
		return l.IsClaimedBy(a.ClaimantID)
	case domain.LeadClosed:
		return true
	}
	return false
}

func (s *Service) GetAttempt(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	return s.attempts.GetByID(ctx, id)
}

func (s *Service) ListAttempts(ctx context.Context, leadID uuid.UUID) ([]domain.PaymentAttempt, error) {
	if _, err := s.leads.GetByID(ctx, leadID); err != nil {
		return nil, err
	}
	return s.attempts.ListByLead(ctx, leadID)
}

func gatewayErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewGatewayTimeout(err)
	}
	var perr *gateway.ProviderError
	if errors.As(err, &perr) {
		return domain.NewGatewayError(perr.Message, err)
	}
	return domain.NewGatewayError(err.Error(), err)
}
