// Package sweeper releases reservations that outlived their TTL and retries
// compensating refunds that are still owed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/telemetry"

	"github.com/google/uuid"
)

const DefaultInterval = 5 * time.Minute

type leadLister interface {
	ListByStatus(ctx context.Context, status domain.LeadStatus) ([]domain.Lead, error)
}

type reservations interface {
	Expire(ctx context.Context, leadID uuid.UUID) (*domain.Lead, error)
	IsExpired(l *domain.Lead, now time.Time) bool
}

type compensations interface {
	ReconcileLead(ctx context.Context, leadID uuid.UUID) (int, error)
	RetryCompensations(ctx context.Context) (int, error)
}

type Sweeper struct {
	leads        leadLister
	reservations reservations
	payments     compensations
	clock        clock.Clock
	interval     time.Duration
	loggerf      func(format string, args ...interface{})

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	stopped sync.Once
}

// New creates a sweeper. payments may be nil when compensations are retried elsewhere.
func New(leads leadLister, res reservations, payments compensations, c clock.Clock, interval time.Duration, loggerf func(format string, args ...interface{})) *Sweeper {
	if c == nil {
		c = clock.NewSystem()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Sweeper{
		leads:        leads,
		reservations: res,
		payments:     payments,
		clock:        c,
		interval:     interval,
		loggerf:      loggerf,
		stopCh:       make(chan struct{}),
	}
}

// Sweep expires every overdue reservation and returns how many were released.
// Per-lead failures never abort the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	reserved, err := s.leads.ListByStatus(ctx, domain.LeadReserved)
	if err != nil {
		return 0, fmt.Errorf("list reserved leads: %w", err)
	}

	now := s.clock.Now()
	released := 0
	for i := range reserved {
		l := &reserved[i]
		if !s.reservations.IsExpired(l, now) {
			continue
		}
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		ok, err := s.expire(ctx, l.ID)
		if err != nil {
			telemetry.SweepErrors.Inc()
			s.loggerf("level=error msg=sweep lead failed lead_id=%s err=%v", l.ID, err)
			continue
		}
		if ok {
			released++
			telemetry.Expirations.Inc()
			s.reconcile(ctx, l.ID)
		}
	}
	if released > 0 {
		s.loggerf("level=info msg=reservations expired count=%d", released)
	}

	if s.payments != nil {
		n, err := s.payments.RetryCompensations(ctx)
		if err != nil {
			s.loggerf("level=error msg=compensation retry failed err=%v", err)
		} else if n > 0 {
			s.loggerf("level=info msg=compensations refunded count=%d", n)
		}
	}
	return released, nil
}

func (s *Sweeper) expire(ctx context.Context, id uuid.UUID) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if _, err := s.reservations.Expire(ctx, id); err != nil {
		// finalize or release got there first
		if errors.Is(err, domain.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// reconcile asks the gateway about the attempts an expiry just failed, so a
// payment captured without a webhook still gets refunded.
func (s *Sweeper) reconcile(ctx context.Context, leadID uuid.UUID) {
	if s.payments == nil {
		return
	}
	n, err := s.payments.ReconcileLead(ctx, leadID)
	if err != nil {
		s.loggerf("level=error msg=attempt reconcile failed lead_id=%s err=%v", leadID, err)
		return
	}
	if n > 0 {
		s.loggerf("level=info msg=captured payments compensated lead_id=%s count=%d", leadID, n)
	}
}

// Start runs Sweep every interval until ctx ends or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-s.stopCh:
				s.loggerf("level=info msg=sweeper stopped")
				return
			case <-ctx.Done():
				s.loggerf("level=info msg=sweeper stopped reason=context_done")
				return
			}
		}
	}()
	s.loggerf("level=info msg=sweeper started interval=%s", s.interval)
}

func (s *Sweeper) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.SweepErrors.Inc()
			s.loggerf("level=error msg=sweep panic err=%v", r)
		}
	}()
	if _, err := s.Sweep(ctx); err != nil {
		s.loggerf("level=error msg=sweep failed err=%v", err)
	}
}

// Stop ends the loop and waits for it. Safe to call more than once or
// without Start.
func (s *Sweeper) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
