// Package notification fans lead events out to notifiers without blocking
// the caller.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type EventType string

const (
	EventLeadSubmitted EventType = "lead_submitted"
	EventLeadClaimed   EventType = "lead_claimed"
	EventLeadRefunded  EventType = "lead_refunded"
)

// Event never carries customer contact details.
type Event struct {
	Type            EventType `json:"type"`
	LeadID          string    `json:"lead_id"`
	ClaimantID      string    `json:"claimant_id,omitempty"`
	Title           string    `json:"title,omitempty"`
	ServiceCategory string    `json:"service_category,omitempty"`
	City            string    `json:"city,omitempty"`
	State           string    `json:"state,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Publisher is what the services depend on.
type Publisher interface {
	Publish(ev Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	loggerf   func(format string, args ...interface{})
	wg        sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, loggerf func(format string, args ...interface{}), notifiers ...Notifier) *Dispatcher {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifiers: notifiers, timeout: timeout, loggerf: loggerf}
}

// Publish hands ev to every notifier on its own goroutine and returns at once.
func (d *Dispatcher) Publish(ev Event) {
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go d.deliver(n, ev)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(n Notifier, ev Event) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.loggerf("level=error msg=notifier panic event=%s lead_id=%s panic=%v", ev.Type, ev.LeadID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := n.Notify(ctx, ev); err != nil {
		d.loggerf("level=warn msg=notification failed event=%s lead_id=%s notifier=%T err=%v", ev.Type, ev.LeadID, n, err)
	}
}

// LogNotifier writes one line per event.
type LogNotifier struct {
	Printf func(format string, args ...interface{})
}

func (l LogNotifier) Notify(_ context.Context, ev Event) error {
	if l.Printf == nil {
		return fmt.Errorf("log notifier has no printer")
	}
	l.Printf("level=info msg=lead event event=%s lead_id=%s claimant_id=%s city=%s", ev.Type, ev.LeadID, ev.ClaimantID, ev.City)
	return nil
}
