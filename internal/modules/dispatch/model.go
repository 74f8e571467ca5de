// README: Dispatch collaborators: candidate ranking, clock and exhaustion reporting.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/realtime"
	"easyfuel/internal/types"
)

const DefaultOfferTTL = 15 * time.Minute

type Config struct {
	OfferTTL time.Duration
	// MaxOffers caps offers per dispatch round; 0 means try every candidate.
	MaxOffers  int
	SweepBatch int
}

// CandidateSource returns drivers for an order, best first.
type CandidateSource interface {
	Candidates(ctx context.Context, o *domain.Order) ([]types.ID, error)
}

type CandidateFunc func(ctx context.Context, o *domain.Order) ([]types.ID, error)

func (f CandidateFunc) Candidates(ctx context.Context, o *domain.Order) ([]types.ID, error) {
	return f(ctx, o)
}

// Availability is implemented by candidate sources that track who is free.
type Availability interface {
	SetUnavailable(ctx context.Context, driverID types.ID) error
}

type ExhaustionReporter interface {
	ReportExhausted(ctx context.Context, o *domain.Order, attempts int)
}

// EventReporter hands exhausted orders to admins over the realtime layer.
type EventReporter struct {
	events realtime.Publisher
	logger *slog.Logger
}

func NewEventReporter(events realtime.Publisher, logger *slog.Logger) *EventReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventReporter{events: events, logger: logger.With("component", "dispatch.exhaustion")}
}

func (r *EventReporter) ReportExhausted(ctx context.Context, o *domain.Order, attempts int) {
	r.logger.Warn("dispatch candidates exhausted, manual intervention needed",
		"order_id", o.ID, "customer_id", o.CustomerID, "attempts", attempts)
	r.events.Publish(ctx, realtime.Event{
		OrderID: o.ID,
		At:      time.Now().UTC(),
		Payload: &realtime.DispatchExhausted{CustomerID: o.CustomerID, Attempts: attempts},
	})
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
