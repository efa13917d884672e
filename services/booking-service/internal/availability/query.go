package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

// ServiceLoader loads a service with its business and eligible resources. A
// missing service is reported with errs.ErrNotFound.
type ServiceLoader interface {
	LoadService(ctx context.Context, serviceID string) (model.Service, error)
}

// Query serves the public slot listing.
type Query struct {
	services ServiceLoader
	bookings BookingReader
	resolver *Resolver
	logger   *slog.Logger
}

func NewQuery(services ServiceLoader, bookings BookingReader, resolver *Resolver, logger *slog.Logger) *Query {
	if logger == nil {
		logger = slog.Default()
	}
	return &Query{services: services, bookings: bookings, resolver: resolver, logger: logger}
}

// GetAvailableSlots lists slot availability for serviceID on date. Unknown and
// inactive services yield an empty list so browsing clients degrade quietly.
func (q *Query) GetAvailableSlots(ctx context.Context, serviceID string, date time.Time, partySize int) ([]Slot, error) {
	svc, err := q.services.LoadService(ctx, serviceID)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			q.logger.Debug("slots requested for unknown service", "service_id", serviceID)
			return []Slot{}, nil
		}
		return nil, errs.Wrap(err, "load service")
	}
	if !svc.IsActive {
		return []Slot{}, nil
	}
	return q.resolver.DaySlots(ctx, q.bookings, svc, date, partySize)
}
