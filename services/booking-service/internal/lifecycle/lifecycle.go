// Package lifecycle moves bookings through their statuses after admission.
package lifecycle

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/outbox"
)

type Tx interface {
	// LockBooking loads a booking and holds it for the rest of the
	// transaction. Unknown ids are marked errs.ErrNotFound.
	LockBooking(ctx context.Context, bookingID string) (model.Booking, error)
	SaveBookingStatus(ctx context.Context, b model.Booking) error
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type TrustCache interface {
	Invalidate(ctx context.Context, customerID string)
}

// UpdateStatusCommand is the full set of fields a status change may carry.
// Exactly one of BusinessID and CustomerID names the actor. Customers may only
// cancel their own bookings.
type UpdateStatusCommand struct {
	BookingID  string
	BusinessID string
	CustomerID string
	Status     model.Status
	Reason     string
}

type CheckInCommand struct {
	BookingID  string
	BusinessID string
}

const maxReasonLength = 500

type Service struct {
	store  Store
	trust  TrustCache
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(store Store, trust TrustCache, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, trust: trust, clock: clk, logger: logger}
}

func (c UpdateStatusCommand) validate() error {
	switch {
	case c.BookingID == "":
		return errs.Public(errs.ErrInvalid, "booking_id is required")
	case c.BusinessID == "" && c.CustomerID == "":
		return errs.Public(errs.ErrInvalid, "business_id or customer_id is required")
	case c.BusinessID != "" && c.CustomerID != "":
		return errs.Public(errs.ErrInvalid, "business_id and customer_id are mutually exclusive")
	case len(c.Reason) > maxReasonLength:
		return errs.Public(errs.ErrInvalid, "reason must be at most %d characters", maxReasonLength)
	}
	if _, ok := model.ParseStatus(string(c.Status)); !ok {
		return errs.Public(errs.ErrInvalid, "unknown status %q", c.Status)
	}
	if c.CustomerID != "" && c.Status != model.StatusCancelled {
		return errs.Public(errs.ErrInvalid, "customers can only cancel their bookings")
	}
	return nil
}

func (c UpdateStatusCommand) owns(b model.Booking) bool {
	if c.CustomerID != "" {
		return b.CustomerID == c.CustomerID
	}
	return b.BusinessID == c.BusinessID
}

func (c CheckInCommand) validate() error {
	switch {
	case c.BookingID == "":
		return errs.Public(errs.ErrInvalid, "booking_id is required")
	case c.BusinessID == "":
		return errs.Public(errs.ErrInvalid, "business_id is required")
	}
	return nil
}

// UpdateStatus applies a forward-only status change on behalf of the owning
// business or, for cancellations, the booking's customer.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (model.Booking, error) {
	if err := cmd.validate(); err != nil {
		return model.Booking{}, err
	}
	return s.apply(ctx, cmd.BookingID, cmd.owns, cmd.Reason, func(b *model.Booking) error {
		if !b.Status.CanTransitionTo(cmd.Status) {
			return errs.Public(errs.ErrConflict, "booking cannot move from %s to %s", b.Status, cmd.Status)
		}
		b.Status = cmd.Status
		if cmd.Status == model.StatusCancelled {
			at := s.clock.Now().UTC()
			b.CancelledAt = &at
			b.CancellationReason = cmd.Reason
		}
		return nil
	})
}

// CheckIn records the customer's arrival and completes the booking.
func (s *Service) CheckIn(ctx context.Context, cmd CheckInCommand) (model.Booking, error) {
	if err := cmd.validate(); err != nil {
		return model.Booking{}, err
	}
	owns := func(b model.Booking) bool { return b.BusinessID == cmd.BusinessID }
	return s.apply(ctx, cmd.BookingID, owns, "", func(b *model.Booking) error {
		if b.Status != model.StatusConfirmed {
			return errs.Public(errs.ErrInvalid, "Only confirmed bookings can be checked in")
		}
		at := s.clock.Now().UTC()
		b.CheckedInAt = &at
		b.Status = model.StatusCompleted
		return nil
	})
}

func (s *Service) apply(ctx context.Context, bookingID string, owns func(model.Booking) bool, reason string, change func(*model.Booking) error) (model.Booking, error) {
	var updated model.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			if errs.Is(err, errs.ErrNotFound) {
				return errs.Public(errs.ErrNotFound, "booking not found")
			}
			return err
		}
		if !owns(b) {
			return errs.Public(errs.ErrNotFound, "booking not found")
		}

		from := b.Status
		if err := change(&b); err != nil {
			return err
		}
		if err := tx.SaveBookingStatus(ctx, b); err != nil {
			return err
		}
		evt, err := notify.NewEvent(notify.TopicStatusChanged, b.ID, notify.StatusChanged(b, from, reason, s.clock.Now()))
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return model.Booking{}, errors.Wrap(err, "update booking status")
	}

	s.logger.InfoContext(ctx, "booking status changed",
		"booking_id", updated.ID,
		"business_id", updated.BusinessID,
		"customer_id", updated.CustomerID,
		"status", updated.Status,
	)
	if s.trust != nil {
		s.trust.Invalidate(ctx, updated.CustomerID)
	}
	return updated, nil
}
