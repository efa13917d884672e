package conflict

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

// Reader is the repository query the checker depends on: active bookings held
// by a resource that intersect a window.
type Reader interface {
	ActiveBookingsForResource(ctx context.Context, resourceID string, window model.Interval) ([]model.Booking, error)
}

type Checker struct {
	reader Reader
}

func NewChecker(reader Reader) *Checker {
	return &Checker{reader: reader}
}

// HasConflict reports whether any pending or confirmed booking of resourceID
// overlaps iv.
func (c *Checker) HasConflict(ctx context.Context, resourceID string, iv model.Interval) (bool, error) {
	bookings, err := c.reader.ActiveBookingsForResource(ctx, resourceID, iv)
	if err != nil {
		return false, errors.Wrapf(err, "load bookings for resource %s", resourceID)
	}
	return Any(bookings, iv), nil
}

// Any reports whether an active booking in the list overlaps iv. Bookings that
// are cancelled or finished never occupy time, whatever the reader returned.
func Any(bookings []model.Booking, iv model.Interval) bool {
	for _, b := range bookings {
		if b.Status.IsActive() && b.Interval().Overlaps(iv) {
			return true
		}
	}
	return false
}

// Count returns how many active bookings overlap iv.
func Count(bookings []model.Booking, iv model.Interval) int {
	n := 0
	for _, b := range bookings {
		if b.Status.IsActive() && b.Interval().Overlaps(iv) {
			n++
		}
	}
	return n
}
