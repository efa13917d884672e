package admission

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindAdmission  Kind = "admission"
	KindConflict   Kind = "conflict"
)

// Rejection is a booking attempt turned down by a gate. Reason is meant for
// the customer.
type Rejection struct {
	Kind   Kind
	Reason string
}

func (r *Rejection) Error() string {
	return string(r.Kind) + ": " + r.Reason
}

func reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps a Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

const (
	ReasonEmailUnverified   = "Please verify your email address before booking."
	ReasonCustomerNotFound  = "Customer not found"
	ReasonCustomerInactive  = "Your account is not active."
	ReasonServiceNotFound   = "Service not found"
	ReasonServiceInactive   = "Service is not available"
	ReasonStartInPast       = "Bookings must start in the future"
	ReasonSlotTaken         = "This time slot is already booked"
	ReasonMultipleActive    = "You already have an active booking for this service."
	reasonDailyLimit        = "You have reached the daily limit of %d booking(s) for this service."
	reasonWeeklyLimit       = "You have reached the weekly limit of %d booking(s) for this service."
	reasonBusinessDailyCap  = "You have reached the maximum number of bookings (%d) for this business today."
	reasonCooldown          = "Booking cooldown: next booking for this service allowed after %s"
	reasonAdvanceWindow     = "Bookings can be made at most %d day(s) in advance"
	reasonInvalidDuration   = "Service duration must be positive"
	reasonMissingField      = "%s is required"
	reasonNegativePartySize = "party size cannot be negative"
)
