package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// IsActive reports whether a booking in this status occupies its slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo enforces forward-only lifecycle moves.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() || s == next {
		return false
	}
	switch next {
	case StatusConfirmed:
		return s == StatusPending
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return s.IsActive()
	default:
		return false
	}
}

type Booking struct {
	ID                 string
	CustomerID         string
	BusinessID         string
	ServiceID          string
	ResourceID         string
	Start              time.Time
	End                time.Time
	Status             Status
	CheckedInAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	ReminderSentAt     *time.Time
	CreatedAt          time.Time
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Customer is the identity collaborator's view of a customer.
type Customer struct {
	ID            string
	EmailVerified bool
	IsActive      bool
}
