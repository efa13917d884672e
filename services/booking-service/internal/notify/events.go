// Package notify publishes booking notifications for downstream consumers.
// Delivery is best effort: callers log failures and never undo a decision
// because of them.
package notify

import (
	"time"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

const (
	TopicBookingBooked     = "booking.appointment.booked.v1"
	TopicAdmissionRejected = "booking.admission.rejected.v1"
	TopicStatusChanged     = "booking.appointment.status_changed.v1"
)

type BookedPayload struct {
	BookingID  string    `json:"booking_id"`
	CustomerID string    `json:"customer_id"`
	BusinessID string    `json:"business_id"`
	ServiceID  string    `json:"service_id"`
	ResourceID string    `json:"resource_id,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
	Advisory   string    `json:"advisory,omitempty"`
}

type Rejection struct {
	CustomerID string    `json:"customer_id"`
	ServiceID  string    `json:"service_id"`
	ResourceID string    `json:"resource_id,omitempty"`
	StartTime  time.Time `json:"start_time"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason"`
}

type StatusChangedPayload struct {
	BookingID  string    `json:"booking_id"`
	CustomerID string    `json:"customer_id"`
	BusinessID string    `json:"business_id"`
	ServiceID  string    `json:"service_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

func Booked(b model.Booking, advisory string) BookedPayload {
	return BookedPayload{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		BusinessID: b.BusinessID,
		ServiceID:  b.ServiceID,
		ResourceID: b.ResourceID,
		StartTime:  b.Start.UTC(),
		EndTime:    b.End.UTC(),
		Status:     string(b.Status),
		Advisory:   advisory,
	}
}

func StatusChanged(b model.Booking, from model.Status, reason string, at time.Time) StatusChangedPayload {
	return StatusChangedPayload{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		BusinessID: b.BusinessID,
		ServiceID:  b.ServiceID,
		From:       string(from),
		To:         string(b.Status),
		Reason:     reason,
		ChangedAt:  at.UTC(),
	}
}
