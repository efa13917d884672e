package notify

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/outbox"
)

type Notifier interface {
	BookingCreated(ctx context.Context, p BookedPayload) error
	AdmissionRejected(ctx context.Context, r Rejection) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) BookingCreated(context.Context, BookedPayload) error { return nil }
func (Nop) AdmissionRejected(context.Context, Rejection) error  { return nil }

// OutboxNotifier writes notifications to the outbox table; the outbox
// publisher relays them to Kafka.
type OutboxNotifier struct {
	db   outbox.Execer
	repo *outbox.Repository
}

func NewOutboxNotifier(db outbox.Execer, repo *outbox.Repository) *OutboxNotifier {
	return &OutboxNotifier{db: db, repo: repo}
}

func (n *OutboxNotifier) BookingCreated(ctx context.Context, p BookedPayload) error {
	return n.write(ctx, TopicBookingBooked, p.BookingID, p)
}

func (n *OutboxNotifier) AdmissionRejected(ctx context.Context, r Rejection) error {
	return n.write(ctx, TopicAdmissionRejected, r.CustomerID, r)
}

func (n *OutboxNotifier) write(ctx context.Context, topic, aggregateID string, payload any) error {
	evt, err := NewEvent(topic, aggregateID, payload)
	if err != nil {
		return err
	}
	return n.repo.Insert(ctx, n.db, evt)
}

// NewEvent encodes payload into an outbox event for topic.
func NewEvent(topic, aggregateID string, payload any) (outbox.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return outbox.Event{}, errors.Wrapf(err, "encode %s payload", topic)
	}
	return outbox.Event{
		AggregateType: "booking",
		AggregateID:   aggregateID,
		EventType:     topic,
		Payload:       raw,
	}, nil
}
