package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const TopicCustomerUpdated = "identity.customer.updated.v1"

type CustomerUpdated struct {
	CustomerID    string    `json:"customer_id"`
	EmailVerified bool      `json:"email_verified"`
	IsActive      bool      `json:"is_active"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CustomerWriter interface {
	Upsert(ctx context.Context, tx pgx.Tx, c model.Customer, updatedAt time.Time) error
}

type CustomerForgetter interface {
	Forget(ctx context.Context, customerID string)
}

// IdentityHandler mirrors identity updates into the local customers table.
type IdentityHandler struct {
	customers CustomerWriter
	cache     CustomerForgetter
}

func NewIdentityHandler(customers CustomerWriter, cache CustomerForgetter) *IdentityHandler {
	return &IdentityHandler{customers: customers, cache: cache}
}

func decodeCustomerUpdated(msg kafka.Message) (CustomerUpdated, error) {
	var evt CustomerUpdated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return CustomerUpdated{}, errors.Wrap(err, "decode customer update")
	}
	if evt.CustomerID == "" {
		return CustomerUpdated{}, errors.New("customer update without customer_id")
	}
	if evt.UpdatedAt.IsZero() {
		evt.UpdatedAt = msg.Time
	}
	return evt, nil
}

func (h *IdentityHandler) Handle(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	evt, err := decodeCustomerUpdated(msg)
	if err != nil {
		return err
	}
	return h.customers.Upsert(ctx, tx, model.Customer{
		ID:            evt.CustomerID,
		EmailVerified: evt.EmailVerified,
		IsActive:      evt.IsActive,
	}, evt.UpdatedAt)
}

func (h *IdentityHandler) Committed(ctx context.Context, msg kafka.Message) {
	if h.cache == nil {
		return
	}
	evt, err := decodeCustomerUpdated(msg)
	if err != nil {
		return
	}
	h.cache.Forget(ctx, evt.CustomerID)
}
