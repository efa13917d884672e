// Package identity answers who a customer is for admission: whether they
// exist, are active and have verified their email.
package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookingengine/libs/db"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

// Provider returns errs.ErrNotFound for unknown customers.
type Provider interface {
	Customer(ctx context.Context, customerID string) (model.Customer, error)
}

// Postgres reads the local customers mirror kept fresh by identity events.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Customer(ctx context.Context, customerID string) (model.Customer, error) {
	var c model.Customer
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, email_verified, is_active
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&c.ID, &c.EmailVerified, &c.IsActive)
	if err != nil {
		return model.Customer{}, lookupError(err, customerID)
	}
	return c, nil
}

// lookupError marks absent rows and ids that cannot be a customer id as not
// found.
func lookupError(err error, customerID string) error {
	if errors.Is(err, pgx.ErrNoRows) || db.PgCode(err) == db.CodeInvalidTextRepresentation {
		return errs.Mark(errors.Newf("customer %s", customerID), errs.ErrNotFound)
	}
	return errors.Wrap(err, "select customer")
}

// Upsert applies an identity update, ignoring updates older than the stored
// version.
func (p *Postgres) Upsert(ctx context.Context, tx pgx.Tx, c model.Customer, updatedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO customers (id, email_verified, is_active, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email_verified = EXCLUDED.email_verified,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		WHERE customers.updated_at <= EXCLUDED.updated_at
	`, c.ID, c.EmailVerified, c.IsActive, updatedAt)
	return errors.Wrap(err, "upsert customer")
}

// Cached fronts a Provider with the injected cache.
type Cached struct {
	next   Provider
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(next Provider, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: c, ttl: ttl, logger: logger}
}

func customerKey(id string) string {
	return "identity:customer:" + id
}

func (c *Cached) Customer(ctx context.Context, customerID string) (model.Customer, error) {
	var hit model.Customer
	ok, err := c.cache.Get(ctx, customerKey(customerID), &hit)
	if err != nil {
		c.logger.Warn("identity cache read failed", "customer_id", customerID, "err", err)
	} else if ok {
		return hit, nil
	}

	cust, err := c.next.Customer(ctx, customerID)
	if err != nil {
		return model.Customer{}, err
	}
	if err := c.cache.Set(ctx, customerKey(customerID), cust, c.ttl); err != nil {
		c.logger.Warn("identity cache write failed", "customer_id", customerID, "err", err)
	}
	return cust, nil
}

// Forget drops the cached view of a customer.
func (c *Cached) Forget(ctx context.Context, customerID string) {
	if err := c.cache.Delete(ctx, customerKey(customerID)); err != nil {
		c.logger.Warn("identity cache invalidate failed", "customer_id", customerID, "err", err)
	}
}
