package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/bookingengine/libs/db"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

// querier is satisfied by the pool and by pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const bookingColumns = `
	id::text, customer_id::text, business_id::text, service_id::text, COALESCE(resource_id::text, ''),
	start_time, end_time, status, checked_in_at, cancelled_at, COALESCE(cancellation_reason, ''),
	reminder_sent_at, created_at`

func scanBooking(row scanner) (model.Booking, error) {
	var b model.Booking
	var status string
	err := row.Scan(
		&b.ID,
		&b.CustomerID,
		&b.BusinessID,
		&b.ServiceID,
		&b.ResourceID,
		&b.Start,
		&b.End,
		&status,
		&b.CheckedInAt,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.ReminderSentAt,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.Status(status)
	return b, nil
}

func collectBookings(rows pgx.Rows, err error) ([]model.Booking, error) {
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan booking")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// classify marks driver errors with the sentinels callers branch on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Mark(err, errs.ErrNotFound)
	}
	if db.IsRetryable(err) {
		return errs.Mark(err, errs.ErrConflict)
	}
	switch db.PgCode(err) {
	case db.CodeExclusionViolation:
		return errs.Mark(err, errs.ErrConflict)
	case db.CodeUniqueViolation:
		return errs.Mark(err, errs.ErrDuplicate)
	case db.CodeInvalidTextRepresentation:
		// Malformed ids cannot match a row.
		return errs.Mark(err, errs.ErrNotFound)
	}
	return err
}

// bookingQueries holds the explicit booking reads and writes shared by the
// admission transaction, the lifecycle transaction and pool-level readers.
type bookingQueries struct {
	q querier
}

func (b bookingQueries) ActiveBookingsForService(ctx context.Context, serviceID string, window model.Interval) ([]model.Booking, error) {
	rows, err := b.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE service_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, serviceID, window.Start, window.End)
	return collectBookings(rows, err)
}

func (b bookingQueries) ActiveBookingsForResource(ctx context.Context, resourceID string, window model.Interval) ([]model.Booking, error) {
	rows, err := b.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE resource_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, resourceID, window.Start, window.End)
	return collectBookings(rows, err)
}

func (b bookingQueries) CustomerServiceBookings(ctx context.Context, customerID, serviceID string, window model.Interval) ([]model.Booking, error) {
	rows, err := b.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE customer_id = $1
			AND service_id = $2
			AND status <> 'cancelled'
			AND start_time >= $3
			AND start_time < $4
		ORDER BY start_time
	`, customerID, serviceID, window.Start, window.End)
	return collectBookings(rows, err)
}

func (b bookingQueries) CountCustomerBusinessBookings(ctx context.Context, customerID, businessID string, window model.Interval) (int, error) {
	var n int
	err := b.q.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE customer_id = $1
			AND business_id = $2
			AND status <> 'cancelled'
			AND start_time >= $3
			AND start_time < $4
	`, customerID, businessID, window.Start, window.End).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (b bookingQueries) HasActiveCustomerServiceBooking(ctx context.Context, customerID, serviceID string) (bool, error) {
	var exists bool
	err := b.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE customer_id = $1
				AND service_id = $2
				AND status IN ('pending', 'confirmed')
		)
	`, customerID, serviceID).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

// BusinessHasCustomer reports whether customerID ever booked with businessID,
// cancelled bookings included.
func (b bookingQueries) BusinessHasCustomer(ctx context.Context, businessID, customerID string) (bool, error) {
	var exists bool
	err := b.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE business_id = $1
				AND customer_id = $2
		)
	`, businessID, customerID).Scan(&exists)
	if err != nil {
		err = classify(err)
		if errs.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func (b bookingQueries) CustomerHistory(ctx context.Context, customerID string) ([]model.Booking, error) {
	rows, err := b.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE customer_id = $1
		ORDER BY start_time DESC
	`, customerID)
	return collectBookings(rows, err)
}

func (b bookingQueries) InsertBooking(ctx context.Context, bk model.Booking) error {
	_, err := b.q.Exec(ctx, `
		INSERT INTO bookings
			(id, customer_id, business_id, service_id, resource_id, start_time, end_time, status, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9)
	`, bk.ID, bk.CustomerID, bk.BusinessID, bk.ServiceID, bk.ResourceID, bk.Start, bk.End, string(bk.Status), bk.CreatedAt)
	if err != nil {
		return errors.Wrap(classify(err), "insert booking")
	}
	return nil
}

func (b bookingQueries) LockBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	bk, err := scanBooking(b.q.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID))
	if err != nil {
		return model.Booking{}, errors.Wrapf(classify(err), "lock booking %s", bookingID)
	}
	return bk, nil
}

func (b bookingQueries) SaveBookingStatus(ctx context.Context, bk model.Booking) error {
	_, err := b.q.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			checked_in_at = $3,
			cancelled_at = $4,
			cancellation_reason = NULLIF($5, ''),
			updated_at = now()
		WHERE id = $1
	`, bk.ID, string(bk.Status), bk.CheckedInAt, bk.CancelledAt, bk.CancellationReason)
	if err != nil {
		return errors.Wrap(classify(err), "update booking status")
	}
	return nil
}
