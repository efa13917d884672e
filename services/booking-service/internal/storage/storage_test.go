package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/workinghours"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		mark error
	}{
		{"no rows", pgx.ErrNoRows, errs.ErrNotFound},
		{"exclusion", &pgconn.PgError{Code: "23P01"}, errs.ErrConflict},
		{"serialization", errors.Wrap(&pgconn.PgError{Code: "40001"}, "commit"), errs.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, errs.ErrConflict},
		{"unique", &pgconn.PgError{Code: "23505"}, errs.ErrDuplicate},
		{"bad uuid", &pgconn.PgError{Code: "22P02"}, errs.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errs.Is(classify(tc.err), tc.mark))
		})
	}

	plain := errors.New("connection refused")
	assert.Equal(t, plain, classify(plain))
	assert.Nil(t, classify(nil))
}

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r[i].(string)
		case *time.Time:
			*p = r[i].(time.Time)
		case **time.Time:
			if r[i] != nil {
				v := r[i].(time.Time)
				*p = &v
			}
		}
	}
	return nil
}

func TestScanBooking(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cancelled := start.Add(-2 * time.Hour)
	row := fakeRow{"b1", "c1", "biz", "svc", "", start, start.Add(time.Hour), "cancelled", nil, cancelled, "sick", nil, start.AddDate(0, 0, -1)}

	b, err := scanBooking(row)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, b.Status)
	assert.Empty(t, b.ResourceID)
	assert.Nil(t, b.CheckedInAt)
	require.NotNil(t, b.CancelledAt)
	assert.True(t, b.CancelledAt.Equal(cancelled))
	assert.Equal(t, "sick", b.CancellationReason)
}

func TestHoursSource(t *testing.T) {
	assert.True(t, hoursSource(nil).IsAbsent())

	raw := `{"monday":{"isOpen":true,"openTime":"10:00","closeTime":"14:00"}}`
	sched, err := hoursSource(&raw).Schedule()
	require.NoError(t, err)
	assert.Equal(t, workinghours.Day{IsOpen: true, OpenTime: "10:00", CloseTime: "14:00"}, sched["monday"])
}

func TestServiceResourceType(t *testing.T) {
	rt, err := serviceResourceType("svc", "")
	require.NoError(t, err)
	assert.Empty(t, rt)

	rt, err = serviceResourceType("svc", "table")
	require.NoError(t, err)
	assert.Equal(t, model.ResourceTable, rt)

	_, err = serviceResourceType("svc", "boat")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInvalid))
	assert.Equal(t, `service svc has unknown resource type "boat"`, errs.PublicMessage(err))
}

type existsQuerier struct {
	querier
	exists bool
	err    error
	args   []any
}

func (q *existsQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.args = args
	return existsRow{exists: q.exists, err: q.err}
}

type existsRow struct {
	exists bool
	err    error
}

func (r existsRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.exists
	return nil
}

func TestBusinessHasCustomer(t *testing.T) {
	ctx := context.Background()

	q := &existsQuerier{exists: true}
	ok, err := bookingQueries{q: q}.BusinessHasCustomer(ctx, "b1", "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{"b1", "c1"}, q.args)

	ok, err = bookingQueries{q: &existsQuerier{err: &pgconn.PgError{Code: "22P02"}}}.BusinessHasCustomer(ctx, "b1", "not-a-uuid")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = bookingQueries{q: &existsQuerier{err: errors.New("connection refused")}}.BusinessHasCustomer(ctx, "b1", "c1")
	assert.ErrorContains(t, err, "connection refused")
}
