package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookingengine/libs/db"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/admission"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/outbox"
)

// AdmissionStore runs admission in serializable transactions.
type AdmissionStore struct {
	pool *db.Pool
	bookingQueries
}

func NewAdmissionStore(pool *db.Pool) *AdmissionStore {
	return &AdmissionStore{pool: pool, bookingQueries: bookingQueries{q: pool}}
}

type admissionTx struct {
	bookingQueries
	catalogQueries
}

func (s *AdmissionStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx admission.Tx) error) error {
	err := s.pool.WithinTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, admissionTx{bookingQueries{q: tx}, catalogQueries{q: tx}})
	})
	if err == nil {
		return nil
	}
	if _, ok := admission.AsRejection(err); ok {
		return err
	}
	return classify(err)
}

// LifecycleStore runs status changes with the booking row locked and the
// status event written to the outbox in the same transaction.
type LifecycleStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewLifecycleStore(pool *db.Pool, repo *outbox.Repository) *LifecycleStore {
	return &LifecycleStore{pool: pool, outbox: repo}
}

type lifecycleTx struct {
	bookingQueries
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t lifecycleTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (s *LifecycleStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx lifecycle.Tx) error) error {
	err := s.pool.WithinTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, lifecycleTx{bookingQueries: bookingQueries{q: tx}, tx: tx, outbox: s.outbox})
	})
	if err != nil && errs.PublicMessage(err) == "" {
		return classify(err)
	}
	return err
}

// Reader serves pool-level reads: the slot listing and trust history.
type Reader struct {
	bookingQueries
	catalogQueries
}

func NewReader(pool *db.Pool) *Reader {
	return &Reader{bookingQueries{q: pool}, catalogQueries{q: pool}}
}
